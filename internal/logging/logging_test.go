package logging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu   sync.Mutex
	rows []models.SystemLog
}

func (s *sink) write(batch []models.SystemLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, batch...)
	return nil
}

func (s *sink) snapshot() []models.SystemLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SystemLog(nil), s.rows...)
}

func TestPGHandlerKeepsErrorsOnly(t *testing.T) {
	out := &sink{}
	h := newPGHandler(out.write, time.Hour)
	logger := slog.New(h).With("action", "retention_sweep")

	logger.Info("ignored")
	logger.Error("blob delete failed",
		"user_id", "u-1",
		"error", errors.New("timeout"),
		"latency_ms", 12.6,
		"key", "u-1/a.mp3",
	)
	h.Stop()

	rows := out.snapshot()
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, "ERROR", row.Level)
	assert.Equal(t, "blob delete failed", row.Message)
	assert.Equal(t, "retention_sweep", row.Action)
	require.NotNil(t, row.UserID)
	assert.Equal(t, "u-1", *row.UserID)
	assert.Equal(t, "timeout", row.Error)
	assert.Equal(t, 13, row.LatencyMs)
	assert.JSONEq(t, `{"key":"u-1/a.mp3"}`, string(row.Extra))
}

func TestPGHandlerFlushesFullBatch(t *testing.T) {
	out := &sink{}
	h := newPGHandler(out.write, time.Hour)
	defer h.Stop()

	for i := 0; i < batchSize; i++ {
		require.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)))
	}
	assert.Eventually(t, func() bool { return len(out.snapshot()) == batchSize }, time.Second, 5*time.Millisecond)
}

func TestMultiHandlerFansOut(t *testing.T) {
	a, b := &sink{}, &sink{}
	ha := newPGHandler(a.write, time.Hour)
	hb := newPGHandler(b.write, time.Hour)

	m := NewMultiHandler(ha, hb)
	assert.False(t, m.Enabled(context.Background(), slog.LevelInfo))
	slog.New(m).Error("fan out")
	ha.Stop()
	hb.Stop()

	assert.Len(t, a.snapshot(), 1)
	assert.Len(t, b.snapshot(), 1)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("sink down")
}

func TestMultiHandlerContinuesPastFailure(t *testing.T) {
	out := &sink{}
	pg := newPGHandler(out.write, time.Hour)

	m := NewMultiHandler(failingHandler{}, pg)
	err := m.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "still logged", 0))
	pg.Stop()

	assert.EqualError(t, err, "sink down")
	assert.Len(t, out.snapshot(), 1)
}
