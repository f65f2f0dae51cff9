// Package retention deletes generated audio and its history once the
// retention window fixed at creation has passed, and purges old analytics
// and system logs.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/voiceclone-backend/internal/storage"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
)

const (
	AnalyticsHorizon = 90 * 24 * time.Hour
	SystemLogHorizon = 30 * 24 * time.Hour
)

type Report struct {
	Users            int   `json:"users"`
	HistoryDeleted   int64 `json:"history_deleted"`
	BlobsDeleted     int   `json:"blobs_deleted"`
	BlobFailures     int   `json:"blob_failures"`
	UserFailures     int   `json:"user_failures"`
	AnalyticsPurged  int64 `json:"analytics_purged"`
	SystemLogsPurged int64 `json:"system_logs_purged"`
}

type Sweeper struct {
	store Store
	blobs storage.BlobStore
}

func NewSweeper(store Store, blobs storage.BlobStore) *Sweeper {
	return &Sweeper{store: store, blobs: blobs}
}

// Sweep runs one cleanup pass. Individual blob and per-user failures are
// logged and skipped; the pass always runs to the end.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) Report {
	var r Report

	users, err := s.store.ExpiredUsers(ctx, now)
	if err != nil {
		slog.Error("retention: failed to list users", "action", "retention_sweep", "error", err)
		sentry.CaptureException(err)
		r.UserFailures++
	}
	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		r.Users++
		if err := s.sweepUser(ctx, userID, now, &r); err != nil {
			r.UserFailures++
			metrics.RetentionFailuresTotal.Inc()
			slog.Error("retention: user sweep failed", "user_id", userID.String(), "action", "retention_sweep", "error", err)
			sentry.CaptureException(err)
		}
	}

	if n, err := s.store.PurgeAnalytics(ctx, now.Add(-AnalyticsHorizon)); err != nil {
		slog.Error("retention: analytics purge failed", "action", "retention_sweep", "error", err)
	} else {
		r.AnalyticsPurged = n
		metrics.RetentionDeletedTotal.WithLabelValues("analytics").Add(float64(n))
	}

	if n, err := s.store.PurgeSystemLogs(ctx, now.Add(-SystemLogHorizon)); err != nil {
		slog.Error("retention: system log purge failed", "action", "retention_sweep", "error", err)
	} else {
		r.SystemLogsPurged = n
		metrics.RetentionDeletedTotal.WithLabelValues("system_log").Add(float64(n))
	}

	slog.Info("retention sweep completed",
		"users", r.Users,
		"history_deleted", r.HistoryDeleted,
		"blobs_deleted", r.BlobsDeleted,
		"blob_failures", r.BlobFailures,
		"analytics_purged", r.AnalyticsPurged,
		"system_logs_purged", r.SystemLogsPurged,
	)
	return r
}

func (s *Sweeper) sweepUser(ctx context.Context, userID uuid.UUID, now time.Time, r *Report) error {
	rows, err := s.store.ExpiredHistory(ctx, userID, now)
	if err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, h := range rows {
		ids = append(ids, h.ID)
		if h.AudioKey == "" {
			continue
		}
		err := s.blobs.Delete(ctx, h.AudioKey)
		switch {
		case err == nil, errors.Is(err, storage.ErrObjectNotFound):
			r.BlobsDeleted++
			metrics.RetentionDeletedTotal.WithLabelValues("blob").Inc()
		default:
			r.BlobFailures++
			metrics.RetentionFailuresTotal.Inc()
			slog.Error("retention: blob delete failed", "user_id", userID.String(), "action", "retention_sweep",
				"key", h.AudioKey, "error", err)
			sentry.CaptureException(err)
		}
	}

	n, err := s.store.DeleteHistory(ctx, userID, ids)
	if err != nil {
		return err
	}
	r.HistoryDeleted += n
	metrics.RetentionDeletedTotal.WithLabelValues("history").Add(float64(n))
	return nil
}

// Start runs Sweep every interval until done is closed.
func (s *Sweeper) Start(interval time.Duration, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(context.Background(), time.Now())
			case <-done:
				return
			}
		}
	}()
}
