// Package voice turns text into speech through an external synthesis API.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

var ErrEmptyText = errors.New("text cannot be empty")

// Settings are the tunable synthesis parameters, each within [0, 1]
// except Speed which is a multiplier in [0.7, 1.2].
type Settings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{Stability: 0.5, SimilarityBoost: 0.75, UseSpeakerBoost: true, Speed: 1}
}

func (s Settings) Validate() error {
	for name, v := range map[string]float64{
		"stability":        s.Stability,
		"similarity_boost": s.SimilarityBoost,
		"style":            s.Style,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if math.IsNaN(s.Speed) || (s.Speed != 0 && (s.Speed < 0.7 || s.Speed > 1.2)) {
		return errors.New("speed must be between 0.7 and 1.2")
	}
	return nil
}

type Request struct {
	Text     string
	VoiceID  string
	Language string
	Settings Settings
}

// Synthesizer produces MP3 audio for a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// ElevenLabsClient calls an ElevenLabs-compatible text-to-speech API.
type ElevenLabsClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	modelID    string
}

func NewElevenLabsClient(baseURL, apiKey, modelID string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		modelID:    modelID,
	}
}

type ttsBody struct {
	Text          string   `json:"text"`
	ModelID       string   `json:"model_id"`
	LanguageCode  string   `json:"language_code,omitempty"`
	VoiceSettings Settings `json:"voice_settings"`
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	body, err := json.Marshal(ttsBody{
		Text:          req.Text,
		ModelID:       c.modelID,
		LanguageCode:  req.Language,
		VoiceSettings: req.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode tts request: %w", err)
	}

	url := c.baseURL + "/v1/text-to-speech/" + req.VoiceID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tts service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tts audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("tts service returned empty audio")
	}
	return audio, nil
}

// silentFrame is one MPEG-1 Layer III frame (128 kbps, 44.1 kHz) of silence.
var silentFrame = func() []byte {
	frame := make([]byte, 417)
	frame[0], frame[1], frame[2], frame[3] = 0xFF, 0xFB, 0x90, 0x64
	return frame
}()

// SilentSynthesizer returns near-silent MP3 audio whose length tracks the
// word count. It stands in for the real service when no API key is set.
type SilentSynthesizer struct{}

func (SilentSynthesizer) Synthesize(_ context.Context, req Request) ([]byte, error) {
	words := len(strings.Fields(req.Text))
	if words == 0 {
		return nil, ErrEmptyText
	}
	// ~38 frames per second, ~2.5 words per second of speech.
	frames := max(words*38*2/5, 38)
	return bytes.Repeat(silentFrame, frames), nil
}
