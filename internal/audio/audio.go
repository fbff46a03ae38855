// Package audio speaks text and plays tones on the handset through the
// phone service.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Defaults applied by New.
const (
	DefaultVoice  = "en-US-Standard-D"
	DefaultVolume = 0.8

	defaultTimeout = 30 * time.Second
	maxAudioBytes  = 16 << 20
)

// Standard tones.
const (
	DialToneHz    = 350
	ConfirmToneHz = 1000
	ErrorToneHz   = 480
	DialToneMs    = 1000
	ConfirmToneMs = 200
	ErrorToneMs   = 500
)

// ErrAudio is matched by every error returned from the service.
var ErrAudio = errors.New("audio: playback failed")

// Player plays raw audio on the handset. *phone.Client implements it.
type Player interface {
	PlayAudio(ctx context.Context, audio []byte) error
}

// Logger defines the logging interface used by the audio service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Service.
type Config struct {
	// RESTURL is the phone service base URL that generates audio.
	RESTURL string

	// Enabled turns speech on. A disabled service does nothing.
	Enabled bool

	Voice      string
	Volume     float64
	HTTPClient *http.Client
	Logger     Logger
}

// Service generates speech and tones and plays them through a Player.
type Service struct {
	baseURL string
	enabled bool
	voice   string
	volume  float64
	http    *http.Client
	player  Player
	logger  Logger

	// maxBytes caps a generated clip; larger responses are rejected.
	maxBytes int64
}

// New creates an audio service.
func New(cfg Config, player Player) *Service {
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	if cfg.Volume <= 0 {
		cfg.Volume = DefaultVolume
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Service{
		baseURL: strings.TrimRight(cfg.RESTURL, "/"),
		enabled: cfg.Enabled,
		voice:   cfg.Voice,
		volume:  cfg.Volume,
		http:    cfg.HTTPClient,
		player:  player,
		logger:  cfg.Logger,

		maxBytes: maxAudioBytes,
	}
}

// Enabled reports whether speech and tones are played.
func (s *Service) Enabled() bool {
	return s.enabled
}

// Speak converts text to speech and plays it on the handset.
func (s *Service) Speak(ctx context.Context, text string) error {
	if !s.enabled {
		s.logger.Debug("speech disabled, skipping", "text", text)
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	audio, err := s.generate(ctx, "generate-tts", map[string]any{
		"text":   text,
		"voice":  s.voice,
		"volume": s.volume,
	})
	if err != nil {
		return err
	}
	if len(audio) == 0 {
		return fmt.Errorf("%w: generate-tts returned no audio", ErrAudio)
	}
	if err := s.player.PlayAudio(ctx, audio); err != nil {
		return fmt.Errorf("%w: %w", ErrAudio, err)
	}
	s.logger.Debug("speech played", "text", text, "bytes", len(audio))
	return nil
}

// PlayTone plays a sine tone. If the phone service returns audio it is
// played through the Player; an empty response means the service played
// the tone itself.
func (s *Service) PlayTone(ctx context.Context, freqHz, durationMs int) error {
	if !s.enabled {
		return nil
	}
	if freqHz <= 0 || durationMs <= 0 {
		return fmt.Errorf("%w: invalid tone %dHz for %dms", ErrAudio, freqHz, durationMs)
	}

	audio, err := s.generate(ctx, "generate-tone", map[string]any{
		"frequency": freqHz,
		"duration":  durationMs,
	})
	if err != nil {
		return err
	}
	if len(audio) > 0 {
		if err := s.player.PlayAudio(ctx, audio); err != nil {
			return fmt.Errorf("%w: %w", ErrAudio, err)
		}
	}
	s.logger.Debug("tone played", "frequency_hz", freqHz, "duration_ms", durationMs)
	return nil
}

func (s *Service) generate(ctx context.Context, endpoint string, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("audio: encoding %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("audio: building %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAudio, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrAudio, endpoint, resp.StatusCode)
	}
	// Read one byte past the cap to tell a full clip from a cut-off one.
	audio, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %w", ErrAudio, endpoint, err)
	}
	if int64(len(audio)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %s response exceeds %d bytes", ErrAudio, endpoint, s.maxBytes)
	}
	return audio, nil
}
