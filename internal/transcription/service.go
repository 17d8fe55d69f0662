package transcription

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

// ErrEmptyTranscript means the provider answered but heard nothing.
var ErrEmptyTranscript = errors.New("transcription returned no text")

type Client interface {
	Transcribe(ctx context.Context, file io.Reader, fileName, model string) (string, error)
}

type Service struct {
	client  Client
	model   string
	timeout time.Duration
}

func New(client Client, model string, timeout time.Duration) *Service {
	return &Service{
		client:  client,
		model:   strings.TrimSpace(model),
		timeout: timeout,
	}
}

// Transcribe uploads the audio under fileName with the configured model.
func (s *Service) Transcribe(ctx context.Context, audio io.Reader, fileName string) (string, error) {
	if fileName == "" {
		fileName = "recording.mp3"
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.client.Transcribe(ctx, audio, fileName, s.model)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// FileName names the upload after the call, keeping the extension of the
// recording's download URL so the provider can sniff the container format.
func FileName(callID, downloadURL string) string {
	ext := ".mp3"
	if u, err := url.Parse(downloadURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); len(e) > 1 && len(e) <= 5 {
			ext = e
		}
	}
	return "call-" + sanitize(callID) + ext
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
