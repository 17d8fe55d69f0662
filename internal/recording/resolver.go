package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Resolver outcomes. Each is a distinct not-found case reported to the caller.
var (
	ErrNoAudioAssets    = errors.New("no audio files found for this call")
	ErrNoRecordingAsset = errors.New("no call recording found for this call")
	ErrNoSelfLink       = errors.New("recording has no download link")
)

// notFoundMessages holds the text shown to dashboard users for each outcome.
var notFoundMessages = map[error]string{
	ErrNoAudioAssets:    "No audio files found for this call",
	ErrNoRecordingAsset: "No call recording found for this call",
	ErrNoSelfLink:       "Recording has no download link",
}

const (
	recordingType = "RECORDING"
	selfRel       = "self"
)

type Link struct {
	Rel string `json:"rel"`
	URI string `json:"uri"`
}

type Asset struct {
	Type  string `json:"type"`
	Links []Link `json:"links"`
}

// NotFoundError ties a resolver outcome to the call it was about.
type NotFoundError struct {
	CallID string
	Kind   error
	Detail string
}

func (e *NotFoundError) Error() string { return e.Kind.Error() }

func (e *NotFoundError) Unwrap() error { return e.Kind }

// Message is the user-facing text for the outcome.
func (e *NotFoundError) Message() string {
	if msg, ok := notFoundMessages[e.Kind]; ok {
		return msg
	}
	return e.Kind.Error()
}

type Fetcher interface {
	CallAudioURL(callID string) string
	Get(ctx context.Context, endpoint, rawURL string) ([]byte, error)
}

type Resolver struct {
	fetcher Fetcher
}

func New(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// ResolveURL returns the direct download link of the call's recording.
// Upstream failures are returned as-is.
func (r *Resolver) ResolveURL(ctx context.Context, callID string) (string, error) {
	body, err := r.fetcher.Get(ctx, "call_audio", r.fetcher.CallAudioURL(callID))
	if err != nil {
		return "", err
	}

	var payload struct {
		Data []Asset `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode call audio list: %w", err)
	}
	return Select(callID, payload.Data)
}

// Select picks the first asset whose type contains RECORDING, ignoring case,
// and returns its self link.
func Select(callID string, assets []Asset) (string, error) {
	if len(assets) == 0 {
		return "", &NotFoundError{
			CallID: callID,
			Kind:   ErrNoAudioAssets,
			Detail: fmt.Sprintf("call %s has no audio assets", callID),
		}
	}

	for _, asset := range assets {
		if !strings.Contains(strings.ToUpper(asset.Type), recordingType) {
			continue
		}
		for _, link := range asset.Links {
			if link.Rel == selfRel && strings.TrimSpace(link.URI) != "" {
				return strings.TrimSpace(link.URI), nil
			}
		}
		return "", &NotFoundError{
			CallID: callID,
			Kind:   ErrNoSelfLink,
			Detail: fmt.Sprintf("recording asset for call %s has no self link", callID),
		}
	}

	types := make([]string, 0, len(assets))
	for _, asset := range assets {
		types = append(types, asset.Type)
	}
	return "", &NotFoundError{
		CallID: callID,
		Kind:   ErrNoRecordingAsset,
		Detail: fmt.Sprintf("call %s has audio of type %s but no recording", callID, strings.Join(types, ", ")),
	}
}
