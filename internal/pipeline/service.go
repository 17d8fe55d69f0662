package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"receptiongw/internal/transcription"
)

// Stage names one step of the duty-query pipeline.
type Stage string

const (
	StageResolving    Stage = "resolving"
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
	StageDone         Stage = "done"
)

// StageError is the only error Run returns once input validation has passed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Resolver interface {
	ResolveURL(ctx context.Context, callID string) (string, error)
}

type Downloader interface {
	Download(ctx context.Context, rawURL string, maxBytes int64) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, fileName string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// StageObserver is told how each stage ended; err is nil on success.
type StageObserver func(stage Stage, duration time.Duration, err error)

type Result struct {
	CallID     string
	Transcript string
	DutyQuery  string
	Timings    map[Stage]time.Duration
}

type Service struct {
	resolver      Resolver
	downloader    Downloader
	transcriber   Transcriber
	summarizer    Summarizer
	maxAudioBytes int64
	logger        *slog.Logger
	observer      StageObserver
}

type Dependencies struct {
	Resolver    Resolver
	Downloader  Downloader
	Transcriber Transcriber
	Summarizer  Summarizer
}

func New(deps Dependencies, maxAudioBytes int64, logger *slog.Logger, observer StageObserver) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		resolver:      deps.Resolver,
		downloader:    deps.Downloader,
		transcriber:   deps.Transcriber,
		summarizer:    deps.Summarizer,
		maxAudioBytes: maxAudioBytes,
		logger:        logger,
		observer:      observer,
	}
}

// run carries the values each stage hands to the next.
type run struct {
	callID      string
	downloadURL string
	audio       []byte
	transcript  string
	dutyQuery   string
}

// Run drives Resolving -> Downloading -> Transcribing -> Summarizing -> Done.
// Stages run strictly in order, each is attempted once, and a failure stops
// the run with a *StageError naming the stage that broke.
func (s *Service) Run(ctx context.Context, callID string) (Result, error) {
	state := &run{callID: strings.TrimSpace(callID)}
	timings := make(map[Stage]time.Duration, 4)

	for stage := StageResolving; stage != StageDone; {
		started := time.Now()
		next, err := s.step(ctx, stage, state)
		elapsed := time.Since(started)
		timings[stage] = elapsed
		s.observe(stage, elapsed, err)

		if err != nil {
			s.logger.Warn("duty query stage failed",
				"call_id", state.callID,
				"stage", string(stage),
				"duration_ms", elapsed.Milliseconds(),
				"error", err,
			)
			return Result{}, &StageError{Stage: stage, Err: err}
		}
		stage = next
	}

	return Result{
		CallID:     state.callID,
		Transcript: state.transcript,
		DutyQuery:  state.dutyQuery,
		Timings:    timings,
	}, nil
}

func (s *Service) step(ctx context.Context, stage Stage, state *run) (Stage, error) {
	switch stage {
	case StageResolving:
		u, err := s.resolver.ResolveURL(ctx, state.callID)
		if err != nil {
			return "", err
		}
		state.downloadURL = u
		return StageDownloading, nil

	case StageDownloading:
		audio, err := s.downloader.Download(ctx, state.downloadURL, s.maxAudioBytes)
		if err != nil {
			return "", err
		}
		state.audio = audio
		return StageTranscribing, nil

	case StageTranscribing:
		text, err := s.transcriber.Transcribe(ctx, bytes.NewReader(state.audio), transcription.FileName(state.callID, state.downloadURL))
		if err != nil {
			return "", err
		}
		state.transcript = text
		state.audio = nil
		return StageSummarizing, nil

	case StageSummarizing:
		query, err := s.summarizer.Summarize(ctx, state.transcript)
		if err != nil {
			return "", err
		}
		state.dutyQuery = query
		return StageDone, nil
	}
	return "", fmt.Errorf("unknown stage %q", stage)
}

func (s *Service) observe(stage Stage, duration time.Duration, err error) {
	if s.observer != nil {
		s.observer(stage, duration, err)
	}
}
