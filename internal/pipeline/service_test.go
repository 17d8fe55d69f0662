package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"receptiongw/internal/recording"
	"receptiongw/internal/upstream/openai"
	"receptiongw/internal/upstream/telephony"
)

type fakeResolver struct {
	url    string
	err    error
	callID string
}

func (f *fakeResolver) ResolveURL(_ context.Context, callID string) (string, error) {
	f.callID = callID
	return f.url, f.err
}

type fakeDownloader struct {
	body     []byte
	err      error
	url      string
	maxBytes int64
	calls    int
}

func (f *fakeDownloader) Download(_ context.Context, rawURL string, maxBytes int64) ([]byte, error) {
	f.calls++
	f.url = rawURL
	f.maxBytes = maxBytes
	return f.body, f.err
}

type fakeTranscriber struct {
	text     string
	err      error
	audio    string
	fileName string
	calls    int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio io.Reader, fileName string) (string, error) {
	f.calls++
	body, _ := io.ReadAll(audio)
	f.audio = string(body)
	f.fileName = fileName
	return f.text, f.err
}

type fakeSummarizer struct {
	text       string
	err        error
	transcript string
	calls      int
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	f.calls++
	f.transcript = transcript
	return f.text, f.err
}

type fixture struct {
	resolver    *fakeResolver
	downloader  *fakeDownloader
	transcriber *fakeTranscriber
	summarizer  *fakeSummarizer
	observed    []Stage
}

func newFixture() *fixture {
	return &fixture{
		resolver:    &fakeResolver{url: "https://x/audio/123.mp3"},
		downloader:  &fakeDownloader{body: []byte("mp3-bytes")},
		transcriber: &fakeTranscriber{text: "Patient reports chest pain for two days."},
		summarizer:  &fakeSummarizer{text: "Duty doctor query: ..."},
	}
}

func (f *fixture) service() *Service {
	return New(Dependencies{
		Resolver:    f.resolver,
		Downloader:  f.downloader,
		Transcriber: f.transcriber,
		Summarizer:  f.summarizer,
	}, 1024, slog.New(slog.NewTextHandler(io.Discard, nil)), func(stage Stage, _ time.Duration, _ error) {
		f.observed = append(f.observed, stage)
	})
}

func TestRunChainsEveryStage(t *testing.T) {
	f := newFixture()

	res, err := f.service().Run(context.Background(), " 123 ")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.CallID != "123" || res.Transcript != "Patient reports chest pain for two days." || res.DutyQuery != "Duty doctor query: ..." {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.resolver.callID != "123" {
		t.Fatalf("resolver got call id %q", f.resolver.callID)
	}
	if f.downloader.url != "https://x/audio/123.mp3" || f.downloader.maxBytes != 1024 {
		t.Fatalf("unexpected download: url=%q max=%d", f.downloader.url, f.downloader.maxBytes)
	}
	if f.transcriber.audio != "mp3-bytes" || f.transcriber.fileName != "call-123.mp3" {
		t.Fatalf("unexpected transcription input: %+v", f.transcriber)
	}
	if f.summarizer.transcript != "Patient reports chest pain for two days." {
		t.Fatalf("unexpected summarizer input: %q", f.summarizer.transcript)
	}
	want := []Stage{StageResolving, StageDownloading, StageTranscribing, StageSummarizing}
	if len(f.observed) != len(want) {
		t.Fatalf("unexpected observed stages: %v", f.observed)
	}
	for i := range want {
		if f.observed[i] != want[i] {
			t.Fatalf("stage %d = %s, want %s", i, f.observed[i], want[i])
		}
	}
	if len(res.Timings) != 4 {
		t.Fatalf("expected four stage timings, got %v", res.Timings)
	}
}

func TestRunStopsAtResolverOutcome(t *testing.T) {
	f := newFixture()
	f.resolver.err = &recording.NotFoundError{CallID: "123", Kind: recording.ErrNoAudioAssets}

	_, err := f.service().Run(context.Background(), "123")

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StageResolving {
		t.Fatalf("expected resolving stage error, got %v", err)
	}
	if !errors.Is(err, recording.ErrNoAudioAssets) {
		t.Fatalf("expected ErrNoAudioAssets in chain, got %v", err)
	}
	if f.downloader.calls != 0 || f.transcriber.calls != 0 || f.summarizer.calls != 0 {
		t.Fatal("no later stage may run after the resolver fails")
	}
}

func TestRunTagsEachFailingStage(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fixture)
		stage Stage
	}{
		{
			name:  "download",
			setup: func(f *fixture) { f.downloader.err = &telephony.Error{StatusCode: http.StatusForbidden} },
			stage: StageDownloading,
		},
		{
			name:  "transcription",
			setup: func(f *fixture) { f.transcriber.err = &openai.Error{StatusCode: http.StatusTooManyRequests} },
			stage: StageTranscribing,
		},
		{
			name:  "summarization",
			setup: func(f *fixture) { f.summarizer.err = &openai.Error{StatusCode: http.StatusInternalServerError} },
			stage: StageSummarizing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			res, err := f.service().Run(context.Background(), "123")
			var stageErr *StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("expected *StageError, got %v", err)
			}
			if stageErr.Stage != tt.stage {
				t.Fatalf("stage = %s, want %s", stageErr.Stage, tt.stage)
			}
			if res.Transcript != "" || res.DutyQuery != "" {
				t.Fatalf("failed runs must not return partial results: %+v", res)
			}
			if f.downloader.calls > 1 || f.transcriber.calls > 1 || f.summarizer.calls > 1 {
				t.Fatal("stages must not be retried")
			}
		})
	}
}
