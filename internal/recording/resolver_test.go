package recording

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"receptiongw/internal/upstream/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	body string
	err  error
	url  string
}

func (f *fakeFetcher) CallAudioURL(callID string) string {
	return "https://telephony.test/calls/" + callID + "/audio"
}

func (f *fakeFetcher) Get(_ context.Context, _ string, rawURL string) ([]byte, error) {
	f.url = rawURL
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func TestResolveURLPicksRecordingRegardlessOfOrder(t *testing.T) {
	bodies := []string{
		`{"data":[{"type":"VOICEMAIL","links":[{"rel":"self","uri":"https://x/vm.mp3"}]},{"type":"RECORDING","links":[{"rel":"self","uri":"https://x/rec.mp3"}]}]}`,
		`{"data":[{"type":"RECORDING","links":[{"rel":"self","uri":"https://x/rec.mp3"}]},{"type":"VOICEMAIL","links":[{"rel":"self","uri":"https://x/vm.mp3"}]}]}`,
	}
	for _, body := range bodies {
		f := &fakeFetcher{body: body}
		got, err := New(f).ResolveURL(context.Background(), "123")
		require.NoError(t, err)
		assert.Equal(t, "https://x/rec.mp3", got)
		assert.Equal(t, "https://telephony.test/calls/123/audio", f.url)
	}
}

func TestSelectMatchesTypeCaseInsensitively(t *testing.T) {
	got, err := Select("9", []Asset{{
		Type:  "call_recording",
		Links: []Link{{Rel: "related", URI: "https://x/meta"}, {Rel: "self", URI: "https://x/9.wav"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, "https://x/9.wav", got)
}

func TestSelectOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		assets  []Asset
		want    error
		message string
	}{
		{name: "empty list", assets: nil, want: ErrNoAudioAssets, message: "No audio files found for this call"},
		{name: "voicemail only", assets: []Asset{{Type: "VOICEMAIL", Links: []Link{{Rel: "self", URI: "https://x/vm"}}}}, want: ErrNoRecordingAsset, message: "No call recording found for this call"},
		{name: "recording without self link", assets: []Asset{{Type: "RECORDING", Links: []Link{{Rel: "related", URI: "https://x"}}}}, want: ErrNoSelfLink, message: "Recording has no download link"},
		{name: "recording with blank self link", assets: []Asset{{Type: "RECORDING", Links: []Link{{Rel: "self", URI: " "}}}}, want: ErrNoSelfLink, message: "Recording has no download link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Select("123", tt.assets)
			require.ErrorIs(t, err, tt.want)

			var nf *NotFoundError
			require.True(t, errors.As(err, &nf))
			assert.Equal(t, "123", nf.CallID)
			assert.NotEmpty(t, nf.Detail)
			assert.Equal(t, tt.want.Error(), err.Error())
			assert.Equal(t, tt.message, nf.Message())
		})
	}
}

func TestResolveURLEmptyDataIsNoAssets(t *testing.T) {
	_, err := New(&fakeFetcher{body: `{"data":[]}`}).ResolveURL(context.Background(), "123")
	require.ErrorIs(t, err, ErrNoAudioAssets)
	assert.Equal(t, "no audio files found for this call", err.Error())
}

func TestNotFoundMessageFallsBackToKind(t *testing.T) {
	nf := &NotFoundError{CallID: "9", Kind: errors.New("other outcome")}
	assert.Equal(t, "other outcome", nf.Message())
}

func TestResolveURLForwardsUpstreamFailure(t *testing.T) {
	upErr := &telephony.Error{StatusCode: http.StatusServiceUnavailable, Body: "maintenance"}
	_, err := New(&fakeFetcher{err: upErr}).ResolveURL(context.Background(), "123")

	var got *telephony.Error
	require.True(t, errors.As(err, &got))
	assert.Equal(t, http.StatusServiceUnavailable, got.StatusCode)
	assert.False(t, errors.Is(err, ErrNoAudioAssets))
}
