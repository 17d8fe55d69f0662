package openai

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

const maxErrorBodyBytes = 64 << 10

type errorBodyKey struct{}

// errorBody receives the raw payload of a failed provider reply for one call.
type errorBody struct {
	data []byte
}

func withErrorBody(ctx context.Context) (context.Context, *errorBody) {
	eb := &errorBody{}
	return context.WithValue(ctx, errorBodyKey{}, eb), eb
}

// errorBodyTransport copies the body of every non-2xx reply into the
// errorBody carried by the request context, then hands the reply on with an
// equivalent body so go-openai can still decode it.
type errorBodyTransport struct {
	base http.RoundTripper
}

func (t errorBodyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode < 300 {
		return resp, err
	}
	eb, ok := req.Context().Value(errorBodyKey{}).(*errorBody)
	if !ok {
		return resp, nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	_ = resp.Body.Close()
	eb.data = data
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

func capturingClient(httpClient *http.Client) *http.Client {
	hc := &http.Client{}
	if httpClient != nil {
		copied := *httpClient
		hc = &copied
	}
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = errorBodyTransport{base: base}
	return hc
}
