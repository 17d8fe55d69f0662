package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

type ObserverFunc func(endpoint string, status int, duration time.Duration)

type Option func(*Client)

// Client is a thin wrapper over an OpenAI-compatible provider. The gateway
// builds one per provider so speech-to-text and text generation can use
// different keys and hosts.
type Client struct {
	api      *goopenai.Client
	observer ObserverFunc
}

// Error is a non-2xx reply from the provider.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream request failed with status %d", e.StatusCode)
}

type ChatMessage struct {
	Role    string
	Content string
}

type ChatCompletionRequest struct {
	Model       string
	Temperature float32
	MaxTokens   int
	Messages    []ChatMessage
}

type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type ChatCompletionResponse struct {
	Content string
	Usage   *TokenUsage
}

func WithObserver(observer ObserverFunc) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

func New(baseURL, apiKey string, httpClient *http.Client, opts ...Option) *Client {
	cfg := goopenai.DefaultConfig(strings.TrimSpace(apiKey))
	if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = capturingClient(httpClient)
	c := &Client{api: goopenai.NewClientWithConfig(cfg)}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) Transcribe(ctx context.Context, file io.Reader, fileName, model string) (string, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("audio_transcriptions", statusCode, time.Since(started)) }()

	ctx, raw := withErrorBody(ctx)
	resp, err := c.api.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    model,
		FilePath: fileName,
		Reader:   file,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		statusCode = statusOf(err)
		return "", normalizeError(err, raw.data)
	}
	statusCode = http.StatusOK

	return strings.TrimSpace(resp.Text), nil
}

func (c *Client) ChatCompletion(ctx context.Context, reqPayload ChatCompletionRequest) (ChatCompletionResponse, error) {
	started := time.Now()
	statusCode := 0
	defer func() { c.observe("chat_completions", statusCode, time.Since(started)) }()

	messages := make([]goopenai.ChatCompletionMessage, 0, len(reqPayload.Messages))
	for _, m := range reqPayload.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	ctx, raw := withErrorBody(ctx)
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       reqPayload.Model,
		Temperature: reqPayload.Temperature,
		MaxTokens:   reqPayload.MaxTokens,
		Messages:    messages,
	})
	if err != nil {
		statusCode = statusOf(err)
		return ChatCompletionResponse{}, normalizeError(err, raw.data)
	}
	statusCode = http.StatusOK

	if len(resp.Choices) == 0 {
		return ChatCompletionResponse{}, errors.New("missing choices")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return ChatCompletionResponse{}, errors.New("missing choices[0].message.content")
	}

	return ChatCompletionResponse{
		Content: content,
		Usage: &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) observe(endpoint string, status int, duration time.Duration) {
	if c.observer != nil {
		c.observer(endpoint, status, duration)
	}
}

func statusOf(err error) int {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// normalizeError maps go-openai's error types onto *Error so callers only
// need to know about one upstream failure shape. Body is the provider's raw
// reply when one was captured. Transport errors such as context deadlines
// pass through untouched.
func normalizeError(err error, rawBody []byte) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.HTTPStatusCode, Body: bodyOr(rawBody, apiErr.Message)}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		fallback := ""
		if reqErr.Err != nil {
			fallback = reqErr.Err.Error()
		}
		return &Error{StatusCode: reqErr.HTTPStatusCode, Body: bodyOr(rawBody, fallback)}
	}
	return err
}

func bodyOr(rawBody []byte, fallback string) string {
	if body := truncateBody(string(rawBody)); body != "" {
		return body
	}
	return truncateBody(fallback)
}

func truncateBody(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 4096 {
		return s
	}
	return s[:4096] + "..."
}
