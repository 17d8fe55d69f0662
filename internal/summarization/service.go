package summarization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"receptiongw/internal/upstream/openai"
)

const SystemPrompt = `You are a medical receptionist's assistant. You receive the transcript of a patient's phone call to a GP surgery and write the query that reception will pass to the duty doctor.

Your job:
- Summarise why the patient called, their symptoms and how long they have had them.
- Include anything clinically relevant the caller mentioned: medication, allergies, existing conditions, red-flag symptoms and what the patient is asking for.
- Keep it concise and written for a clinician.

Output rules:
- Return ONLY the duty doctor query text.
- Never include patient identifiers: no names, dates of birth, addresses, phone numbers or NHS numbers.
- Do not add symptoms, advice or diagnoses that are not in the transcript.`

const Temperature float32 = 0.3

type ChatClient interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Service struct {
	client    ChatClient
	model     string
	maxTokens int
	timeout   time.Duration
}

func New(client ChatClient, model string, maxTokens int, timeout time.Duration) *Service {
	return &Service{
		client:    client,
		model:     strings.TrimSpace(model),
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// Summarize turns a call transcript into a duty doctor query. The first
// completion is returned exactly as the model wrote it.
func (s *Service) Summarize(ctx context.Context, transcript string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: Temperature,
		MaxTokens:   s.maxTokens,
		Messages: []openai.ChatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: userMessage(transcript)},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// userMessage fences the transcript verbatim between delimiter lines.
func userMessage(transcript string) string {
	return fmt.Sprintf("Write the duty doctor query for this call.\n\nTRANSCRIPT:\n<<<\n%s\n>>>", transcript)
}
