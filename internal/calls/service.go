package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"receptiongw/internal/upstream/telephony"
)

const (
	DefaultLimit = 5
	// maxPageSize caps page[size] on the upstream request; the caller's limit
	// still governs how much of data is returned.
	maxPageSize = 100
)

type Query struct {
	Limit        int
	AccountScope string
	StartDate    string
	EndDate      string
}

type Fetcher interface {
	CallsURL(in telephony.CallsQuery) string
	Get(ctx context.Context, endpoint, rawURL string) ([]byte, error)
}

type Service struct {
	fetcher Fetcher
}

func New(fetcher Fetcher) *Service {
	return &Service{fetcher: fetcher}
}

// List returns the upstream call-list document unchanged apart from its
// data array, which is cut down to the requested limit.
func (s *Service) List(ctx context.Context, in Query) (map[string]any, error) {
	if in.Limit <= 0 {
		in.Limit = DefaultLimit
	}

	body, err := s.fetcher.Get(ctx, "calls", s.fetcher.CallsURL(telephony.CallsQuery{
		Limit:        min(in.Limit, maxPageSize),
		AccountScope: strings.TrimSpace(in.AccountScope),
		StartDate:    strings.TrimSpace(in.StartDate),
		EndDate:      strings.TrimSpace(in.EndDate),
	}))
	if err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode calls: %w", err)
	}
	if payload == nil {
		return nil, errors.New("decode calls: empty document")
	}
	if data, ok := payload["data"].([]any); ok && len(data) > in.Limit {
		payload["data"] = data[:in.Limit]
	}
	return payload, nil
}
