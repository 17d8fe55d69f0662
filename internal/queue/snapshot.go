package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Note accompanies every snapshot so dashboard readers know match numbers are not applied.
const Note = "match numbers are parsed and echoed back but do not filter the snapshot"

// Group is one group with calls waiting.
type Group struct {
	GroupID      json.RawMessage `json:"group_id"`
	GroupName    string          `json:"group_name"`
	QueueSize    int             `json:"queue_size"`
	QueueOldest  any             `json:"queue_oldest"`
	QueueMaxWait any             `json:"queue_max_wait"`
	QueueMaxSize any             `json:"queue_max_size"`
}

type Snapshot struct {
	TotalGroupsChecked int      `json:"total_groups_checked"`
	GroupsWithQueue    int      `json:"groups_with_queue"`
	TotalQueued        int      `json:"total_queued"`
	QueuedGroups       []Group  `json:"queued_groups"`
	MatchNumbers       []string `json:"match_numbers"`
	Note               string   `json:"note"`
}

type upstreamGroup struct {
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
	Queue *struct {
		Data *struct {
			Size    any `json:"size"`
			Oldest  any `json:"oldest"`
			MaxWait any `json:"max_wait"`
			MaxSize any `json:"max_size"`
		} `json:"data"`
	} `json:"queue"`
}

type Fetcher interface {
	GroupsURL() string
	Get(ctx context.Context, endpoint, rawURL string) ([]byte, error)
}

type Service struct {
	fetcher Fetcher
}

func New(fetcher Fetcher) *Service {
	return &Service{fetcher: fetcher}
}

// Snapshot fetches every group with its queue data in one request and keeps
// the groups that have calls waiting.
func (s *Service) Snapshot(ctx context.Context, matchNumbers []string) (Snapshot, error) {
	body, err := s.fetcher.Get(ctx, "groups", s.fetcher.GroupsURL())
	if err != nil {
		return Snapshot{}, err
	}

	var payload struct {
		Data []upstreamGroup `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("decode groups: %w", err)
	}

	if matchNumbers == nil {
		matchNumbers = []string{}
	}
	snap := Snapshot{
		TotalGroupsChecked: len(payload.Data),
		QueuedGroups:       []Group{},
		MatchNumbers:       matchNumbers,
		Note:               Note,
	}
	for _, g := range payload.Data {
		if g.Queue == nil || g.Queue.Data == nil {
			continue
		}
		size, ok := positiveCount(g.Queue.Data.Size)
		if !ok {
			continue
		}
		snap.QueuedGroups = append(snap.QueuedGroups, Group{
			GroupID:      g.ID,
			GroupName:    g.Name,
			QueueSize:    size,
			QueueOldest:  g.Queue.Data.Oldest,
			QueueMaxWait: g.Queue.Data.MaxWait,
			QueueMaxSize: g.Queue.Data.MaxSize,
		})
		snap.TotalQueued += size
	}
	snap.GroupsWithQueue = len(snap.QueuedGroups)
	return snap, nil
}

// ParseMatchNumbers splits a comma-separated list, trimming entries and
// dropping empty ones.
func ParseMatchNumbers(raw string) []string {
	out := []string{}
	for _, field := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// positiveCount accepts only JSON numbers with at least one whole call
// waiting. Strings, null, missing and fractional sizes below one are treated
// as an empty queue.
func positiveCount(v any) (int, bool) {
	n, ok := v.(float64)
	if !ok {
		return 0, false
	}
	count := int(n)
	if count <= 0 {
		return 0, false
	}
	return count, true
}
