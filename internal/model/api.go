package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"receptiongw/internal/presence"
	"receptiongw/internal/queue"
)

// ErrorResponse is the envelope for every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Status    int    `json:"status,omitempty"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}

type ReadyResponse struct {
	OK          bool     `json:"ok"`
	ServiceName string   `json:"service_name,omitempty"`
	Missing     []string `json:"missing,omitempty"`
}

type PresenceResponse struct {
	Success           bool            `json:"success"`
	Data              []presence.User `json:"data"`
	TotalUsersFetched int             `json:"total_users_fetched"`
	ActiveUsers       int             `json:"active_users"`
	Cached            bool            `json:"cached"`
}

type QueueSnapshotResponse struct {
	Success bool `json:"success"`
	queue.Snapshot
}

type ListCallsRequest struct {
	Limit        *int   `json:"limit,omitempty"`
	AccountScope string `json:"account_scope,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
}

type DutyQueryRequest struct {
	CallID CallID `json:"callId"`
}

// CallID accepts the identifier as either a JSON string or a JSON number.
type CallID string

func (c *CallID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CallID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("callId must be a string or number: %w", err)
	}
	*c = CallID(n.String())
	return nil
}

type DutyQueryResponse struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript"`
	DutyQuery  string `json:"dutyQuery"`
	CallID     string `json:"callId"`
}
