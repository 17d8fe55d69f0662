package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrPageLimitExceeded means the provider kept handing out next links past the walker's bound.
var ErrPageLimitExceeded = errors.New("pagination exceeded page limit")

type page struct {
	Data json.RawMessage `json:"data"`
	Meta struct {
		Pagination struct {
			Links struct {
				Next string `json:"next"`
			} `json:"links"`
		} `json:"pagination"`
	} `json:"meta"`
}

// WalkPages fetches seedURL and follows meta.pagination.links.next until it is
// absent, returning every page's data items in order. Any failed page aborts
// the walk and nothing accumulated so far is returned.
func (c *Client) WalkPages(ctx context.Context, endpoint, seedURL string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	next := seedURL
	for pages := 0; next != ""; pages++ {
		if pages >= c.maxPages {
			return nil, fmt.Errorf("%w: stopped after %d pages of %s", ErrPageLimitExceeded, c.maxPages, endpoint)
		}

		body, err := c.Get(ctx, endpoint, next)
		if err != nil {
			return nil, err
		}

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("decode %s page: %w", endpoint, err)
		}
		items = append(items, dataItems(p.Data)...)
		next = strings.TrimSpace(p.Meta.Pagination.Links.Next)
	}
	if items == nil {
		items = []json.RawMessage{}
	}
	return items, nil
}

// dataItems treats a missing, null or non-array data field as empty.
func dataItems(raw json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}
