package queue

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"receptiongw/internal/upstream/telephony"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	body     string
	err      error
	endpoint string
}

func (f *fakeFetcher) GroupsURL() string { return "https://telephony.test/groups?include=queue" }

func (f *fakeFetcher) Get(_ context.Context, endpoint, _ string) ([]byte, error) {
	f.endpoint = endpoint
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

const groupsFixture = `{"data":[
	{"id":10,"name":"Reception","queue":{"data":{"size":3,"oldest":"2026-10-19T08:00:00Z","max_wait":240,"max_size":20}}},
	{"id":11,"name":"Prescriptions","queue":{"data":{"size":0,"oldest":null}}},
	{"id":12,"name":"Results","queue":{"data":{"size":null}}},
	{"id":13,"name":"Admin","queue":{"data":{}}},
	{"id":14,"name":"Out of hours"},
	{"id":15,"name":"Nurses","queue":{"data":{"size":"4"}}},
	{"id":16,"name":"Urgent","queue":{"data":{"size":2,"max_wait":30}}}
]}`

func TestSnapshotKeepsOnlyGroupsWithCallsWaiting(t *testing.T) {
	f := &fakeFetcher{body: groupsFixture}

	snap, err := New(f).Snapshot(context.Background(), []string{"0123"})
	require.NoError(t, err)

	assert.Equal(t, "groups", f.endpoint)
	assert.Equal(t, 7, snap.TotalGroupsChecked)
	assert.Equal(t, 2, snap.GroupsWithQueue)
	assert.Equal(t, 5, snap.TotalQueued)
	require.Len(t, snap.QueuedGroups, 2)

	sum := 0
	for _, g := range snap.QueuedGroups {
		assert.Positive(t, g.QueueSize)
		sum += g.QueueSize
	}
	assert.Equal(t, snap.TotalQueued, sum)

	first := snap.QueuedGroups[0]
	assert.Equal(t, "Reception", first.GroupName)
	assert.JSONEq(t, `10`, string(first.GroupID))
	assert.Equal(t, "2026-10-19T08:00:00Z", first.QueueOldest)
	assert.Equal(t, float64(240), first.QueueMaxWait)
	assert.Equal(t, []string{"0123"}, snap.MatchNumbers)
	assert.Equal(t, Note, snap.Note)
}

func TestSnapshotDropsFractionalSizesBelowOne(t *testing.T) {
	f := &fakeFetcher{body: `{"data":[
		{"id":1,"name":"Half","queue":{"data":{"size":0.5}}},
		{"id":2,"name":"Two","queue":{"data":{"size":2.0}}}
	]}`}

	snap, err := New(f).Snapshot(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, snap.QueuedGroups, 1)
	assert.Equal(t, "Two", snap.QueuedGroups[0].GroupName)
	assert.Equal(t, 2, snap.TotalQueued)
	assert.Equal(t, 2, snap.TotalGroupsChecked)
}

func TestSnapshotDoesNotFilterByMatchNumbers(t *testing.T) {
	withMatch, err := New(&fakeFetcher{body: groupsFixture}).Snapshot(context.Background(), []string{"999"})
	require.NoError(t, err)
	without, err := New(&fakeFetcher{body: groupsFixture}).Snapshot(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, without.QueuedGroups, withMatch.QueuedGroups)
	assert.Equal(t, []string{}, without.MatchNumbers)
}

func TestSnapshotEmptyListMarshalsAsArray(t *testing.T) {
	snap, err := New(&fakeFetcher{body: `{"data":[]}`}).Snapshot(context.Background(), nil)
	require.NoError(t, err)

	out, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"queued_groups":[]`)
	assert.Zero(t, snap.TotalQueued)
}

func TestSnapshotPropagatesUpstreamFailure(t *testing.T) {
	upErr := &telephony.Error{StatusCode: http.StatusUnauthorized, Body: "bad token"}

	_, err := New(&fakeFetcher{err: upErr}).Snapshot(context.Background(), nil)
	require.ErrorIs(t, err, upErr)
}

func TestSnapshotRejectsMalformedPayload(t *testing.T) {
	_, err := New(&fakeFetcher{body: `<html>`}).Snapshot(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode groups")
}

func TestParseMatchNumbers(t *testing.T) {
	cases := map[string][]string{
		"":                   {},
		"0123":               {"0123"},
		" 0123 , ,0456,,":    {"0123", "0456"},
		"+44 20 7946 0000,x": {"+44 20 7946 0000", "x"},
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseMatchNumbers(in), "input %q", in)
	}
}
