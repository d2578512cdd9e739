package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatwatch/internal/listing"
)

type fakeStatus struct {
	state    State
	failures int
	cycles   int64
	last     *CycleResult
}

func (f fakeStatus) State() State             { return f.state }
func (f fakeStatus) ConsecutiveFailures() int { return f.failures }
func (f fakeStatus) Cycles() int64            { return f.cycles }
func (f fakeStatus) LastResult() *CycleResult { return f.last }

type fakeKnown []listing.Listing

func (k fakeKnown) Known() []listing.Listing { return k }

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h := NewStatusHandler(fakeStatus{
		state:    StateIdle,
		failures: 2,
		cycles:   5,
		last:     &CycleResult{ID: "abc", Cycle: 5, Err: errors.New("status 503"), Kind: KindFetch, ConsecutiveFailures: 2},
	}, fakeKnown(nil))

	rec := serve(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body struct {
		State               string `json:"state"`
		ConsecutiveFailures int    `json:"consecutive_failures"`
		Cycles              int64  `json:"cycles"`
		LastCycle           struct {
			ID    string `json:"id"`
			Cycle int    `json:"cycle"`
			Kind  string `json:"kind"`
			Error string `json:"error"`
		} `json:"last_cycle"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "idle", body.State)
	assert.Equal(t, 2, body.ConsecutiveFailures)
	assert.Equal(t, int64(5), body.Cycles)
	assert.Equal(t, "abc", body.LastCycle.ID)
	assert.Equal(t, "fetch", body.LastCycle.Kind)
	assert.Equal(t, "status 503", body.LastCycle.Error)
}

func TestHealthzStopped(t *testing.T) {
	h := NewStatusHandler(fakeStatus{state: StateStopped}, fakeKnown(nil))
	rec := serve(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last_cycle":null`)
}

func TestListingsEndpoints(t *testing.T) {
	known := fakeKnown{
		{ID: 633, Title: "Altbau", Price: "450 €", Layout: "card"},
		{ID: 17, Title: "Dachgeschoss", Price: listing.Unknown, Layout: "list"},
	}
	h := NewStatusHandler(fakeStatus{}, known)

	rec := serve(t, h, http.MethodGet, "/listings")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []listing.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, []listing.Listing(known), all)

	rec = serve(t, h, http.MethodGet, "/listings/17")
	require.Equal(t, http.StatusOK, rec.Code)
	var one listing.Listing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, "Dachgeschoss", one.Title)

	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/listings/1").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/listings/abc").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, h, http.MethodPost, "/listings").Code)
}
