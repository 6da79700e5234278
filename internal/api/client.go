package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/banshee-data/highway.planner/internal/db"
	"github.com/banshee-data/highway.planner/internal/httputil"
	"github.com/banshee-data/highway.planner/internal/planner"
)

// Client reads a running planner's admin API. Speeds are requested in m/s.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the API rooted at baseURL
// (e.g. "http://localhost:8080").
func NewClient(baseURL string, c httputil.HTTPClient) *Client {
	if c == nil {
		c = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: c}
}

// Runs lists recorded runs, newest first.
func (c *Client) Runs(ctx context.Context) ([]db.Run, error) {
	var runs []db.Run
	err := httputil.GetJSON(ctx, c.http, c.base+"/api/runs", &runs)
	return runs, err
}

// Cycles fetches the most recent limit cycles of a run; zero fetches all.
func (c *Client) Cycles(ctx context.Context, runID string, limit int) ([]db.CycleRecord, error) {
	u := fmt.Sprintf("%s/api/runs/%s/cycles?units=mps&limit=%d", c.base, url.PathEscape(runID), limit)
	var cycles []db.CycleRecord
	err := httputil.GetJSON(ctx, c.http, u, &cycles)
	return cycles, err
}

// Summary fetches the aggregate statistics of a run.
func (c *Client) Summary(ctx context.Context, runID string) (db.RunSummary, error) {
	var sum db.RunSummary
	err := httputil.GetJSON(ctx, c.http, fmt.Sprintf("%s/api/runs/%s/summary?units=mps", c.base, url.PathEscape(runID)), &sum)
	return sum, err
}

// Latest fetches the most recent live decision.
func (c *Client) Latest(ctx context.Context) (planner.Decision, error) {
	var d planner.Decision
	err := httputil.GetJSON(ctx, c.http, c.base+"/api/latest?units=mps", &d)
	return d, err
}
