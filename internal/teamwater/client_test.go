/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package teamwater_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/C3lEst1512/teamwater-data/internal/retry"
	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
)

func fastRetry() retry.Config {
	return retry.Config{
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestDonations(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/donations" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": "d-2", "amount": 50, "donor_name": "Pat", "completed_at": "2025-08-12T18:00:00Z"},
			{"id": 17, "amount": "12.50", "completed_at": "2025-08-12T17:00:00Z"}
		]`))
	}))
	t.Cleanup(srv.Close)

	c, err := teamwater.NewClient(srv.URL, teamwater.WithRetryConfig(fastRetry()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	donations, err := c.Donations(context.Background())
	if err != nil {
		t.Fatalf("Donations: %v", err)
	}
	if len(donations) != 2 {
		t.Fatalf("expected 2 donations, got %d", len(donations))
	}
	if donations[0].ID != "d-2" || donations[0].Amount != 50 {
		t.Fatalf("unexpected first donation: %+v", donations[0])
	}
	if donations[1].ID != "17" || donations[1].Amount != 12.5 {
		t.Fatalf("unexpected second donation: %+v", donations[1])
	}
}

func TestTotalRaised(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/total_raised" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"total_raised": "370123.45"}`))
	}))
	t.Cleanup(srv.Close)

	c, err := teamwater.NewClient(srv.URL, teamwater.WithRetryConfig(fastRetry()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	total, err := c.TotalRaised(context.Background())
	if err != nil {
		t.Fatalf("TotalRaised: %v", err)
	}
	if total.Raised != 370123.45 {
		t.Fatalf("expected total 370123.45, got %v", total.Raised)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no such campaign", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c, err := teamwater.NewClient(srv.URL, teamwater.WithRetryConfig(fastRetry()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Donations(context.Background())
	if err == nil {
		t.Fatal("expected error for 404 response")
	}

	var apiErr *teamwater.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", apiErr.StatusCode)
	}
	// 4xx responses fail immediately, no retries
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected 1 request, got %d", got)
	}
}

func TestServerErrorRetried(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "upstream sad", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	c, err := teamwater.NewClient(srv.URL, teamwater.WithRetryConfig(fastRetry()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	donations, err := c.Donations(context.Background())
	if err != nil {
		t.Fatalf("Donations after retries: %v", err)
	}
	if len(donations) != 0 {
		t.Fatalf("expected empty feed, got %d donations", len(donations))
	}
	if got := hits.Load(); got != 3 {
		t.Fatalf("expected 3 requests (2 failures + success), got %d", got)
	}
}

func TestUserAgentHeader(t *testing.T) {
	t.Parallel()
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	c, err := teamwater.NewClient(srv.URL,
		teamwater.WithRetryConfig(fastRetry()),
		teamwater.WithUserAgent("teamwater-test/9.9"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := c.Donations(context.Background()); err != nil {
		t.Fatalf("Donations: %v", err)
	}
	if ua := gotUA.Load(); ua != "teamwater-test/9.9" {
		t.Fatalf("expected custom user agent, got %v", ua)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/donations":
			w.Write([]byte(`[]`))
		case "/total_raised":
			w.Write([]byte(`{"total_raised": 0}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c, err := teamwater.NewClient(srv.URL, teamwater.WithRetryConfig(fastRetry()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
}

func TestProbeFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := teamwater.NewClient(srv.URL, teamwater.WithRetryConfig(fastRetry()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if err := c.Probe(context.Background()); err == nil {
		t.Fatal("expected probe failure against dead API")
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := teamwater.NewClient("  "); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
