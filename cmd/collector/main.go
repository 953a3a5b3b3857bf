/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements a one-shot collection run. It pulls the
// donation feed once, merges it into the ledger files under DATA_DIR,
// and prints a markdown report. Nothing is published anywhere, so it
// is safe to run ad hoc or from CI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/C3lEst1512/teamwater-data/internal/collector"
	"github.com/C3lEst1512/teamwater-data/internal/config"
	"github.com/C3lEst1512/teamwater-data/internal/ledger"
	"github.com/C3lEst1512/teamwater-data/internal/report"
	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config.Collector
	if err := config.Load(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "loading config: %v", err)
	}

	api, err := teamwater.NewClient(cfg.APIBaseURL,
		teamwater.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout}))
	if err != nil {
		clog.FatalContextf(ctx, "building API client: %v", err)
	}
	if err := api.Probe(ctx); err != nil {
		clog.FatalContextf(ctx, "API not reachable at %s: %v", cfg.APIBaseURL, err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		clog.FatalContextf(ctx, "creating data directory: %v", err)
	}
	store := ledger.NewStore(osfs.New(cfg.DataDir))

	start := time.Now()
	res, err := collector.New(api).Collect(ctx, store)
	if err != nil {
		clog.FatalContextf(ctx, "collection failed: %v", err)
	}
	if cfg.SchemaExport {
		if err := store.WriteSchemas(); err != nil {
			clog.FatalContextf(ctx, "writing schemas: %v", err)
		}
	}

	session := report.Session{
		NewDonations: len(res.New),
		Tracked:      res.Tracked,
		Duration:     time.Since(start),
	}
	if res.TotalOK {
		session.TotalRaised = res.Total
	}
	fmt.Println(report.Summary(session))
	fmt.Println(report.Donations(store.Donations(ctx), cfg.ReportLimit))
	fmt.Print(report.Totals(store.Snapshots(ctx), cfg.ReportLimit))
}
