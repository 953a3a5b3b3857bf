/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the live donation watcher. It polls the
// feed every second, appends anything new to the ledger files under
// DATA_DIR, and logs each donation as it lands. Stop it with Ctrl-C.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/C3lEst1512/teamwater-data/internal/config"
	"github.com/C3lEst1512/teamwater-data/internal/ledger"
	"github.com/C3lEst1512/teamwater-data/internal/monitor"
	"github.com/C3lEst1512/teamwater-data/internal/report"
	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
)

// reportLimit caps the donations table printed on shutdown.
const reportLimit = 10

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config.Monitor
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

	m := monitor.New(api, store,
		monitor.WithPollInterval(cfg.PollInterval),
		monitor.WithStatusInterval(cfg.StatusInterval),
		monitor.WithErrorPolicy(cfg.MaxPollErrors, cfg.ErrorPause))
	stats := m.Run(ctx)

	log := clog.FromContext(ctx).
		With("polls", stats.Polls).
		With("errors", stats.Errors)
	if stats.TotalRaised > 0 {
		log = log.With("total_raised", stats.TotalRaised)
	}
	log.Infof("Session recorded %d new donations (%d tracked)", stats.NewDonations, stats.Tracked)
	fmt.Print(report.Donations(store.Donations(ctx), reportLimit))
}
