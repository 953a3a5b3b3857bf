/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

// Package main implements the publishing daemon: on a fixed schedule
// it collects TeamWater donation data into the ledger files and
// publishes whatever changed to the data repository.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	_ "github.com/chainguard-dev/clog/gcp/init"
	"github.com/chainguard-dev/terraform-infra-common/pkg/httpmetrics"
	"github.com/chainguard-dev/terraform-infra-common/pkg/profiler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/C3lEst1512/teamwater-data/internal/collector"
	"github.com/C3lEst1512/teamwater-data/internal/config"
	"github.com/C3lEst1512/teamwater-data/internal/gitrepo"
	"github.com/C3lEst1512/teamwater-data/internal/publish"
	"github.com/C3lEst1512/teamwater-data/internal/schedule"
	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
	"github.com/C3lEst1512/teamwater-data/internal/updater"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go httpmetrics.ScrapeDiskUsage(ctx)
	profiler.SetupProfiler()
	defer httpmetrics.SetupTracer(ctx)()

	var cfg config.Updater
	if err := config.Load(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "loading config: %v", err)
	}

	api, err := teamwater.NewClient(cfg.APIBaseURL,
		teamwater.WithHTTPClient(&http.Client{Timeout: cfg.APITimeout}))
	if err != nil {
		clog.FatalContextf(ctx, "building API client: %v", err)
	}

	pub, err := newPublisher(ctx, &cfg)
	if err != nil {
		clog.FatalContextf(ctx, "building publisher: %v", err)
	}

	u := updater.New(pub, collector.New(api),
		updater.WithSchemaExport(cfg.SchemaExport))
	sched := &schedule.Scheduler{
		Interval:               cfg.Interval,
		AlignToInterval:        cfg.AlignToInterval,
		RunOnStart:             cfg.RunOnStart,
		Timeout:                cfg.CycleTimeout,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
	}

	clog.InfoContextf(ctx, "Starting auto-updater: %s every %s", describeTarget(&cfg), cfg.Interval)

	eg, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsPort != 0 {
		eg.Go(func() error {
			return serveMetrics(ctx, cfg.MetricsPort, cfg.EnablePprof)
		})
	}
	eg.Go(func() error {
		return sched.Run(ctx, func(ctx context.Context) error {
			_, err := u.RunOnce(ctx)
			return err
		})
	})
	if err := eg.Wait(); err != nil {
		clog.FatalContextf(ctx, "auto-updater failed: %v", err)
	}
	clog.InfoContextf(ctx, "Shutdown complete")
}

// newPublisher picks the publishing transport from the configuration.
func newPublisher(ctx context.Context, cfg *config.Updater) (publish.Publisher, error) {
	ts, err := cfg.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	switch cfg.Publisher {
	case config.PublisherGit:
		opts := []gitrepo.Option{gitrepo.WithIdentity(cfg.CommitAuthor, cfg.CommitEmail)}
		if ts != nil {
			opts = append(opts, gitrepo.WithTokenSource(ts))
		}
		mgr, err := gitrepo.New(cfg.RepoURL, cfg.Branch, cfg.ResolveWorkDir(), opts...)
		if err != nil {
			return nil, err
		}
		return publish.NewGitPublisher(mgr), nil
	case config.PublisherGitHub:
		if ts == nil {
			return nil, errors.New("PUBLISHER=github requires GITHUB_TOKEN or GITHUB_TOKEN_FILE")
		}
		client := publish.NewGitHubClient(ctx, ts)
		return publish.NewGitHubPublisher(client, cfg.GitHubOwner, cfg.GitHubRepo, cfg.Branch,
			publish.WithCommitter(cfg.CommitAuthor, cfg.CommitEmail))
	default:
		return nil, fmt.Errorf("unknown publisher %q", cfg.Publisher)
	}
}

func describeTarget(cfg *config.Updater) string {
	if cfg.Publisher == config.PublisherGitHub {
		return fmt.Sprintf("publishing to github.com/%s/%s@%s", cfg.GitHubOwner, cfg.GitHubRepo, cfg.Branch)
	}
	return fmt.Sprintf("publishing to %s@%s", cfg.RepoURL, cfg.Branch)
}

// serveMetrics exposes the Prometheus scrape endpoint, and pprof when
// enabled, until ctx ends.
func serveMetrics(ctx context.Context, port int, enablePprof bool) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
