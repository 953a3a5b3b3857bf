/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/C3lEst1512/teamwater-data/internal/retry"
)

var (
	errFlaky  = errors.New("connection reset by peer")
	errDenied = errors.New("authentication required")
)

// fastConfig keeps backoff waits in the microsecond range so the
// exhaustion cases finish quickly.
func fastConfig(maxRetries int) retry.Config {
	return retry.Config{
		MaxRetries:  maxRetries,
		BaseBackoff: time.Microsecond,
		MaxBackoff:  10 * time.Microsecond,
	}
}

func TestDo(t *testing.T) {
	t.Parallel()
	transient := func(err error) bool { return errors.Is(err, errFlaky) }

	for _, tc := range []struct {
		name string
		// failures is how many times fn fails before it succeeds.
		failures     int
		err          error
		maxRetries   int
		wantAttempts int
		wantErr      error
		wantInErr    string
	}{{
		name:         "first try",
		maxRetries:   3,
		wantAttempts: 1,
	}, {
		name:         "recovers within budget",
		failures:     2,
		err:          errFlaky,
		maxRetries:   3,
		wantAttempts: 3,
	}, {
		name:         "budget exhausted",
		failures:     10,
		err:          errFlaky,
		maxRetries:   2,
		wantAttempts: 3,
		wantErr:      errFlaky,
		wantInErr:    "donations poll failed after 2 retries",
	}, {
		name:         "non-retryable stops immediately",
		failures:     10,
		err:          errDenied,
		maxRetries:   3,
		wantAttempts: 1,
		wantErr:      errDenied,
	}, {
		name:         "zero budget means one attempt",
		failures:     10,
		err:          errFlaky,
		maxRetries:   0,
		wantAttempts: 1,
		wantErr:      errFlaky,
	}} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			attempts := 0
			got, err := retry.Do(context.Background(), fastConfig(tc.maxRetries), "donations poll", transient, func() (string, error) {
				attempts++
				if attempts <= tc.failures {
					return "", tc.err
				}
				return "fetched", nil
			})
			if attempts != tc.wantAttempts {
				t.Fatalf("made %d attempts, want %d", attempts, tc.wantAttempts)
			}
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("Do: %v", err)
				}
				if got != "fetched" {
					t.Fatalf("Do = %q, want %q", got, "fetched")
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Do error = %v, want %v", err, tc.wantErr)
			}
			if tc.wantInErr != "" && !strings.Contains(err.Error(), tc.wantInErr) {
				t.Fatalf("Do error = %q, missing %q", err, tc.wantInErr)
			}
		})
	}
}

func TestDoStopsWhenCanceledMidBackoff(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	// A backoff long enough that only cancellation can end the wait.
	cfg := retry.Config{MaxRetries: 5, BaseBackoff: time.Minute}

	attempts := 0
	_, err := retry.Do(ctx, cfg, "push", func(error) bool { return true }, func() (struct{}, error) {
		attempts++
		cancel()
		return struct{}{}, errFlaky
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("made %d attempts, want 1", attempts)
	}
}

func TestDefault(t *testing.T) {
	t.Parallel()
	want := retry.Config{
		MaxRetries:  4,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
	if diff := cmp.Diff(want, retry.Default()); diff != "" {
		t.Fatalf("Default() mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name    string
		cfg     retry.Config
		wantErr bool
	}{
		{"default is valid", retry.Default(), false},
		{"zero is valid", retry.Config{}, false},
		{"negative retries", retry.Config{MaxRetries: -1}, true},
		{"negative base backoff", retry.Config{BaseBackoff: -time.Second}, true},
		{"negative max backoff", retry.Config{MaxBackoff: -time.Second}, true},
		{"negative jitter", retry.Config{MaxJitter: -time.Second}, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
