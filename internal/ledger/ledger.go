/*
Copyright 2025 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/C3lEst1512/teamwater-data/internal/teamwater"
)

const (
	// DonationsFile is the published per-donation ledger.
	DonationsFile = "donations.json"
	// TotalRaisedFile is the published running-total series.
	TotalRaisedFile = "total_raised.json"

	// snapshotCap bounds total_raised.json growth; only the most
	// recent entries are kept.
	snapshotCap = 100
)

// Record is one published donation: the upstream fields plus the time
// this pipeline first observed it.
type Record struct {
	teamwater.Donation
	RecordedAt string `json:"recorded_at,omitempty"`
}

// Snapshot is one entry of the running-total series. Timestamp is
// Unix milliseconds, LastUpdated the same instant in RFC3339.
type Snapshot struct {
	Amount      float64 `json:"amount"`
	Timestamp   int64   `json:"timestamp"`
	LastUpdated string  `json:"last_updated"`
}

// AppendResult reports what a donation merge did.
type AppendResult struct {
	// New holds the previously unseen donations that were recorded.
	New []Record
	// Added is how many previously unseen donations were recorded.
	Added int
	// Tracked is the total ledger size after the merge.
	Tracked int
	// Changed reports whether the file on disk was rewritten.
	Changed bool
}

// Store reads and writes the ledger files rooted at a filesystem.
type Store struct {
	fs    billy.Filesystem
	clock func() time.Time
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for recorded_at and
// snapshot timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		s.clock = clock
	}
}

// NewStore creates a Store over fs. The ledger files live at the root
// of fs.
func NewStore(fs billy.Filesystem, opts ...StoreOption) *Store {
	s := &Store{
		fs:    fs,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Donations loads the current donation ledger, newest first. A missing
// or unreadable file yields an empty ledger.
func (s *Store) Donations(ctx context.Context) []Record {
	records, _ := s.loadDonations(ctx)
	return records
}

// loadDonations additionally reports whether the file holds an intact
// record array, so AppendDonations can tell a clean empty ledger from
// a missing, half-written, or null one that needs rewriting.
func (s *Store) loadDonations(ctx context.Context) ([]Record, bool) {
	var records []Record
	if !s.loadJSON(ctx, DonationsFile, &records) {
		return nil, false
	}
	return records, records != nil
}

// Snapshots loads the current running-total series, oldest first.
func (s *Store) Snapshots(ctx context.Context) []Snapshot {
	var snapshots []Snapshot
	if !s.loadJSON(ctx, TotalRaisedFile, &snapshots) {
		return nil
	}
	return snapshots
}

// AppendDonations merges newly observed donations into the ledger.
// Donations whose ID is already recorded are skipped. The file is
// rewritten when the set changed, and also whenever it does not hold
// an intact array (first collection, half-written file), so the
// published repository always carries one.
func (s *Store) AppendDonations(ctx context.Context, donations []teamwater.Donation) (AppendResult, error) {
	log := clog.FromContext(ctx)

	existing, intact := s.loadDonations(ctx)
	known := make(map[teamwater.ID]struct{}, len(existing))
	for _, r := range existing {
		known[r.ID] = struct{}{}
	}

	recordedAt := s.clock().UTC().Format(time.RFC3339)
	var fresh []Record
	for _, d := range donations {
		if d.ID == "" {
			log.Warnf("Skipping donation with empty id (amount %v)", d.Amount)
			continue
		}
		if _, ok := known[d.ID]; ok {
			continue
		}
		known[d.ID] = struct{}{}
		fresh = append(fresh, Record{Donation: d, RecordedAt: recordedAt})
	}

	if len(fresh) == 0 && intact {
		return AppendResult{Tracked: len(existing)}, nil
	}

	merged := make([]Record, 0, len(fresh)+len(existing))
	merged = append(merged, fresh...)
	merged = append(merged, existing...)
	// Upstream completion times are ISO 8601, so a plain string sort
	// orders them chronologically. Newest first.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CompletedAt > merged[j].CompletedAt
	})

	if err := s.writeJSON(DonationsFile, merged); err != nil {
		return AppendResult{}, fmt.Errorf("writing %s: %w", DonationsFile, err)
	}
	return AppendResult{
		New:     fresh,
		Added:   len(fresh),
		Tracked: len(merged),
		Changed: true,
	}, nil
}

// AppendSnapshot records the campaign total if it differs from the
// most recent entry. The series is capped to the newest entries.
func (s *Store) AppendSnapshot(ctx context.Context, amount float64) (bool, error) {
	snapshots := s.Snapshots(ctx)
	if len(snapshots) > 0 && snapshots[len(snapshots)-1].Amount == amount {
		return false, nil
	}

	now := s.clock().UTC()
	snapshots = append(snapshots, Snapshot{
		Amount:      amount,
		Timestamp:   now.UnixMilli(),
		LastUpdated: now.Format(time.RFC3339),
	})
	if len(snapshots) > snapshotCap {
		snapshots = snapshots[len(snapshots)-snapshotCap:]
	}

	if err := s.writeJSON(TotalRaisedFile, snapshots); err != nil {
		return false, fmt.Errorf("writing %s: %w", TotalRaisedFile, err)
	}
	return true, nil
}

// loadJSON decodes name into out, tolerating absence and corruption.
// A half-written file from a killed process must not wedge the
// pipeline; collection rebuilds state from the API over time. Returns
// false when out must be treated as empty.
func (s *Store) loadJSON(ctx context.Context, name string, out any) bool {
	data, err := util.ReadFile(s.fs, name)
	if err != nil {
		if !os.IsNotExist(err) {
			clog.WarnContextf(ctx, "Failed to read %s, starting empty: %v", name, err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		clog.WarnContextf(ctx, "Corrupt %s, starting empty: %v", name, err)
		return false
	}
	return true
}

// writeJSON writes v as 2-space indented JSON with a trailing newline.
// HTML escaping is off so donor comments survive byte-for-byte.
func (s *Store) writeJSON(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	return util.WriteFile(s.fs, name, buf.Bytes(), 0o644)
}
