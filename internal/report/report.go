/*
Copyright 2026 The teamwater-data Authors
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/C3lEst1512/teamwater-data/internal/ledger"
)

// Session describes one collection pass for human-readable output.
type Session struct {
	NewDonations int
	Tracked      int
	TotalRaised  float64
	Published    bool
	Revision     string
	Duration     time.Duration
}

// Donations renders the newest ledger entries as a table. Records are
// expected newest first, the way the ledger stores them.
func Donations(records []ledger.Record, limit int) string {
	if len(records) == 0 {
		return "No donations recorded yet.\n"
	}
	total := len(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	var buf bytes.Buffer
	table := newTable(&buf, "Completed", "Donor", "Amount", "Comment")
	for _, r := range records {
		_ = table.Append([]string{
			formatTime(r.CompletedAt),
			displayName(r.DonorName),
			fmt.Sprintf("$%.2f", r.Amount.Float64()),
			truncate(r.DonorComment, 48),
		})
	}
	_ = table.Render()
	return fmt.Sprintf("## Recent Donations (%d of %d)\n\n%s", len(records), total, buf.String())
}

// Totals renders the tail of the running-total series in
// chronological order, with the change each entry represents.
func Totals(snapshots []ledger.Snapshot, limit int) string {
	if len(snapshots) == 0 {
		return "No total snapshots recorded yet.\n"
	}
	total := len(snapshots)
	show := snapshots
	if limit > 0 && len(show) > limit {
		show = show[len(show)-limit:]
	}
	hidden := total - len(show)

	var buf bytes.Buffer
	table := newTable(&buf, "Recorded", "Total Raised", "Change")
	for i, s := range show {
		change := "-"
		switch {
		case i > 0:
			change = fmt.Sprintf("%+.2f", s.Amount-show[i-1].Amount)
		case hidden > 0:
			change = fmt.Sprintf("%+.2f", s.Amount-snapshots[hidden-1].Amount)
		}
		_ = table.Append([]string{
			formatTime(s.LastUpdated),
			fmt.Sprintf("$%.2f", s.Amount),
			change,
		})
	}
	_ = table.Render()
	return fmt.Sprintf("## Total Raised (last %d of %d)\n\n%s", len(show), total, buf.String())
}

// Summary renders the outcome of a collection pass.
func Summary(s Session) string {
	var buf bytes.Buffer
	table := newTable(&buf, "Metric", "Value")
	_ = table.Append([]string{"New donations", strconv.Itoa(s.NewDonations)})
	_ = table.Append([]string{"Tracked donations", strconv.Itoa(s.Tracked)})
	if s.TotalRaised > 0 {
		_ = table.Append([]string{"Total raised", fmt.Sprintf("$%.2f", s.TotalRaised)})
	}
	published := "no"
	if s.Published {
		published = "yes"
	}
	_ = table.Append([]string{"Published", published})
	if s.Revision != "" {
		_ = table.Append([]string{"Revision", shortRevision(s.Revision)})
	}
	if s.Duration > 0 {
		_ = table.Append([]string{"Duration", s.Duration.Round(time.Millisecond).String()})
	}
	_ = table.Render()
	return fmt.Sprintf("## Collection Summary\n\n%s", buf.String())
}

// formatTime compacts an RFC3339 timestamp for table cells, falling
// back to the raw value when it does not parse.
func formatTime(s string) string {
	if s == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func displayName(name string) string {
	if name == "" {
		return "Anonymous"
	}
	return name
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
