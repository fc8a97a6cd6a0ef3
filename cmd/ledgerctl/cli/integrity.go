package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// ExitUnbalanced is returned by IntegrityCommand when any entry fails the check.
const ExitUnbalanced = 10

// IntegrityOptions defines available flags for the integrity command.
type IntegrityOptions struct {
	Window     time.Duration
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
	Now        func() time.Time
}

// IntegritySummary describes the JSON response of the integrity command.
type IntegritySummary struct {
	OK         bool                `json:"ok"`
	Since      time.Time           `json:"since"`
	Unbalanced []UnbalancedSummary `json:"unbalanced"`
}

// UnbalancedSummary is one failing entry.
type UnbalancedSummary struct {
	CompanyID      int64  `json:"company_id"`
	EntryID        int64  `json:"entry_id"`
	DocumentNumber string `json:"document_number"`
	TotalDebit     string `json:"total_debit"`
	TotalCredit    string `json:"total_credit"`
	LineDebit      string `json:"line_debit"`
	LineCredit     string `json:"line_credit"`
	Lines          int    `json:"lines"`
}

// IntegrityCommand runs the balance check inline and prints the outcome.
func IntegrityCommand(ctx context.Context, store jobs.IntegrityStore, opts IntegrityOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Window <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "integrity: --window must be positive")
		return 1
	}
	since := opts.Now().UTC().Add(-opts.Window)
	entries, err := store.UnbalancedEntries(ctx, since)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "integrity: %v\n", err)
		return 1
	}
	summary := IntegritySummary{OK: len(entries) == 0, Since: since, Unbalanced: make([]UnbalancedSummary, 0, len(entries))}
	for _, e := range entries {
		summary.Unbalanced = append(summary.Unbalanced, UnbalancedSummary{
			CompanyID:      e.CompanyID,
			EntryID:        e.EntryID,
			DocumentNumber: e.DocumentNumber,
			TotalDebit:     e.TotalDebit.StringFixed(2),
			TotalCredit:    e.TotalCredit.StringFixed(2),
			LineDebit:      e.LineDebit.StringFixed(2),
			LineCredit:     e.LineCredit.StringFixed(2),
			Lines:          e.LineCount,
		})
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		renderIntegrityHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitUnbalanced
	}
	return 0
}

func renderIntegrityHuman(out io.Writer, summary IntegritySummary) {
	_, _ = fmt.Fprintf(out, "Journal integrity since %s\n", summary.Since.Format(time.RFC3339))
	if summary.OK {
		_, _ = fmt.Fprintln(out, "All entries balance.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d unbalanced entr(ies):\n", len(summary.Unbalanced))
	for _, u := range summary.Unbalanced {
		_, _ = fmt.Fprintf(out, " - company %d %s (id %d): header %s/%s lines %s/%s over %d line(s)\n",
			u.CompanyID, u.DocumentNumber, u.EntryID, u.TotalDebit, u.TotalCredit, u.LineDebit, u.LineCredit, u.Lines)
	}
}
