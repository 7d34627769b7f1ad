package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/risk"
	"github.com/sells-group/curator-cli/internal/store"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the acquisition ledger",
	Long:  "Commands for listing committed acquisitions and checking them against the strategy limits.",
}

// -- ledger list --

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		artist, _ := cmd.Flags().GetString("artist")
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")

		entries, err := st.ListEntries(ctx, store.LedgerFilter{
			ArtistID: artist,
			Category: category,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "ledger list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No ledger entries found.")
			return nil
		}

		formatLedgerList(os.Stdout, entries)
		return nil
	},
}

// -- ledger stats --

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show spend, category allocation and reserve over the strategy window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Strategy.Validate(); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		strategy := risk.FromConfig(cfg.Strategy)
		window := model.Window{AsOf: time.Now().UTC(), Days: strategy.WindowDays}
		entries, err := st.ListEntries(ctx, store.LedgerFilter{Since: window.Since(), Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "ledger stats")
		}

		formatLedgerStats(os.Stdout, computeLedgerStats(entries, strategy))
		return nil
	},
}

func init() {
	ledgerListCmd.Flags().String("artist", "", "filter by artist id")
	ledgerListCmd.Flags().String("category", "", "filter by category")
	ledgerListCmd.Flags().Int("limit", 50, "max number of entries to display")

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerStatsCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// categoryStats is the spend of one category against its ceiling.
type categoryStats struct {
	Category string
	Spent    decimal.Decimal
	Share    decimal.Decimal
	Ceiling  float64
}

// ledgerStats holds window aggregates computed from ledger entries.
type ledgerStats struct {
	WindowDays   int
	Entries      int
	Spent        decimal.Decimal
	ReserveRatio decimal.Decimal
	MinReserve   decimal.Decimal
	Categories   []categoryStats
	Artists      map[string]int
	MaxPerArtist int
}

// computeLedgerStats aggregates entries the same way the risk filter reads
// the ledger: shares are of total capital, not of spend.
func computeLedgerStats(entries []model.LedgerEntry, s risk.Strategy) ledgerStats {
	out := ledgerStats{
		WindowDays:   s.WindowDays,
		Entries:      len(entries),
		Spent:        decimal.Zero,
		MinReserve:   s.MinReserveRatio,
		Artists:      make(map[string]int),
		MaxPerArtist: s.MaxPerArtist,
	}

	byCategory := make(map[string]decimal.Decimal)
	for _, e := range entries {
		out.Spent = out.Spent.Add(e.Price)
		byCategory[e.Category] = byCategory[e.Category].Add(e.Price)
		out.Artists[e.ArtistID]++
	}

	if s.Capital.IsPositive() {
		out.ReserveRatio = s.Capital.Sub(out.Spent).Div(s.Capital).Round(4)
	}
	for cat, spent := range byCategory {
		cs := categoryStats{Category: cat, Spent: spent, Ceiling: s.Allocation.Ceiling(cat)}
		if s.Capital.IsPositive() {
			cs.Share = spent.Div(s.Capital).Round(4)
		}
		out.Categories = append(out.Categories, cs)
	}
	sort.Slice(out.Categories, func(i, j int) bool {
		return out.Categories[i].Category < out.Categories[j].Category
	})
	return out
}

// formatLedgerList writes a tabular list of ledger entries to w.
func formatLedgerList(out io.Writer, entries []model.LedgerEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tSESSION\tCANDIDATE\tARTIST\tCATEGORY\tPRICE")
	_, _ = fmt.Fprintln(w, "----\t-------\t---------\t------\t--------\t-----")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s %s\n",
			e.Date.Format(time.DateOnly),
			truncateID(e.SessionID),
			e.CandidateID,
			e.ArtistID,
			e.Category,
			e.Price.String(),
			e.Currency,
		)
	}
	_ = w.Flush()
}

// formatLedgerStats writes window aggregates to w.
func formatLedgerStats(out io.Writer, s ledgerStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dd\n", s.WindowDays)
	_, _ = fmt.Fprintf(w, "Acquisitions:\t%d\n", s.Entries)
	_, _ = fmt.Fprintf(w, "Spent:\t%s\n", s.Spent.String())
	_, _ = fmt.Fprintf(w, "Reserve ratio:\t%s (min %s)\n", s.ReserveRatio.String(), s.MinReserve.String())
	for _, c := range s.Categories {
		_, _ = fmt.Fprintf(w, "  %s:\t%s (%s of capital, ceiling %g)\n", c.Category, c.Spent.String(), c.Share.String(), c.Ceiling)
	}

	artists := make([]string, 0, len(s.Artists))
	for a := range s.Artists {
		artists = append(artists, a)
	}
	sort.Strings(artists)
	for _, a := range artists {
		n := s.Artists[a]
		marker := ""
		if s.MaxPerArtist > 0 && n >= s.MaxPerArtist {
			marker = " (at cap)"
		}
		_, _ = fmt.Fprintf(w, "  artist %s:\t%d%s\n", a, n, marker)
	}
	_ = w.Flush()
}
