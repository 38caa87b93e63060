package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"pendant/internal/ledger"
)

const shortIDLength = 12

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the processed-recordings ledger",
	}

	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRetryCommand(ctx))
	ledgerCmd.AddCommand(newLedgerRemoveCommand(ctx))
	ledgerCmd.AddCommand(newLedgerStatsCommand(ctx))

	return ledgerCmd
}

type ledgerEntryView struct {
	Identity      string `json:"identity"`
	Status        string `json:"status"`
	File          string `json:"file"`
	SourcePath    string `json:"source_path"`
	Attempts      int    `json:"attempts"`
	Held          bool   `json:"held"`
	FailureReason string `json:"failure_reason,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withLedger(func(store *ledger.Store, _ bool) error {
				entries, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]ledgerEntryView, 0, len(entries))
					for _, e := range entries {
						views = append(views, ledgerEntryView{
							Identity:      e.Identity,
							Status:        string(e.Status),
							File:          filepath.Base(e.SourcePath),
							SourcePath:    e.SourcePath,
							Attempts:      e.Attempts,
							Held:          e.Held,
							FailureReason: e.FailureReason,
							UpdatedAt:     e.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
						})
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Ledger is empty")
					return nil
				}
				fmt.Fprintln(out, renderLedgerEntries(entries))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (pending, done, failed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderLedgerEntries(entries []ledger.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := string(e.Status)
		if e.Held {
			status += " (in flight)"
		}
		rows = append(rows, []string{
			shortID(e.Identity),
			filepath.Base(e.SourcePath),
			status,
			strconv.Itoa(e.Attempts),
			humanize.Time(e.UpdatedAt),
			e.FailureReason,
		})
	}
	caption := fmt.Sprintf("%d %s", len(entries), pluralize(len(entries), "entry", "entries"))
	return renderTable(
		[]string{"ID", "File", "Status", "Attempts", "Updated", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
		caption,
	)
}

func newLedgerRetryCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Forget failed entries so the next scan processes them again",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !all {
				return errors.New("specify entry ids or --all")
			}
			return ctx.withLedger(func(store *ledger.Store, _ bool) error {
				ids, err := resolveIdentities(cmd.Context(), store, args)
				if err != nil {
					return err
				}
				cleared, err := store.Retry(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if cleared == 0 {
					fmt.Fprintln(out, "No failed entries matched")
					return nil
				}
				fmt.Fprintf(out, "Cleared %d failed %s; they will be processed on the next scan\n",
					cleared, pluralize(int(cleared), "entry", "entries"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retry every failed entry")
	return cmd
}

func newLedgerRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a ledger entry regardless of status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store, _ bool) error {
				id, err := store.Resolve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				removed, err := store.Remove(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("entry %s is in flight; wait for it to finish", shortID(id))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", shortID(id))
				return nil
			})
		},
	}
}

func newLedgerStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count ledger entries by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store, _ bool) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					out := make(map[string]int, len(stats))
					for status, n := range stats {
						out[string(status)] = n
					}
					return writeJSON(cmd, out)
				}
				rows := make([][]string, 0, len(stats))
				total := 0
				for _, status := range ledger.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
					total += stats[status]
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
					fmt.Sprintf("%d total", total),
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func parseStatuses(values []string) ([]ledger.Status, error) {
	statuses := make([]ledger.Status, 0, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, err := ledger.ParseStatus(value)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func resolveIdentities(ctx context.Context, store *ledger.Store, prefixes []string) ([]string, error) {
	ids := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		id, err := store.Resolve(ctx, prefix)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func shortID(identity string) string {
	if len(identity) <= shortIDLength {
		return identity
	}
	return identity[:shortIDLength]
}

func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
