package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/harun/bounter/internal/config"
	"github.com/harun/bounter/pkg/session"
)

var pruneOlderThan time.Duration

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect and clean up saved scan reports",
}

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved scan reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		return listReports(cmd.Context(), store, cmd.OutOrStdout())
	},
}

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete reports older than a retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		stats, err := store.Prune(pruneOlderThan, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d, deleted %d, kept %d\n", stats.Scanned, stats.Deleted, stats.Kept)
		return nil
	},
}

func init() {
	reportsPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", session.DefaultRetention, "delete reports not modified within this period")
	reportsCmd.AddCommand(reportsListCmd, reportsPruneCmd)
	rootCmd.AddCommand(reportsCmd)
}

// openStore skips validation: listing reports must work without API keys.
func openStore() (*session.Store, error) {
	cfg, err := config.NewLoader(cfgFile).WithEnvFile(envFile).Load()
	if err != nil {
		return nil, err
	}
	return session.NewStore(cfg.Report.Dir, cfg.Report.Prefix)
}

func listReports(ctx context.Context, store *session.Store, out io.Writer) error {
	keys, err := store.List()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Fprintln(out, "No reports found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPORT\tTARGET\tDURATION\tCOMMANDS\tSTATUS")
	for _, key := range keys {
		snap, err := store.LoadSnapshot(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("report", key).Msg("Skipping unreadable report")
			continue
		}
		duration, status := "-", "incomplete"
		if snap.EndTime != nil {
			duration = formatDuration(snap.EndTime.Sub(snap.StartTime))
			status = "complete"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", key, snap.Target, duration, len(snap.Commands), status)
	}
	return w.Flush()
}
