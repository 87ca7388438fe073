// Package main implements crmctl, an admin CLI that runs CRM jobs and
// maintenance operations in-process against the configured store.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ignite/outreach-crm/internal/app"
	"github.com/ignite/outreach-crm/internal/config"
)

var (
	// configPath is the YAML config file shared with the server and worker
	configPath string
	// crm is built by the root command before any subcommand runs
	crm *app.App
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crmctl",
	Short: "Admin CLI for the outreach CRM",
	Long: `crmctl runs the outreach jobs and maintenance operations directly against
the configured database, without going through the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadFromEnv(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		app.ConfigureLogging(cfg.Log)
		crm, err = app.New(cmd.Context(), cfg)
		return err
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if crm == nil {
			return nil
		}
		return crm.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(jobsCmd, runCmd, promoteCmd, statsCmd, newsCmd)
}

// jobsCmd lists the registered jobs
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List registered jobs and their schedules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status := crm.Scheduler.Status()
		names := make([]string, 0, len(status))
		for name := range status {
			names = append(names, name)
		}
		sort.Strings(names)
		out := cmd.OutOrStdout()
		for _, name := range names {
			st := status[name]
			next := "-"
			if st.NextRun != nil {
				next = st.NextRun.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "%-20s %-14s next %s\n", name, st.Schedule, next)
		}
		return nil
	},
}

// runCmd executes one job synchronously
var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run a job now and print its report",
	Long: `Run a job synchronously. The job takes the same distributed lock as the
scheduler, so the command fails if a worker is executing it right now.

Examples:
  crmctl run scan_events
  crmctl run send_pending --config /etc/crm/config.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := crm.Scheduler.RunJobManually(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

// promoteCmd moves every draft to to_send
var promoteCmd = &cobra.Command{
	Use:   "promote-drafts",
	Short: "Queue every draft message for sending",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := crm.Service.PromoteDrafts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "promoted %d drafts\n", n)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := crm.Service.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var newsCmd = &cobra.Command{
	Use:   "news <person-id>",
	Short: "Search recent news about a person without recording triggers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid person id %q", args[0])
		}
		hits, err := crm.Scanner.SearchPerson(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), hits)
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
