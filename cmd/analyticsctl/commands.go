package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-analytics/internal/analytics"
	"github.com/odyssey-erp/odyssey-analytics/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-analytics/jobs"
)

const commandTimeout = 30 * time.Second

type options struct {
	redis cache.Options
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "analyticsctl",
		Short:         "Operate the analytics worker queue and report cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultAddr := os.Getenv("REDIS_ADDR")
	if defaultAddr == "" {
		defaultAddr = "127.0.0.1:6379"
	}
	defaultDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	opts.redis.Password = os.Getenv("REDIS_PASSWORD")
	root.PersistentFlags().StringVar(&opts.redis.Addr, "redis", defaultAddr, "redis address (defaults to REDIS_ADDR)")
	root.PersistentFlags().IntVar(&opts.redis.DB, "redis-db", defaultDB, "redis logical database (defaults to REDIS_DB)")

	root.AddCommand(newJobsCmd(opts), newCacheCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the analyticsctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newJobsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage analytics background jobs",
	}

	var tenant string
	trigger := &cobra.Command{
		Use:       "trigger <warmup|invalidate>",
		Short:     "Enqueue an analytics job",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"warmup", "invalidate"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "invalidate" && tenant == "" {
				return fmt.Errorf("invalidate requires --tenant")
			}
			client := jobs.NewClient(opts.redis.Asynq())
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			info, err := client.Trigger(ctx, args[0], tenant)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().StringVar(&tenant, "tenant", "", "tenant to warm or invalidate")

	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := jobs.NewClient(opts.redis.Asynq())
			defer client.Close()

			s, err := client.Stats()
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), s, asJSON)
		},
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "print as JSON")

	cmd.AddCommand(trigger, stats)
	return cmd
}

func printStats(w io.Writer, s jobs.QueueStats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived)
	return tw.Flush()
}

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the analytics report cache",
	}
	invalidate := &cobra.Command{
		Use:   "invalidate <tenant>",
		Short: "Drop every cached report of a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			client, err := cache.New(ctx, opts.redis)
			if err != nil {
				return err
			}
			defer client.Close()

			svc := analytics.NewService(nil, analytics.NewRedisCache(client))
			if err := svc.Invalidate(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated analytics cache for tenant %s\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(invalidate)
	return cmd
}
