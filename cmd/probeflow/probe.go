package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/probeflow/internal/runtime/probe"
)

var sinceFlag string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Query a remote probe",
	Long: `Query the probe served under a routing key. Every query covers the
events from --since up to now. --since accepts a nanosecond timestamp, an
RFC 3339 time or a duration such as 5m, meaning that long ago.`,
}

// parseSince turns a --since value into a nanosecond timestamp.
func parseSince(value string, now time.Time) (int64, error) {
	if value == "" {
		return 0, nil
	}
	if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ts, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d).UnixNano(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UnixNano(), nil
	}
	return 0, fmt.Errorf("invalid --since value %q", value)
}

type probeQuery func(ctx context.Context, p *probe.Proxy, ts int64) (any, error)

func newProbeQueryCmd(use, short string, query probeQuery) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <routing-key>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := parseSince(sinceFlag, time.Now())
			if err != nil {
				return err
			}
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			proxy, err := svc.ProbeProxy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			result, err := query(cmd.Context(), proxy, ts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}
}

func init() {
	probeCmd.PersistentFlags().StringVar(&sinceFlag, "since", "", "start of the window (default: the beginning)")

	probeCmd.AddCommand(newProbeQueryCmd("count", "Count the events in the window",
		func(ctx context.Context, p *probe.Proxy, ts int64) (any, error) { return p.Count(ctx, ts) }))
	probeCmd.AddCommand(newProbeQueryCmd("fetch", "Print the events in the window",
		func(ctx context.Context, p *probe.Proxy, ts int64) (any, error) { return p.Fetch(ctx, ts) }))
	probeCmd.AddCommand(newProbeQueryCmd("clean", "Remove the events in the window",
		func(ctx context.Context, p *probe.Proxy, ts int64) (any, error) { return p.CleanData(ctx, ts) }))
	probeCmd.AddCommand(newProbeQueryCmd("count-and-clean", "Count and remove the events in the window",
		func(ctx context.Context, p *probe.Proxy, ts int64) (any, error) { return p.CountAndClean(ctx, ts) }))
	probeCmd.AddCommand(newProbeQueryCmd("fetch-and-clean", "Print and remove the events in the window",
		func(ctx context.Context, p *probe.Proxy, ts int64) (any, error) { return p.FetchAndClean(ctx, ts) }))
}
