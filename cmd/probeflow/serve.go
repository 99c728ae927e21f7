package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/probeflow/internal/runtime/probe"
	"github.com/drblury/probeflow/internal/runtime/registry"
)

var (
	probeTypes    []string
	probeExternal bool
	publishEvents bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a probe or a namespace until interrupted",
}

var serveProbeCmd = &cobra.Command{
	Use:   "probe <routing-key>",
	Short: "Serve a probe",
	Long: `Serve a probe under the given routing key on the RPC exchange.

With --external the probe is fed by events published to the same routing key
on the probes exchange, for example with "probeflow emit".

Example:
  probeflow serve probe cpu --types load,temperature --external`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		opts := []probe.Option{probe.WithEventTypes(probeTypes...)}
		var p *probe.Probe
		if probeExternal {
			external, err := svc.NewExternalProbe(ctx, args[0], opts...)
			if err != nil {
				_ = svc.Close()
				return fmt.Errorf("failed to start external probe: %w", err)
			}
			p = external.Probe
		} else {
			p = svc.NewProbe(args[0], opts...)
		}
		if err := svc.ServeProbe(ctx, p); err != nil {
			_ = svc.Close()
			return fmt.Errorf("failed to serve probe: %w", err)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Serving probe %s\n", args[0])
		return svc.Start(ctx)
	},
}

var serveNamespaceCmd = &cobra.Command{
	Use:   "namespace <routing-key>",
	Short: "Serve a namespace",
	Long: `Serve a namespace under the given routing key on the RPC exchange and
publish its change events to the namespace exchange. Variables are kept in
the store selected by variable_store (memory, sqlite, postgres or redis).

With --publish-events the change events are also published to the same
routing key on the probes exchange, so a probe can record them.

Example:
  probeflow serve namespace settings`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		n, err := svc.NewNamespace(ctx, args[0])
		if err != nil {
			_ = svc.Close()
			return fmt.Errorf("failed to open namespace: %w", err)
		}
		if err := svc.ServeNamespace(ctx, n); err != nil {
			_ = svc.Close()
			return fmt.Errorf("failed to serve namespace: %w", err)
		}
		if publishEvents {
			if _, err := svc.PublishEvents(ctx, registry.RoleNamespace, args[0]); err != nil {
				_ = svc.Close()
				return err
			}
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Serving namespace %s\n", args[0])
		return svc.Start(ctx)
	},
}

func init() {
	serveProbeCmd.Flags().StringSliceVar(&probeTypes, "types", nil, "accepted event types (default: all)")
	serveProbeCmd.Flags().BoolVar(&probeExternal, "external", false, "consume events from the probes exchange")
	serveNamespaceCmd.Flags().BoolVar(&publishEvents, "publish-events", false, "also publish change events to the probes exchange")

	serveCmd.AddCommand(serveProbeCmd)
	serveCmd.AddCommand(serveNamespaceCmd)
}
