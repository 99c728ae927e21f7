package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/probeflow/internal/runtime/broker"
	"github.com/drblury/probeflow/internal/runtime/event"
)

var emitCmd = &cobra.Command{
	Use:   "emit <routing-key> <event-type> <json-payload>",
	Short: "Publish an event to a probe routing key",
	Long: `Publish one event to the probes exchange. External probes serving the
routing key ingest it.

Example:
  probeflow emit cpu load 0.75`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		ep, err := svc.Endpoint(cmd.Context(), svc.Conf.ProbesExchange)
		if err != nil {
			return err
		}
		e, err := event.New(args[1], parseValue(args[2]))
		if err != nil {
			return err
		}
		if err := broker.NewProducer(ep, args[0], svc.Logger).Publish(cmd.Context(), e); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		return printResult(cmd.OutOrStdout(), e.ID)
	},
}
