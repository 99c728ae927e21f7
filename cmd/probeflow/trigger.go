package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/probeflow/internal/runtime/event"
	"github.com/drblury/probeflow/internal/runtime/registry"
	"github.com/drblury/probeflow/internal/runtime/trigger"
)

var triggerPublishKey string

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Validate or run cron triggers",
	Long: `Cron expressions take five or six fields (seconds optional) or a
descriptor such as @every 10s, @hourly or @daily.`,
}

var triggerValidateCmd = &cobra.Command{
	Use:   "validate <expression>",
	Short: "Check a cron expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := trigger.ParseExpression(args[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
		return err
	},
}

var triggerRunCmd = &cobra.Command{
	Use:   "run <expression>",
	Short: "Print interval events until interrupted",
	Long: `Run a trigger and print every interval event. With --publish the events
are also published to that routing key on the probes exchange.

Example:
  probeflow trigger run "@every 5s" --publish heartbeat`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := trigger.ParseExpression(args[0]); err != nil {
			return err
		}
		svc, err := newService(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		if triggerPublishKey != "" {
			producer, err := svc.PublishEvents(ctx, registry.RoleMonitor, triggerPublishKey)
			if err != nil {
				_ = svc.Close()
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Publishing interval events to %s\n", producer.RoutingKey())
		}

		out := cmd.OutOrStdout()
		_, err = svc.NewTrigger(args[0], trigger.WithListener(event.ListenerFunc(func(_ context.Context, e event.Event) {
			_ = printResult(out, e)
		})))
		if err != nil {
			_ = svc.Close()
			return err
		}
		return svc.Start(ctx)
	},
}

func init() {
	triggerRunCmd.Flags().StringVar(&triggerPublishKey, "publish", "", "probe routing key to publish interval events to")

	triggerCmd.AddCommand(triggerValidateCmd)
	triggerCmd.AddCommand(triggerRunCmd)
}
