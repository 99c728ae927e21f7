package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/probeflow/internal/runtime/event"
	"github.com/drblury/probeflow/internal/runtime/jsoncodec"
	"github.com/drblury/probeflow/internal/runtime/namespace"
)

var varCmd = &cobra.Command{
	Use:   "var",
	Short: "Read, write or watch namespace variables",
}

var varGetCmd = &cobra.Command{
	Use:   "get <namespace> <name>",
	Short: "Print the value of a variable",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		proxy, err := svc.NamespaceProxy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		value, ok, err := proxy.GetVariable(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("variable %q is not set in namespace %q", args[1], args[0])
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(value))
		return err
	},
}

var varSetCmd = &cobra.Command{
	Use:   "set <namespace> <name> <json-value>",
	Short: "Set a variable and print its previous value",
	Long: `Set a variable to a JSON value. Bare words that are not valid JSON are
stored as strings.

Example:
  probeflow var set settings threshold 42
  probeflow var set settings mode eco`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		proxy, err := svc.NamespaceProxy(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		previous, err := proxy.SetVariable(cmd.Context(), args[1], parseValue(args[2]))
		if err != nil {
			return err
		}
		if previous == nil {
			previous = json.RawMessage("null")
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(previous))
		return err
	},
}

var varWatchCmd = &cobra.Command{
	Use:   "watch <namespace>",
	Short: "Print change events until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		out := cmd.OutOrStdout()
		_, err = svc.WatchNamespace(ctx, args[0], event.ListenerFunc(func(_ context.Context, e event.Event) {
			change, err := namespace.DecodeChange(e)
			if err != nil {
				return
			}
			_ = printResult(out, change)
		}))
		if err != nil {
			_ = svc.Close()
			return err
		}
		return svc.Start(ctx)
	},
}

// parseValue keeps valid JSON as is and quotes anything else.
func parseValue(arg string) json.RawMessage {
	if jsoncodec.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	quoted, _ := jsoncodec.Marshal(arg)
	return quoted
}

func init() {
	varCmd.AddCommand(varGetCmd)
	varCmd.AddCommand(varSetCmd)
	varCmd.AddCommand(varWatchCmd)
}
