package cmd

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/api"
	"github.com/hugo-lorenzo-mato/actorfabric/pkg/durable"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <actor-id> [payload-json]",
	Short: "Invoke an actor synchronously and print its result",
	Example: `  actorfabric invoke counter-1 '{"action":"increment","amount":5}'
  actorfabric invoke counter-1 '{"method":"GET"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInvoke,
}

var sendCmd = &cobra.Command{
	Use:   "send <actor-id> [payload-json]",
	Short: "Queue a message in an actor's mailbox",
	Long: `Queue a message in an actor's mailbox. Messages for one actor are
processed in order. With --coalesce, requests sent within the window are
merged into a single message and share one batch id.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

var signalCmd = &cobra.Command{
	Use:     "signal <actor-id> <type> [payload-json]",
	Short:   "Publish a signal to an actor",
	Example: `  actorfabric signal counter-1 Adjust '{"action":"set","amount":10}'`,
	Args:    cobra.RangeArgs(2, 3),
	RunE:    runSignal,
}

var alarmCmd = &cobra.Command{
	Use:   "alarm <actor-id> <name> <delay>",
	Short: "Schedule a named alarm",
	Long: `Schedule a named alarm. The delay is a number followed by s, m, h or d,
or a bare number of milliseconds.`,
	Example: `  actorfabric alarm counter-1 reset 1h`,
	Args:    cobra.ExactArgs(3),
	RunE:    runAlarm,
}

var stateCmd = &cobra.Command{
	Use:   "state <actor-id>",
	Short: "Show an actor's persisted state",
	Args:  cobra.ExactArgs(1),
	RunE:  runState,
}

var (
	sendDedupID  string
	sendCoalesce bool
	sendWindow   time.Duration
	stateJSON    bool
)

func init() {
	rootCmd.AddCommand(invokeCmd, sendCmd, signalCmd, alarmCmd, stateCmd)

	sendCmd.Flags().StringVar(&sendDedupID, "dedup-id", "",
		"deduplication id; repeats within the dedup window are dropped")
	sendCmd.Flags().BoolVar(&sendCoalesce, "coalesce", false,
		"merge with other requests sent within the coalescing window")
	sendCmd.Flags().DurationVar(&sendWindow, "window", 0,
		"coalescing window (default: mailbox.coalesce_window)")
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "print the raw record")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(optionalArg(args, 1))
	if err != nil {
		return err
	}
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var result durable.Payload
	if err := client.do(cmd.Context(), http.MethodPost, actorPath(args[0], "/invoke"), payload, &result); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runSend(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(optionalArg(args, 1))
	if err != nil {
		return err
	}
	if sendCoalesce && sendDedupID != "" {
		return fmt.Errorf("--dedup-id cannot be combined with --coalesce; the batch id is the dedup id")
	}
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var resp api.AcceptedResponse
	if sendCoalesce {
		req := api.CoalesceRequest{Request: payload, WindowMs: sendWindow.Milliseconds()}
		if err := client.do(cmd.Context(), http.MethodPost, actorPath(args[0], "/coalesce"), req, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued in batch %s\n", resp.BatchID)
		return nil
	}

	req := api.SendRequest{Payload: payload, DedupID: sendDedupID}
	if err := client.do(cmd.Context(), http.MethodPost, actorPath(args[0], "/messages"), req, &resp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued event %s\n", resp.EventID)
	return nil
}

func runSignal(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(optionalArg(args, 2))
	if err != nil {
		return err
	}
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	req := api.SignalRequest{Type: args[1], Payload: payload}
	if err := client.do(cmd.Context(), http.MethodPost, actorPath(args[0], "/signals"), req, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signal %s sent to %s\n", args[1], args[0])
	return nil
}

func runAlarm(cmd *cobra.Command, args []string) error {
	delay := durable.Delay(args[2])
	if _, err := delay.Duration(); err != nil {
		return err
	}
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var resp api.AcceptedResponse
	req := api.AlarmRequest{Name: args[1], Delay: delay}
	if err := client.do(cmd.Context(), http.MethodPost, actorPath(args[0], "/alarms"), req, &resp); err != nil {
		return err
	}
	if resp.FireTime != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "alarm %s fires at %s\n", args[1], resp.FireTime.Local().Format(time.RFC3339))
	}
	return nil
}

func runState(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var st api.StateResponse
	if err := client.do(cmd.Context(), http.MethodGet, actorPath(args[0], "/state"), nil, &st); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if stateJSON {
		return printJSON(out, st)
	}

	printTitle(out, "Actor "+st.ActorID)
	printField(out, "version", st.Version)
	if st.Version > 0 {
		printField(out, "updated", st.UpdatedAt.Local().Format(time.RFC3339))
	}
	if st.LastEventID != "" {
		printField(out, "last event", st.LastEventID)
	}
	for _, name := range slices.Sorted(maps.Keys(st.Alarms)) {
		printField(out, "alarm "+name, time.UnixMilli(st.Alarms[name]).Local().Format(time.RFC3339))
	}
	printField(out, "data", string(st.Data))
	return nil
}
