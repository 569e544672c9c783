package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/api"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/core"
	"github.com/hugo-lorenzo-mato/actorfabric/pkg/durable"
)

var callCmd = &cobra.Command{
	Use:   "call <target-actor-id> [payload-json]",
	Short: "Send a request whose result is recorded in a workflow",
	Long: `Create a workflow record and queue the request for the target actor. The
target resolves the workflow with its result; use 'actorfabric workflow' or
--wait to read it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCall,
}

var workflowCmd = &cobra.Command{
	Use:   "workflow <workflow-id>",
	Short: "Show a workflow record",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkflow,
}

var (
	callSource string
	callWait   time.Duration
)

const workflowPollInterval = 250 * time.Millisecond

func init() {
	rootCmd.AddCommand(callCmd, workflowCmd)

	callCmd.Flags().StringVar(&callSource, "source", "cli", "caller recorded on the request")
	callCmd.Flags().DurationVar(&callWait, "wait", 0, "poll until the workflow resolves or this long has passed")
}

func runCall(cmd *cobra.Command, args []string) error {
	payload, err := parsePayload(optionalArg(args, 1))
	if err != nil {
		return err
	}
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	var wf durable.Workflow
	req := api.CallRequest{Source: callSource, Target: args[0], Payload: payload}
	if err := client.do(cmd.Context(), http.MethodPost, "/api/v1/calls", req, &wf); err != nil {
		return err
	}

	if callWait > 0 && wf.Status == core.WorkflowStatusPending {
		resolved, err := waitForWorkflow(cmd.Context(), client, wf.WorkflowID, callWait)
		if err != nil {
			return err
		}
		wf = *resolved
	}
	return printJSON(cmd.OutOrStdout(), wf)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	wf, err := fetchWorkflow(cmd.Context(), client, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), wf)
}

func fetchWorkflow(ctx context.Context, client *apiClient, id string) (*durable.Workflow, error) {
	var wf durable.Workflow
	if err := client.do(ctx, http.MethodGet, "/api/v1/workflows/"+url.PathEscape(id), nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// waitForWorkflow polls until the record is no longer pending. A timeout
// returns the last pending record, not an error.
func waitForWorkflow(ctx context.Context, client *apiClient, id string, timeout time.Duration) (*durable.Workflow, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(workflowPollInterval)
	defer ticker.Stop()

	var last *durable.Workflow
	for {
		wf, err := fetchWorkflow(ctx, client, id)
		switch {
		case err == nil:
			last = wf
			if wf.Status != core.WorkflowStatusPending {
				return wf, nil
			}
		case errors.Is(err, context.DeadlineExceeded):
			return lastOr(last, id)
		default:
			return nil, err
		}

		select {
		case <-ctx.Done():
			return lastOr(last, id)
		case <-ticker.C:
		}
	}
}

func lastOr(last *durable.Workflow, id string) (*durable.Workflow, error) {
	if last == nil {
		return nil, fmt.Errorf("workflow %s: no answer before timeout", id)
	}
	return last, nil
}
