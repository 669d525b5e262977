package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewSendCmd sends one line of free text as an inbound message, exactly
// as a texting provider would deliver it. It is the generic escape
// hatch; run/approve/deny/status below are convenience wrappers over it.
func NewSendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:   "send <text...>",
		Short: "Send a raw inbound text command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendText(clientFn(), outputFn(), conversation, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "default", "conversation id grouping related messages")
	return cmd
}

// NewRunCmd sends "run [jobKey]".
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:   "run [jobKey]",
		Short: "Request a job run, optionally naming the job key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := "run"
			if len(args) == 1 {
				text = "run " + args[0]
			}
			return sendText(clientFn(), outputFn(), conversation, text)
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "default", "conversation id grouping related messages")
	return cmd
}

// NewApproveCmd sends "yes <runId>".
func NewApproveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:   "approve <runId>",
		Short: "Approve a run awaiting approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendText(clientFn(), outputFn(), conversation, "yes "+args[0])
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "default", "conversation id grouping related messages")
	return cmd
}

// NewDenyCmd sends "no <runId>".
func NewDenyCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:   "deny <runId>",
		Short: "Deny a run awaiting approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendText(clientFn(), outputFn(), conversation, "no "+args[0])
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "default", "conversation id grouping related messages")
	return cmd
}

func sendText(client *Client, out *Output, conversation, text string) error {
	resp, err := client.SendText(conversation, text)
	if err != nil {
		out.Error(err)
		return err
	}
	return printInboundResponse(out, resp)
}

func printInboundResponse(out *Output, resp *InboundResponse) error {
	if out.jsonMode {
		return out.JSON(resp)
	}

	out.Print("intent: %s", resp.IntentType)
	if resp.RunID != nil {
		out.Print("run id: %s", *resp.RunID)
	}
	for _, ob := range resp.Outbound {
		out.Print("> %s", ob.Body)
	}
	if resp.DispatchedExecution {
		out.Print("(dispatched to execution queue)")
	}
	return nil
}
