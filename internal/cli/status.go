package cli

import (
	"github.com/spf13/cobra"
)

// NewStatusCmd fetches a run's full timeline via GET /runs/{runId},
// richer than the short status summary "status <runId>" produces over text.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <runId>",
		Short: "Show a run's current status and event timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			timeline, err := client.GetRun(args[0])
			if err != nil {
				out.Error(err)
				return err
			}

			if out.jsonMode {
				return out.JSON(timeline)
			}

			out.Print("run id:     %s", timeline.Run.RunID)
			out.Print("job key:    %s", timeline.Run.JobKey)
			out.Print("status:     %s", timeline.Run.Status)
			out.Print("requested:  %s", timeline.Run.RequestedByAddress)
			out.Print("created at: %s", timeline.Run.CreatedAt)
			out.Print("")

			rows := make([][]string, 0, len(timeline.Events))
			for _, e := range timeline.Events {
				rows = append(rows, []string{e.At, e.Type, e.Actor})
			}
			out.Table([]string{"AT", "EVENT", "ACTOR"}, rows)
			return nil
		},
	}
	return cmd
}
