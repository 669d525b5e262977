package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ntpoppe/textops/internal/cli"
)

func main() {
	var apiURL string
	var from string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "textops",
		Short:         "Operator CLI for the textops job orchestration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "textops-server base URL")
	rootCmd.PersistentFlags().StringVar(&from, "from", "operator-cli", "sender address attached to every inbound message")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON instead of text")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, from) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput, os.Stdout, os.Stderr) }

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewApproveCmd(clientFn, outputFn),
		cli.NewDenyCmd(clientFn, outputFn),
		cli.NewStatusCmd(clientFn, outputFn),
		cli.NewSendCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
