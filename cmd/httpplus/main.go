// Command httpplus sends GET, form POST, upload and download requests
// from the command line, rendering transfer progress on stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRoot(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRoot(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "httpplus",
		Short:         "Send HTTP requests with progress reporting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Log call lifecycle at debug level")
	flags.StringArrayVarP(&a.params, "param", "p", nil, "Parameter as key=value, repeatable")
	flags.StringArrayVarP(&a.headers, "header", "H", nil, "Header as key:value, repeatable")
	flags.IntVar(&a.expect, "expect", 0, "Fail unless the response has this status")
	flags.DurationVar(&a.timeouts.Connect, "timeout-connect", 0, "Connect timeout (0 keeps the default)")
	flags.DurationVar(&a.timeouts.Write, "timeout-write", 0, "Write timeout (0 keeps the default)")
	flags.DurationVar(&a.timeouts.Read, "timeout-read", 0, "Read timeout (0 keeps the default)")

	root.AddCommand(
		getSubcommand(a),
		postSubcommand(a),
		uploadSubcommand(a),
		downloadSubcommand(a),
	)

	return root
}
