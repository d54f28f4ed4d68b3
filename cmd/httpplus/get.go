package main

import (
	"github.com/spf13/cobra"

	"github.com/adamwoolhether/httpplus/builder"
)

func getSubcommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get URL",
		Short: "Send a GET request and print the response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger()
			c, err := a.client(logger)
			if err != nil {
				return err
			}

			b, err := configure(a, builder.NewGet(c).URL(args[0]))
			if err != nil {
				return err
			}

			o := newOutcome()
			call, err := b.Execute(cmd.Context(), a.listener(o, false, a.stdout, logger))
			if err != nil {
				return err
			}

			return wait(call, o)
		},
	}
}

func postSubcommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "post URL",
		Short: "Send the parameters as a multipart form and print the response body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger()
			c, err := a.client(logger)
			if err != nil {
				return err
			}

			b, err := configure(a, builder.NewPost(c).URL(args[0]))
			if err != nil {
				return err
			}

			o := newOutcome()
			call, err := b.Execute(cmd.Context(), a.listener(o, false, a.stdout, logger))
			if err != nil {
				return err
			}

			return wait(call, o)
		},
	}
}
