package main

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/httpplus/builder"
)

func uploadSubcommand(a *app) *cobra.Command {
	var (
		files  []string
		method string
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "upload URL",
		Short: "Upload files as a multipart form with a progress bar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger()
			c, err := a.client(logger)
			if err != nil {
				return err
			}

			b := builder.NewUpload(c).
				URL(args[0]).
				Method(strings.ToUpper(method)).
				ConnectTimeout(a.timeouts.Connect).
				WriteTimeout(a.timeouts.Write).
				ReadTimeout(a.timeouts.Read)
			for _, f := range files {
				field, path, err := splitPair(f, "=")
				if err != nil {
					return fmt.Errorf("parsing files: %w", err)
				}
				b.File(field, path)
			}

			b, err = configure(a, b)
			if err != nil {
				return err
			}

			o := newOutcome()
			call, err := b.Start(cmd.Context(), a.listener(o, !quiet, a.stdout, logger))
			if err != nil {
				return err
			}

			return wait(call, o)
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "File as field=path, repeatable")
	cmd.Flags().StringVarP(&method, "method", "X", "POST", "HTTP method")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")

	return cmd
}

func downloadSubcommand(a *app) *cobra.Command {
	var (
		dest         string
		sum          string
		skipExisting bool
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "download URL",
		Short: "Download a response body to a file with a progress bar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger()
			c, err := a.client(logger)
			if err != nil {
				return err
			}

			b := builder.NewDownload(c).
				URL(args[0]).
				Dest(dest).
				ConnectTimeout(a.timeouts.Connect).
				WriteTimeout(a.timeouts.Write).
				ReadTimeout(a.timeouts.Read)
			if sum != "" {
				b.Checksum(sha256.New(), sum)
			}
			if skipExisting {
				b.SkipExisting()
			}
			if quiet {
				b.ProgressLog()
			}

			b, err = configure(a, b)
			if err != nil {
				return err
			}

			o := newOutcome()
			call, err := b.Start(cmd.Context(), a.listener(o, !quiet, nil, logger))
			if err != nil {
				return err
			}

			if err := wait(call, o); err != nil {
				return err
			}

			logger.Info("download complete", "dest", dest)

			return nil
		},
	}

	cmd.Flags().StringVarP(&dest, "output", "o", "", "Destination file")
	cmd.Flags().StringVar(&sum, "sha256", "", "Expected hex SHA-256 of the body")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Do nothing when the destination exists")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Log progress instead of drawing a bar")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
