// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"log/slog"
	"time"

	"github.com/z5labs/hellopool/probe"

	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	var (
		url      string
		count    int
		attempts int
		timeout  time.Duration
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send greeting requests to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []probe.Option{
				probe.Timeout(timeout),
				probe.MaxAttempts(attempts),
			}
			if verbose {
				opts = append(opts, probe.LogHandler(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}

			client := probe.NewClient(opts...)
			return probe.Run(cmd.Context(), client, url, count, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://127.0.0.1:3000/", "url to send requests to")
	cmd.Flags().IntVar(&count, "count", 1, "number of sequential requests")
	cmd.Flags().IntVar(&attempts, "attempts", 3, "attempts per request before giving up")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "timeout of a single attempt")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every attempt to stderr")
	return cmd
}
