package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ohowland/powernet/internal/pkg/hmi"
)

// NewHMICommand runs a scene behind the terminal dashboard.
func NewHMICommand() *cobra.Command {
	logPath := ""
	refresh := 500 * time.Millisecond

	cmd := &cobra.Command{
		Use:   "hmi",
		Short: "Run a scene with a terminal dashboard",
		RunE: func(_ *cobra.Command, _ []string) error {
			// the dashboard owns the terminal
			logrus.SetOutput(io.Discard)
			if logPath != "" {
				f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return err
				}
				defer f.Close()
				logrus.SetOutput(f)
			}

			n, script, tick, err := load()
			if err != nil {
				return err
			}
			defer n.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go simulate(ctx, n, script, tick)

			return hmi.New(n).Run(ctx, refresh)
		},
	}

	cmd.Flags().StringVar(&logPath, "log-file", logPath, "write logs to this file while the dashboard runs")
	cmd.Flags().DurationVar(&refresh, "refresh", refresh, "dashboard refresh interval")
	return cmd
}
