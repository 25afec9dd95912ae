package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewValidateCommand builds a scene and checks its topology without running it.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a scene file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, script, tick, err := load()
			if err != nil {
				return err
			}
			defer n.Close()
			if err := n.Validate(); err != nil {
				return err
			}

			snap := n.Snapshot()
			logrus.WithFields(logrus.Fields{
				"batteries": len(snap.Batteries),
				"devices":   len(snap.Devices),
				"plugs":     len(snap.Plugs),
				"sockets":   len(snap.Sockets),
				"timeline":  script.Len(),
				"tick":      tick,
			}).Debug("scene built")
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", n.Name())
			return nil
		},
	}
}
