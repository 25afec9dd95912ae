package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	logLevel  = "info"
	scenePath = "config/scene.json"
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}
	return nil
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewCommand is the powernet root command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "powernet",
		Short: "powernet simulates batteries, devices and the plugs that connect them",
		Long: `powernet simulates a power network of batteries and devices joined by plugs and sockets.

A scene file declares the entities and an optional timeline of plug and switch interactions.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVarP(&scenePath, "scene", "s", scenePath, "scene file path")

	cmd.AddCommand(
		NewRunCommand(),
		NewValidateCommand(),
		NewHMICommand(),
	)
	return cmd
}
