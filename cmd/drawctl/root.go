package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/local/drawcompress/internal/logger"
)

var (
	verbose bool
	logFile string
)

var rootCmd = &cobra.Command{
	Use:           "drawctl",
	Short:         "Analyze and compress architectural drawing sets",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.WarnLevel.String()
		if verbose {
			level = zerolog.DebugLevel.String()
		}
		return logger.Init(logger.Options{Level: level, Pretty: true, File: logFile, Out: os.Stderr})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
}
