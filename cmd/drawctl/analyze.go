package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/local/drawcompress/internal/classifier"
	"github.com/local/drawcompress/internal/pagetext"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <pdf>",
	Short: "Classify every page of a drawing set by discipline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := classifier.Analyze(cmd.Context(), pagetext.Opener{}, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
