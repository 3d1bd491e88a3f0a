package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harmonialab/harmonia/internal/service"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file.wav]",
	Short: "Extract pitch, chord candidates and tempo from an audio file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		result, err := svc.Analyze(cmd.Context(), raw)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		fmt.Printf("Analysis of %s\n", args[0])
		fmt.Printf("  scale:  %s\n", result.Scale)
		fmt.Printf("  chords: %s\n", strings.Join(result.Chords, ", "))
		fmt.Printf("  tempo:  %d BPM\n", result.Tempo)
		return nil
	},
}
