package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/harmonialab/harmonia/internal/playback"
	"github.com/harmonialab/harmonia/internal/service"
)

var rollCmd = &cobra.Command{
	Use:   "roll [pattern.yaml]",
	Short: "Play a piano-roll pattern file",
	Long: `Step through a piano-roll pattern at its tempo. Each row of the
pattern maps a note to a cell string where 'x' marks an active column:

    bpm: 120
    rows:
      - note: C4
        cells: "x...x...x...x..."
      - note: E4
        cells: "..x...x...x...x."

With --record, a recording session captures the playback and is saved
when the roll reaches its final column.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, err := playback.LoadPatternFile(args[0])
		if err != nil {
			return err
		}
		if bpm, _ := cmd.Flags().GetInt("bpm"); bpm > 0 {
			pattern.BPM = bpm
		}

		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		roll := svc.Roll()
		if err := roll.ApplyPattern(pattern); err != nil {
			return err
		}

		record, _ := cmd.Flags().GetBool("record")
		if record {
			if err := svc.StartRecording(cmd.Context()); err != nil {
				return fmt.Errorf("failed to start recording: %w", err)
			}
			slog.Info("Recording roll playback")
		}

		columns := roll.Columns()
		interval := time.Duration(60000/pattern.BPM) * time.Millisecond
		slog.Info("Playing piano roll", "bpm", pattern.BPM, "columns", columns)

		roll.Play()
		for roll.Status() == playback.RollPlaying {
			time.Sleep(interval)
		}

		fmt.Println("Roll playback completed")
		return nil
	},
}

func init() {
	rollCmd.Flags().Int("bpm", 0, "tempo override (default from pattern file)")
	rollCmd.Flags().Bool("record", false, "capture the playback as a recording")
}
