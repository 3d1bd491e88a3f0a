package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harmonialab/harmonia/internal/service"
)

var playCmd = &cobra.Command{
	Use:   "play [recording-id | file.wav]",
	Short: "Play a stored recording or a local WAV file",
	Long: `Play a recording. A stored recording is replayed verbatim from its
captured audio when a payload exists, otherwise re-synthesized from its
note sequence. A local WAV file path plays the file directly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}

		target := args[0]
		if _, statErr := os.Stat(target); statErr == nil {
			raw, err := os.ReadFile(target)
			if err != nil {
				return err
			}
			if err := svc.PlayAudio(raw); err != nil {
				return fmt.Errorf("playback failed: %w", err)
			}
		} else {
			if err := svc.PlayRecording(context.Background(), target); err != nil {
				return fmt.Errorf("playback failed: %w", err)
			}
		}

		waitForPlayback(svc)
		fmt.Println("Playback completed")
		return nil
	},
}

// waitForPlayback blocks until decoded-audio playback drains. Re-synthesized
// note playback is fire-and-forget, so a short grace period covers it.
func waitForPlayback(svc service.Service) {
	time.Sleep(200 * time.Millisecond)
	for svc.Playing() {
		time.Sleep(100 * time.Millisecond)
	}
}
