package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harmonialab/harmonia/internal/model"
	"github.com/harmonialab/harmonia/internal/service"
)

var recordCmd = &cobra.Command{
	Use:   "record [notes...]",
	Short: "Record a session, optionally auto-playing a note sequence",
	Long: `Start a recording session. With note arguments (e.g. "C4 E4 G4"),
the notes are triggered at the given interval while the session captures
them; without arguments the session runs until interrupted. Press Ctrl+C
to stop and save.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		if svc.Identity() == nil {
			return fmt.Errorf("sign in first: set api.user_id and api.token in the config")
		}

		ctx := context.Background()
		if err := svc.StartRecording(ctx); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
		slog.Info("Recording... press Ctrl+C to stop and save")

		intervalMs, _ := cmd.Flags().GetInt("interval")
		if len(args) > 0 {
			var notes []model.NoteEvent
			for i, n := range args {
				notes = append(notes, model.NoteEvent{
					Note: n,
					Time: float64(i*intervalMs) / 1000,
				})
			}
			svc.PlayNotes(notes)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("Stopping recording...")
		rec, err := svc.StopRecording(ctx)
		if err != nil {
			return fmt.Errorf("failed to save recording: %w", err)
		}
		if rec == nil {
			return nil
		}

		fmt.Printf("Saved %q (id %s)\n", rec.Name, rec.ID)
		fmt.Printf("  duration: %s\n", model.FormatDuration(rec.Duration))
		var captured []string
		for _, ev := range rec.Notes {
			captured = append(captured, fmt.Sprintf("%s@%.2fs", ev.Note, ev.Time))
		}
		fmt.Printf("  notes:    %s\n", strings.Join(captured, " "))
		return nil
	},
}

func init() {
	recordCmd.Flags().Int("interval", 500, "ms between auto-played notes")
}
