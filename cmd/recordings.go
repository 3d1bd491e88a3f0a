package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harmonialab/harmonia/internal/model"
	"github.com/harmonialab/harmonia/internal/service"
)

var recordingsCmd = &cobra.Command{
	Use:   "recordings",
	Short: "Manage stored recordings",
}

var recordingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your recordings",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		recs, err := svc.ListRecordings(context.Background())
		if err != nil {
			return fmt.Errorf("failed to load recordings: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No recordings")
			return nil
		}
		for _, r := range recs {
			fmt.Printf("%s  %-30s  %s  %d notes  %s\n",
				r.ID, r.Name, model.FormatDuration(r.Duration), len(r.Notes),
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var recordingsRenameCmd = &cobra.Command{
	Use:   "rename [id] [new-name]",
	Short: "Rename a recording",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		rec, err := svc.RenameRecording(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("failed to rename recording: %w", err)
		}
		fmt.Printf("Renamed %s to %q\n", rec.ID, rec.Name)
		return nil
	},
}

var recordingsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a recording and its stored audio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		if err := svc.DeleteRecording(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to delete recording: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var recordingsExportCmd = &cobra.Command{
	Use:   "export [id] [output-file]",
	Short: "Export a recording as WAV audio or a MIDI file",
	Long: `Export a recording. By default the audio payload is written as WAV;
with --midi the note sequence is written as a standard MIDI file instead.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(cfg)
		if err != nil {
			return err
		}
		ctx := context.Background()
		id, outFile := args[0], args[1]

		if asMIDI, _ := cmd.Flags().GetBool("midi"); asMIDI {
			f, err := os.Create(outFile)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := svc.ExportMIDI(ctx, id, f); err != nil {
				return fmt.Errorf("failed to export recording: %w", err)
			}
			fmt.Printf("Exported %s to %s\n", id, outFile)
			return nil
		}

		recs, err := svc.ListRecordings(ctx)
		if err != nil {
			return fmt.Errorf("failed to load recordings: %w", err)
		}
		for _, r := range recs {
			if r.ID != id {
				continue
			}
			raw, err := r.Audio.Normalize(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch audio: %w", err)
			}
			if err := os.WriteFile(outFile, raw, 0644); err != nil {
				return err
			}
			fmt.Printf("Exported %s to %s\n", id, outFile)
			return nil
		}
		return fmt.Errorf("recording %s: %w", id, model.ErrNotFoundOrForbidden)
	},
}

func init() {
	recordingsExportCmd.Flags().Bool("midi", false, "export the note sequence as MIDI instead of audio")

	recordingsCmd.AddCommand(recordingsListCmd)
	recordingsCmd.AddCommand(recordingsRenameCmd)
	recordingsCmd.AddCommand(recordingsDeleteCmd)
	recordingsCmd.AddCommand(recordingsExportCmd)
}
