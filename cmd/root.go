package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harmonialab/harmonia/internal/config"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "harmonia",
	Short: "Virtual piano recorder with playback and audio analysis",
	Long: `HarmonIA records melodic compositions played on a virtual piano,
stores them through the recordings API, replays them, and runs a
lightweight analysis (pitch, chord candidates, tempo) on captured audio.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/harmonia.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(rollCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}
