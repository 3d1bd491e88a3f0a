package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harmonialab/harmonia/internal/server"
	"github.com/harmonialab/harmonia/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recordings persistence API",
	Long: `Run the HTTP API that the client commands talk to. Recording metadata
is kept in memory; audio payloads go to the configured storage backend.
Any non-empty bearer token is accepted as a user ID.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var store storage.Store
		var err error
		switch strings.ToLower(cfg.Storage.Backend) {
		case "s3":
			store, err = storage.NewS3Store(cfg.Storage.Bucket, cfg.Storage.Region,
				time.Duration(cfg.Storage.URLTTLMinutes)*time.Minute)
		default:
			store, err = storage.NewLocalStore(cfg.Storage.Directory)
		}
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}

		port, _ := cmd.Flags().GetString("port")
		return server.New(store, server.DevAuth, port).Start()
	},
}

func init() {
	serveCmd.Flags().StringP("port", "p", "5000", "port to listen on")
}
