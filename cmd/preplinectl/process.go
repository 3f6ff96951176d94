package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/prepline/prepline/internal/registry"
	"github.com/prepline/prepline/pkg/pipeline"
	"github.com/prepline/prepline/pkg/session"
	"github.com/prepline/prepline/pkg/versionstore"
)

var (
	payloadPath  string
	processorURL string
	pollSeconds  int
)

var processCmd = &cobra.Command{
	Use:   "process VERSION_ID",
	Short: "Submit a transformation for a RAW version and poll until terminal",
	Long: `Submit the method invocation payload from --payload to the remote
processor, transition the version to RUNNING, and poll the registry until
the version reaches PROCESSED or FAILED.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		versionID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version id %q", args[0])
		}

		raw := resolvedToken()
		if raw == "" {
			return fmt.Errorf("a session token is required (--token or PREPLINE_TOKEN)")
		}
		parser := &session.Parser{}
		identity, err := parser.ParseToken(raw)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(payloadPath)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		var payload pipeline.StaticPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse payload: %w", err)
		}

		client := registry.NewClient(serverURL, raw)
		store := versionstore.New(client, taskID)
		if err := store.Refresh(cmd.Context(), nil); err != nil {
			return err
		}

		cfg := pipeline.ConfigFromEnv()
		if pollSeconds > 0 {
			cfg.PollInterval = time.Duration(pollSeconds) * time.Second
		}
		processor := pipeline.NewHTTPProcessor(processorURL, raw)
		orch := pipeline.New(store, client, processor, identity, cfg, nil)
		defer orch.Stop()

		if err := orch.Start(cmd.Context(), versionID, &payload); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "submitted version %d, polling every %s\n", versionID, cfg.PollInterval)

		select {
		case update := <-orch.Updates():
			// Fold the terminal status back into the snapshot.
			if err := store.Refresh(cmd.Context(), &update.VersionID); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: refresh after completion failed: %v\n", err)
			}
			fmt.Printf("version %d finished: %s\n", update.VersionID, update.Status)
			if update.ProducedFileRef != nil {
				fmt.Printf("produced file: %d\n", *update.ProducedFileRef)
			}
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
		return nil
	},
}

func init() {
	processCmd.Flags().Int64Var(&taskID, "task", 0, "Task id")
	processCmd.Flags().StringVar(&payloadPath, "payload", "", "Path to the method invocation payload JSON file")
	processCmd.Flags().StringVar(&processorURL, "processor", "", "Remote processor submission endpoint")
	processCmd.Flags().IntVar(&pollSeconds, "poll-interval", 0, "Poll interval in seconds (default 5)")
	_ = processCmd.MarkFlagRequired("task")
	_ = processCmd.MarkFlagRequired("payload")
	_ = processCmd.MarkFlagRequired("processor")
}
