package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prepline/prepline/internal/registry"
	"github.com/prepline/prepline/pkg/lineage"
	"github.com/prepline/prepline/pkg/versionstore"
)

var (
	taskID       int64
	versionName  string
	parentID     int64
	methodID     int64
	columnTypes  []string
	configPath   string
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Manage dataset versions",
}

var versionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a task's versions in creation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := registry.NewClient(serverURL, resolvedToken())
		versions, err := client.ListVersions(cmd.Context(), taskID)
		if err != nil {
			return err
		}

		if outputFmt == "table" {
			rows := make([][]string, len(versions))
			for i, v := range versions {
				rows[i] = versionRow(&v)
			}
			printTable([]string{"id", "name", "status", "parent", "method", "created"}, rows)
			return nil
		}
		return printOutput(versions)
	},
}

var versionsShowCmd = &cobra.Command{
	Use:   "show VERSION_ID",
	Short: "Show a single version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version id %q", args[0])
		}

		client := registry.NewClient(serverURL, resolvedToken())
		v, err := client.GetVersion(cmd.Context(), id)
		if err != nil {
			return err
		}

		if outputFmt == "table" {
			printTable([]string{"id", "name", "status", "parent", "method", "created"},
				[][]string{versionRow(v)})
			return nil
		}
		return printOutput(v)
	},
}

var versionsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new RAW version",
	Long: `Create a new version. A root version (no --parent) requires --types;
a derived version inherits the parent's column types unless --types is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := registry.NewClient(serverURL, resolvedToken())
		store := versionstore.New(client, taskID)
		if err := store.Refresh(cmd.Context(), nil); err != nil {
			return err
		}

		req := versionstore.CreateRequest{Name: versionName}
		if parentID > 0 {
			req.ParentVersionID = &parentID
		}
		if methodID > 0 {
			req.MethodID = &methodID
		}
		if len(columnTypes) > 0 {
			types, err := parseColumnTypes(columnTypes)
			if err != nil {
				return err
			}
			req.DataTypes = types
		}
		if configPath != "" {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return fmt.Errorf("read config: %w", err)
			}
			req.Config = json.RawMessage(data)
		}

		v, err := store.Create(cmd.Context(), req)
		var ie *lineage.InheritanceError
		if errors.As(err, &ie) {
			fmt.Fprintf(os.Stderr, "Warning: %v (version created without column types)\n", ie)
		} else if err != nil {
			return err
		}

		// Pick up the new version as the active selection.
		if err := store.Refresh(cmd.Context(), &v.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: refresh after create failed: %v\n", err)
		}

		if outputFmt == "table" {
			printTable([]string{"id", "name", "status", "parent", "method", "created"},
				[][]string{versionRow(v)})
			return nil
		}
		return printOutput(v)
	},
}

func versionRow(v *lineage.Version) []string {
	parent := "-"
	if v.ParentVersionID != nil {
		parent = strconv.FormatInt(*v.ParentVersionID, 10)
	}
	method := "-"
	if v.MethodID != nil {
		method = strconv.FormatInt(*v.MethodID, 10)
	}
	return []string{
		strconv.FormatInt(v.ID, 10),
		v.Name,
		string(v.Status),
		parent,
		method,
		v.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// parseColumnTypes parses "column=TYPE" pairs.
func parseColumnTypes(pairs []string) (lineage.DataTypes, error) {
	types := make(lineage.DataTypes, len(pairs))
	for _, pair := range pairs {
		col, raw, ok := strings.Cut(pair, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid column type %q (expected column=TYPE)", pair)
		}
		dt, err := lineage.ParseDataType(strings.ToUpper(raw))
		if err != nil {
			return nil, err
		}
		types[col] = dt
	}
	return types, nil
}

func init() {
	versionsCmd.PersistentFlags().Int64Var(&taskID, "task", 0, "Task id")

	versionsCreateCmd.Flags().StringVar(&versionName, "name", "", "User-facing version label")
	versionsCreateCmd.Flags().Int64Var(&parentID, "parent", 0, "Parent version id (omit for a root version)")
	versionsCreateCmd.Flags().Int64Var(&methodID, "method", 0, "Transformation method id")
	versionsCreateCmd.Flags().StringSliceVar(&columnTypes, "types", nil, "Column types as column=QUANTITATIVE|QUALITATIVE")
	versionsCreateCmd.Flags().StringVar(&configPath, "config", "", "Path to an opaque transformation config JSON file")
	_ = versionsCreateCmd.MarkFlagRequired("name")

	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsShowCmd)
	versionsCmd.AddCommand(versionsCreateCmd)
}
