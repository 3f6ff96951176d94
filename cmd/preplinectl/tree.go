package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/prepline/prepline/internal/registry"
	"github.com/prepline/prepline/pkg/lineage/tree"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print a task's lineage forest with layout coordinates",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := registry.NewClient(serverURL, resolvedToken())
		versions, err := client.ListVersions(cmd.Context(), taskID)
		if err != nil {
			return err
		}

		forest, err := tree.Build(versions)
		if err != nil {
			return err
		}
		nodes, edges := tree.Layout(forest)

		if outputFmt == "table" {
			rows := make([][]string, len(nodes))
			for i, n := range nodes {
				rows[i] = []string{
					strconv.FormatInt(n.ID, 10),
					n.Version.Name,
					string(n.Version.Status),
					fmt.Sprintf("%.0f", n.Position.X),
					fmt.Sprintf("%.0f", n.Position.Y),
				}
			}
			printTable([]string{"id", "name", "status", "x", "y"}, rows)

			fmt.Println()
			edgeRows := make([][]string, len(edges))
			for i, e := range edges {
				edgeRows[i] = []string{
					strconv.FormatInt(e.Source, 10),
					strconv.FormatInt(e.Target, 10),
				}
			}
			printTable([]string{"source", "target"}, edgeRows)
			return nil
		}

		return printOutput(map[string]any{
			"nodes": nodes,
			"edges": edges,
		})
	},
}

func init() {
	treeCmd.Flags().Int64Var(&taskID, "task", 0, "Task id")
	_ = treeCmd.MarkFlagRequired("task")
}
