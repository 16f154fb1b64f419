package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list [set]",
	Short: "List kernel sets, or the kernels of one set",
	Long: `Without arguments, list every kernel set in the manifest. With a set
name, list that set's kernels in load order after variable expansion.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

type setListing struct {
	Set     string   `json:"set"`
	Kernels []string `json:"kernels"`
}

type setSummary struct {
	Name    string `json:"name"`
	Kernels int    `json:"kernels"`
	First   string `json:"first_kernel"`
}

func runList(cmd *cobra.Command, args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		kernels, err := m.Kernels(args[0])
		if err != nil {
			return err
		}

		if isJSONOutput() {
			output, err := json.MarshalIndent(setListing{Set: args[0], Kernels: kernels}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal JSON: %w", err)
			}
			fmt.Println(string(output))
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "Kernel")
		for i, k := range kernels {
			table.Append(strconv.Itoa(i+1), k)
		}
		table.Render()
		fmt.Printf("\nSet %q: %d kernel(s), loaded top to bottom\n", args[0], len(kernels))
		return nil
	}

	summaries := make([]setSummary, 0, len(m.Sets))
	for _, name := range m.SetNames() {
		kernels, err := m.Kernels(name)
		if err != nil {
			return err
		}
		summaries = append(summaries, setSummary{Name: name, Kernels: len(kernels), First: kernels[0]})
	}

	if isJSONOutput() {
		output, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Set", "Kernels", "First Kernel")
	for _, s := range summaries {
		table.Append(s.Name, strconv.Itoa(s.Kernels), s.First)
	}
	table.Render()
	fmt.Printf("\nTotal sets: %d\n", len(m.Sets))
	return nil
}
