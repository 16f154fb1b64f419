package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/helioptic/kernelpool"
)

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <set>",
	Short: "Check that a set's kernel files exist",
	Long: `Resolve the named kernel set and check that every path names an existing
regular file. Exits nonzero when any kernel is missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

type kernelStatus struct {
	Kernel string `json:"kernel"`
	OK     bool   `json:"ok"`
}

type verifyReport struct {
	Set     string         `json:"set"`
	Missing int            `json:"missing"`
	Kernels []kernelStatus `json:"kernels"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	m, err := loadManifest()
	if err != nil {
		return err
	}

	kernels, err := m.Kernels(args[0])
	if err != nil {
		return err
	}

	report := verifyReport{Set: args[0], Kernels: make([]kernelStatus, 0, len(kernels))}
	for _, k := range kernels {
		ok := kernelpool.Verify(k) == nil
		if !ok {
			report.Missing++
		}
		report.Kernels = append(report.Kernels, kernelStatus{Kernel: k, OK: ok})
	}

	if isJSONOutput() {
		output, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Kernel", "Status")
		for _, ks := range report.Kernels {
			status := "ok"
			if !ks.OK {
				status = "MISSING"
			}
			table.Append(ks.Kernel, status)
		}
		table.Render()
		if report.Missing == 0 {
			fmt.Printf("\nAll %d kernel(s) present\n", len(kernels))
		}
	}

	if report.Missing > 0 {
		return fmt.Errorf("%d of %d kernel(s) missing", report.Missing, len(kernels))
	}
	return nil
}
