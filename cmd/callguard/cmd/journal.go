package cmd

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/callguard/pkg/journal"
	"github.com/spf13/cobra"
)

var journalLimit int

// journalCmd represents the journal command
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recorded guarded-call failures",
	Long:  `List the most recent exhausted guarded calls from the configured failure journal, with totals per error kind.`,
	RunE:  runJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of entries to show")
}

type journalReport struct {
	Entries []journal.Entry `json:"entries"`
	ByKind  map[string]int  `json:"by_kind"`
}

func runJournal(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	j, err := journal.New(c.Journal)
	if err != nil {
		return fmt.Errorf("failed to open %s journal: %w", c.Journal.Type, err)
	}
	defer j.Close()

	ctx := cmd.Context()
	entries, err := j.Recent(ctx, journalLimit)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	counts, err := j.CountByKind(ctx)
	if err != nil {
		return fmt.Errorf("failed to count journal entries: %w", err)
	}

	if IsJSONOutput() {
		return writeJSON(os.Stdout, journalReport{Entries: entries, ByKind: counts})
	}

	if len(entries) == 0 {
		fmt.Println("No failures recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Call site", "Kind", "Attempts", "Error")
	for _, e := range entries {
		table.Append(e.Timestamp.Local().Format(time.DateTime), e.Operation, e.Kind, fmt.Sprint(e.Attempts), e.Error)
	}
	table.Render()

	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	fmt.Println()
	totals := tablewriter.NewWriter(os.Stdout)
	totals.Header("Kind", "Failures")
	for _, k := range kinds {
		totals.Append(k, fmt.Sprint(counts[k]))
	}
	totals.Render()
	return nil
}
