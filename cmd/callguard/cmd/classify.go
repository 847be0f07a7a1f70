package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/callguard/pkg/guard"
	"github.com/spf13/cobra"
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify <code-or-message>...",
	Short: "Show how an error code or message is classified",
	Long: `Classify backend error codes or messages the way the guard does and print
the message a user would see.

Examples:
  callguard classify permission-denied auth/popup-closed-by-user
  callguard classify --locale fr "connection refused"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Long += "\n\nKinds: " + kindList()
}

type classification struct {
	Input     string `json:"input"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
}

func classifyAll(localizer *guard.Localizer, inputs []string) []classification {
	out := make([]classification, 0, len(inputs))
	for _, in := range inputs {
		kind := guard.ClassifyCode(in)
		out = append(out, classification{
			Input:     in,
			Kind:      kind.String(),
			Retryable: kind.Retryable(),
			Message:   localizer.Message(kind),
		})
	}
	return out
}

func runClassify(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	results := classifyAll(guard.NewLocalizer(c.Locale), args)

	if IsJSONOutput() {
		return writeJSON(os.Stdout, results)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Input", "Kind", "Retryable", "Message")
	for _, r := range results {
		table.Append(r.Input, r.Kind, fmt.Sprint(r.Retryable), r.Message)
	}
	table.Render()
	return nil
}

func kindList() string {
	names := make([]string, 0, len(guard.Kinds()))
	for _, k := range guard.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ", ")
}
