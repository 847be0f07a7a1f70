package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/callguard/internal/config"
	"github.com/psantana5/callguard/internal/dashboard"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// policiesCmd represents the policies command
var policiesCmd = &cobra.Command{
	Use:   "policies [call-site...]",
	Short: "Show the effective guard policy per call site",
	Long: `Show the retry, timeout and notification policy each call site runs with
after applying the "policy" defaults and "policies.<name>" overrides.`,
	RunE: runPolicies,
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}

type policyView struct {
	Name           string `json:"name" yaml:"name"`
	Timeout        string `json:"timeout" yaml:"timeout"`
	Retries        int    `json:"retries" yaml:"retries"`
	RetryDelay     string `json:"retry_delay" yaml:"retry_delay"`
	ShowErrorToast bool   `json:"show_error_toast" yaml:"show_error_toast"`
	SingleFlight   bool   `json:"single_flight" yaml:"single_flight"`
}

// callSites returns the dashboard call sites plus any configured override.
func callSites(c *config.Config) []string {
	seen := map[string]bool{}
	var names []string
	for _, n := range append([]string{
		dashboard.OpProfile, dashboard.OpBookings, dashboard.OpCreateBooking,
		dashboard.OpGeocode, dashboard.OpRoute,
	}, c.PolicyNames()...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

func policyViews(c *config.Config, names []string) []policyView {
	views := make([]policyView, 0, len(names))
	for _, n := range names {
		p := c.Policy(n)
		views = append(views, policyView{
			Name:           p.Name,
			Timeout:        p.Timeout.String(),
			Retries:        p.Retries,
			RetryDelay:     p.RetryDelay.String(),
			ShowErrorToast: p.ShowErrorToast,
			SingleFlight:   p.SingleFlight,
		})
	}
	return views
}

func runPolicies(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	names := args
	if len(names) == 0 {
		names = callSites(c)
	}
	views := policyViews(c, names)

	switch outputFormat {
	case "json":
		return writeJSON(os.Stdout, views)
	case "yaml":
		out, err := yaml.Marshal(views)
		if err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Call site", "Timeout", "Retries", "Retry delay", "Notify", "Single flight")
	for _, v := range views {
		table.Append(v.Name, v.Timeout, fmt.Sprint(v.Retries), v.RetryDelay, fmt.Sprint(v.ShowErrorToast), fmt.Sprint(v.SingleFlight))
	}
	table.Render()
	return nil
}
