package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/callguard/internal/dashboard"
	"github.com/psantana5/callguard/pkg/backend"
	"github.com/psantana5/callguard/pkg/guard"
	"github.com/spf13/cobra"
)

var (
	probeTimeout     time.Duration
	probeRetries     int
	probeRetryDelay  time.Duration
	probeShowMetrics bool
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe <call-site> [args...]",
	Short: "Run one guarded call against the backend",
	Long: `Run one call site under its configured policy and report the outcome.

Call sites:
  health
  profile.get <uid>
  bookings.list <uid>
  maps.geocode <address>
  maps.route <from> <to>`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 0, "override the per-attempt timeout")
	probeCmd.Flags().IntVar(&probeRetries, "retries", -1, "override the retry count")
	probeCmd.Flags().DurationVar(&probeRetryDelay, "retry-delay", -1, "override the delay between attempts")
	probeCmd.Flags().BoolVar(&probeShowMetrics, "metrics", false, "print the collected metrics afterwards")
}

type probeResult struct {
	Operation string      `json:"operation"`
	Outcome   string      `json:"outcome"`
	Attempts  int         `json:"attempts"`
	Elapsed   string      `json:"elapsed"`
	Kind      string      `json:"kind,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
	Value     interface{} `json:"value,omitempty"`
}

func probeOperation(client *backend.Client, site string, args []string) (guard.Operation[interface{}], error) {
	need := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d argument(s), got %d", site, n, len(args))
		}
		return nil
	}

	switch site {
	case "health":
		return func(ctx context.Context) (interface{}, error) {
			return "ok", client.Health(ctx)
		}, need(0)
	case dashboard.OpProfile:
		return func(ctx context.Context) (interface{}, error) {
			return client.GetProfile(ctx, args[0])
		}, need(1)
	case dashboard.OpBookings:
		return func(ctx context.Context) (interface{}, error) {
			return client.ListBookings(ctx, args[0])
		}, need(1)
	case dashboard.OpGeocode:
		return func(ctx context.Context) (interface{}, error) {
			return client.Geocode(ctx, args[0])
		}, need(1)
	case dashboard.OpRoute:
		return func(ctx context.Context) (interface{}, error) {
			return client.Route(ctx, args[0], args[1])
		}, need(2)
	default:
		return nil, fmt.Errorf("unknown call site %q", site)
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, c)
	if err != nil {
		return err
	}

	site := args[0]
	op, err := probeOperation(rt.client, site, args[1:])
	if err != nil {
		rt.Close(ctx)
		return err
	}

	policy := c.Policy(site)
	if probeTimeout > 0 {
		policy = policy.WithTimeout(probeTimeout)
	}
	if probeRetries >= 0 {
		policy.Retries = probeRetries
	}
	if probeRetryDelay >= 0 {
		policy.RetryDelay = probeRetryDelay
	}

	scope := guard.NewScope(ctx, "probe", guard.WithScopeLogger(rt.logger))
	scope.OnTeardown(rt.Close)
	defer scope.Close()

	notes := &guard.Recorder{}
	g := guard.New(scope, append(rt.guardOptions(), guard.WithNotifier(notes))...)
	var opts []guard.CallOption[interface{}]
	if site == dashboard.OpGeocode || site == dashboard.OpRoute {
		opts = append(opts, guard.WithRecovery[interface{}](guard.ReloadRecovery{
			Reload: rt.client.ResetMaps,
			Kinds:  []guard.Kind{guard.KindMaps},
			Logger: rt.logger,
		}))
	}
	res := guard.Run(ctx, g, policy, op, opts...)

	out := probeResult{
		Operation: site,
		Outcome:   res.Outcome.String(),
		Attempts:  res.Attempts,
		Elapsed:   res.Elapsed.Round(time.Millisecond).String(),
	}
	if res.Ok() {
		out.Value = res.Value
	} else if res.Err != nil {
		out.Error = res.Err.Error()
		out.Kind = guard.Classify(res.Err).String()
		if note, ok := notes.Last(); ok {
			out.Message = note.Message
		}
	}

	if IsJSONOutput() {
		if err := writeJSON(os.Stdout, out); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Call site", "Outcome", "Attempts", "Elapsed", "Kind", "Message")
		table.Append(out.Operation, out.Outcome, fmt.Sprint(out.Attempts), out.Elapsed, out.Kind, out.Message)
		table.Render()
		if out.Value != nil {
			if err := writeJSON(os.Stdout, out.Value); err != nil {
				return err
			}
		}
	}

	if probeShowMetrics {
		fmt.Println()
		if err := rt.collector.WriteText(os.Stdout); err != nil {
			return err
		}
	}

	if !res.Ok() {
		return fmt.Errorf("%s: %s after %d attempt(s)", site, res.Outcome, res.Attempts)
	}
	return nil
}
