package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/perclft/qcircuit/analysis"
	"github.com/perclft/qcircuit/api"
	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/circuit"
	"github.com/perclft/qcircuit/client"
	"github.com/perclft/qcircuit/jobs"
	"github.com/perclft/qcircuit/source"
)

type rootOptions struct {
	Server  string
	Output  string
	Timeout time.Duration
}

func (o *rootOptions) client() *client.Client { return client.New(o.Server) }

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.Timeout)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "qctl",
		Short:         "Client for the qcircuit transpilation and execution service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output != "text" && opts.Output != "json" {
				return fmt.Errorf("invalid output %q: must be text or json", opts.Output)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.Server, "server", "s", envOr("QCTL_SERVER", "http://localhost:8080"), "service base URL")
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "text", "output format (text|json)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "overall request timeout")

	cmd.AddCommand(newTranspileCommand(opts))
	cmd.AddCommand(newExecuteCommand(opts))
	cmd.AddCommand(newResultCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newExamplesCommand(opts))
	cmd.AddCommand(newDevicesCommand(opts))
	cmd.AddCommand(newCacheCommand(opts))
	return cmd
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

// sourceFlags select where the circuit comes from.
type sourceFlags struct {
	Backend  string
	Language string
	URL      string
	Token    string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Backend, "backend", "b", "local-simulator", "target backend")
	cmd.Flags().StringVarP(&f.Language, "lang", "l", "", "source language (circuit-json|openqasm); guessed from the file extension")
	cmd.Flags().StringVar(&f.URL, "url", "", "fetch the circuit from this URL instead of a file")
	cmd.Flags().StringVar(&f.Token, "token", os.Getenv("QCTL_BEARER_TOKEN"), "bearer token for --url")
}

// request builds the transpile request for the file in args, or for --url.
func (f *sourceFlags) request(cmd *cobra.Command, args []string) (api.TranspileRequest, error) {
	req := api.TranspileRequest{
		QPUName:      f.Backend,
		ImplLanguage: f.Language,
		ImplURL:      f.URL,
		BearerToken:  f.Token,
	}
	switch {
	case f.URL != "" && len(args) > 0:
		return req, errors.New("give either a file or --url, not both")
	case f.URL != "":
		return req, nil
	case len(args) == 0:
		return req, errors.New("a circuit file (or - for stdin) is required")
	}
	data, err := readFile(cmd, args[0])
	if err != nil {
		return req, err
	}
	if req.ImplLanguage == "" {
		req.ImplLanguage = guessLanguage(args[0])
	}
	req.ImplData = base64.StdEncoding.EncodeToString(data)
	return req, nil
}

func readFile(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read circuit")
	}
	return data, nil
}

func guessLanguage(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".qasm":
		return source.LangOpenQASM
	default:
		return source.LangCircuitJSON
	}
}

// ------------------------------------------------------------------
// transpile
// ------------------------------------------------------------------

func newTranspileCommand(root *rootOptions) *cobra.Command {
	var src sourceFlags
	var showQASM bool

	cmd := &cobra.Command{
		Use:   "transpile [file]",
		Short: "Report the metrics of a circuit transpiled for a backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := src.request(cmd, args)
			if err != nil {
				return err
			}
			ctx, cancel := root.context(cmd)
			defer cancel()

			report, err := root.client().Transpile(ctx, req)
			if err != nil {
				return err
			}
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "⚡ Transpiled for %s\n", req.QPUName)
			printMetrics(out, analysis.Metrics{
				Width:            report.Width,
				Depth:            report.Depth,
				MultiQubitDepth:  report.MultiQubitGateDepth,
				TotalOperations:  report.TotalOperations,
				SingleQubitGates: report.SingleQubitGates,
				MultiQubitGates:  report.MultiQubitGates,
				Measurements:     report.MeasurementOperations,
			})
			if showQASM {
				fmt.Fprintln(out, "\n--- OpenQASM ---")
				fmt.Fprint(out, report.TranspiledQASM)
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().BoolVar(&showQASM, "qasm", false, "print the transpiled circuit as OpenQASM")
	return cmd
}

// ------------------------------------------------------------------
// execute
// ------------------------------------------------------------------

func newExecuteCommand(root *rootOptions) *cobra.Command {
	var (
		src        sourceFlags
		shots      int
		example    string
		transpiled bool
		wait       bool
		interval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "execute [file]",
		Short: "Submit a circuit for execution",
		Long: `Submit a circuit for execution and print the result location. With --wait
the command polls until the job finishes and prints the histogram.

Example:
  qctl execute bell.json --backend sycamore --shots 2000 --wait
  qctl execute --example ghz --backend ionq-aria --wait
  qctl transpile bell.json -o json | jq '."transpiled-circuit"' > t.json
  qctl execute t.json --transpiled --backend sycamore`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.ExecuteRequest
			if example != "" {
				c, err := localCircuit(cmd, args, "", example)
				if err != nil {
					return err
				}
				raw, err := json.Marshal(c)
				if err != nil {
					return err
				}
				req.QPUName = src.Backend
				req.TranspiledCircuit = raw
			} else if transpiled {
				if len(args) != 1 {
					return errors.New("--transpiled needs a circuit file")
				}
				data, err := readFile(cmd, args[0])
				if err != nil {
					return err
				}
				req.QPUName = src.Backend
				req.TranspiledCircuit = data
			} else {
				tr, err := src.request(cmd, args)
				if err != nil {
					return err
				}
				req.TranspileRequest = tr
			}
			if cmd.Flags().Changed("shots") {
				req.Shots = &shots
			}

			ctx, cancel := root.context(cmd)
			defer cancel()
			c := root.client()

			loc, err := c.Execute(ctx, req)
			if err != nil {
				return err
			}
			if !wait {
				if root.Output == "json" {
					return writeJSON(cmd.OutOrStdout(), api.ExecuteResponse{Location: loc})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "📋 Job accepted: %s\n", loc)
				return nil
			}
			view, err := c.Wait(ctx, loc, interval)
			if err != nil {
				return err
			}
			return printView(cmd.OutOrStdout(), root.Output, view)
		},
	}
	src.register(cmd)
	cmd.Flags().IntVarP(&shots, "shots", "n", api.DefaultShots, "number of shots")
	cmd.Flags().BoolVar(&transpiled, "transpiled", false, "the file holds an already transpiled circuit (JSON)")
	cmd.Flags().StringVarP(&example, "example", "e", "", "execute a built-in example circuit")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the result")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "polling interval for --wait")
	return cmd
}

// ------------------------------------------------------------------
// result
// ------------------------------------------------------------------

func newResultCommand(root *rootOptions) *cobra.Command {
	var (
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "result <job-id|location>",
		Short: "Show the status and histogram of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.context(cmd)
			defer cancel()
			c := root.client()

			var (
				view jobs.View
				err  error
			)
			if wait {
				view, err = c.Wait(ctx, args[0], interval)
			} else {
				view, err = c.Result(ctx, args[0])
			}
			if err != nil {
				return err
			}
			return printView(cmd.OutOrStdout(), root.Output, view)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "wait until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "polling interval for --wait")
	return cmd
}

// ------------------------------------------------------------------
// devices, cache
// ------------------------------------------------------------------

func newDevicesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the backends the server accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.context(cmd)
			defer cancel()
			devices, err := root.client().Devices(ctx)
			if err != nil {
				return err
			}
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), devices)
			}
			out := cmd.OutOrStdout()
			for _, d := range devices {
				gates := "all gates"
				if len(d.NativeGates) > 0 {
					gates = strings.Join(d.NativeGates, " ")
				}
				fmt.Fprintf(out, " %-16s %-9s %-10s %3d qubits  %s\n", d.Name, d.Provider, d.Kind, d.MaxQubits, gates)
			}
			return nil
		},
	}
}

func newCacheCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or prune the server's transpilation cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache hits and misses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := root.context(cmd)
			defer cancel()
			st, err := root.client().CacheStats(ctx)
			if err != nil {
				return err
			}
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			if !st.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "cache disabled")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "hits %d  misses %d  hit rate %.1f%%\n", st.Hits, st.Misses, 100*st.HitRate)
			return nil
		},
	})

	var src sourceFlags
	invalidate := &cobra.Command{
		Use:   "invalidate [file]",
		Short: "Drop the cached report of a circuit for a backend",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := src.request(cmd, args)
			if err != nil {
				return err
			}
			ctx, cancel := root.context(cmd)
			defer cancel()
			ok, err := root.client().Invalidate(ctx, req)
			if err != nil {
				return err
			}
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), api.InvalidateResponse{Invalidated: ok})
			}
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "🗑️  cached report dropped")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing cached for this circuit")
			}
			return nil
		},
	}
	src.register(invalidate)
	cmd.AddCommand(invalidate)
	return cmd
}

// ------------------------------------------------------------------
// inspect
// ------------------------------------------------------------------

// newInspectCommand analyzes a circuit locally, without a server.
func newInspectCommand(root *rootOptions) *cobra.Command {
	var (
		lang     string
		backend  string
		example  string
		showQASM bool
	)
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Analyze a circuit locally and print its moments",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := localCircuit(cmd, args, lang, example)
			if err != nil {
				return err
			}
			if backend != "" {
				device, err := backends.NewRegistry(nil).Resolve(backend)
				if err != nil {
					return err
				}
				if c, err = backends.Transpile(c, device); err != nil {
					return err
				}
			}

			metrics := analysis.Analyze(c)
			moments := analysis.PackMoments(c.Operations)
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), struct {
					Metrics analysis.Metrics  `json:"metrics"`
					Moments []analysis.Moment `json:"moments"`
					QASM    string            `json:"qasm,omitempty"`
				}{metrics, moments, qasmIf(showQASM, c.ToQASM)})
			}

			out := cmd.OutOrStdout()
			printMetrics(out, metrics)
			fmt.Fprintln(out, "\n--- Moments ---")
			for i, m := range moments {
				ops := make([]string, len(m))
				for j, op := range m {
					ops[j] = op.String()
				}
				fmt.Fprintf(out, " %3d: %s\n", i, strings.Join(ops, "  "))
			}
			if showQASM {
				fmt.Fprintln(out, "\n--- OpenQASM ---")
				fmt.Fprint(out, c.ToQASM())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "source language (circuit-json|openqasm)")
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "transpile for this backend first")
	cmd.Flags().StringVarP(&example, "example", "e", "", "inspect a built-in example instead of a file")
	cmd.Flags().BoolVar(&showQASM, "qasm", false, "print the circuit as OpenQASM")
	return cmd
}

// localCircuit reads the circuit of a file argument or a built-in example.
func localCircuit(cmd *cobra.Command, args []string, lang, example string) (circuit.Circuit, error) {
	switch {
	case example != "" && len(args) > 0:
		return circuit.Circuit{}, errors.New("give either a file or --example, not both")
	case example != "":
		e, ok := circuit.LookupExample(example)
		if !ok {
			return circuit.Circuit{}, errors.Errorf("unknown example %q (have %s)", example, strings.Join(circuit.ExampleNames(), ", "))
		}
		return e.Build(), nil
	case len(args) == 0:
		return circuit.Circuit{}, errors.New("a circuit file or --example is required")
	}
	data, err := readFile(cmd, args[0])
	if err != nil {
		return circuit.Circuit{}, err
	}
	if lang == "" {
		lang = guessLanguage(args[0])
	}
	return source.Parse(lang, data)
}

func newExamplesCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "List the built-in example circuits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type row struct {
				Name        string   `json:"name"`
				Description string   `json:"description"`
				Outcomes    []string `json:"outcomes"`
			}
			rows := make([]row, 0, len(circuit.ExampleNames()))
			for _, name := range circuit.ExampleNames() {
				e, _ := circuit.LookupExample(name)
				rows = append(rows, row{e.Name, e.Description, e.Outcomes})
			}
			if root.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			for _, r := range rows {
				fmt.Fprintf(cmd.OutOrStdout(), " %-10s %s\n", r.Name, r.Description)
			}
			return nil
		},
	}
}

func qasmIf(ok bool, f func() string) string {
	if !ok {
		return ""
	}
	return f()
}

// ------------------------------------------------------------------
// Output
// ------------------------------------------------------------------

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMetrics(w io.Writer, m analysis.Metrics) {
	fmt.Fprintln(w, "--- 🔬 Circuit Metrics ---")
	fmt.Fprintf(w, " width                  %d\n", m.Width)
	fmt.Fprintf(w, " depth                  %d\n", m.Depth)
	fmt.Fprintf(w, " multi-qubit depth      %d\n", m.MultiQubitDepth)
	fmt.Fprintf(w, " operations             %d\n", m.TotalOperations)
	fmt.Fprintf(w, " single-qubit gates     %d\n", m.SingleQubitGates)
	fmt.Fprintf(w, " multi-qubit gates      %d\n", m.MultiQubitGates)
	fmt.Fprintf(w, " measurements           %d\n", m.Measurements)
}

func printView(w io.Writer, format string, v jobs.View) error {
	if format == "json" {
		return writeJSON(w, v)
	}
	switch v.Status {
	case jobs.StatusFailed:
		fmt.Fprintf(w, "💥 Job %s failed: %s\n", v.ID, v.Error)
		return nil
	case jobs.StatusPending:
		fmt.Fprintf(w, "⏳ Job %s is pending\n", v.ID)
		return nil
	}

	fmt.Fprintf(w, "✅ Job %s complete (%s, %d shots)\n", v.ID, v.Backend, v.Shots)
	fmt.Fprintln(w, "\n--- 📊 Histogram ---")
	outcomes := make([]string, 0, len(v.Result))
	for k := range v.Result {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	total := v.Result.Total()
	for _, k := range outcomes {
		n := v.Result[k]
		fmt.Fprintf(w, " |%s> : %6d  %s\n", k, n, bar(n, total))
	}
	return nil
}

func bar(n, total int) string {
	if total == 0 {
		return ""
	}
	return strings.Repeat("█", n*40/total)
}
