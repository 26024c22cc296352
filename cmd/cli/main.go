package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"gostudio/adapters/llm"
	"gostudio/adapters/sqlite"
	"gostudio/adapters/tabular"
	"gostudio/app"
	studio "gostudio/domain/session"
	"gostudio/internal"
	"gostudio/internal/config"
	"gostudio/internal/events"
	"gostudio/internal/reasoning"
	"gostudio/internal/session"
	"gostudio/internal/stats"
	"gostudio/ports"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "gostudio-cli",
		Short: "Run guided driver analyses on CSV and Excel files from the terminal",
	}

	rootCmd.AddCommand(
		newProfileCmd(),
		newAnalyzeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runOptions struct {
	dbPath   string
	apply    []string
	target   string
	top      int
	asJSON   bool
	verbose  bool
	useLLM   bool
	timeout  time.Duration
	goal     string
	fileName string
}

func newProfileCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "profile [file]",
		Short: "Profile a dataset and list missing-value solutions",
		Long: `Load a CSV, TSV or XLSX file, profile every column and print the dataset
summary together with the missing-value solutions that could be applied.

Example: gostudio-cli profile customers.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.fileName = args[0]
			return runProfile(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Answer a business question about a dataset",
		Long: `Run the whole guided workflow offline: load and profile the file, apply any
requested missing-value solutions, resolve the goal and either rank the drivers
of the target or execute an analysis plan.

A goal that names no clear target (for example "give me an overview") produces
a plan, which the CLI approves and runs. An ambiguous target needs --target.

Examples:
  gostudio-cli analyze customers.csv --goal "What drives revenue?"
  gostudio-cli analyze customers.csv --goal "Why do customers churn?" --apply impute_median:satisfaction
  gostudio-cli analyze sales.xlsx --goal "What is driving our numbers?" --target revenue --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.fileName = args[0]
			if strings.TrimSpace(opts.goal) == "" {
				return fmt.Errorf("--goal is required")
			}
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	addCommonFlags(cmd, &opts)
	cmd.Flags().StringVar(&opts.goal, "goal", "", "Business question to answer")
	cmd.Flags().StringSliceVar(&opts.apply, "apply", nil, "Missing-value solution ids to apply before asking")
	cmd.Flags().StringVar(&opts.target, "target", "", "Target column to confirm when the goal is ambiguous")
	cmd.Flags().IntVar(&opts.top, "top", 10, "Number of drivers to print")
	return cmd
}

func addCommonFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Keep the session snapshot in this sqlite file")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the final session as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log engine progress to stderr")
	cmd.Flags().BoolVar(&opts.useLLM, "llm", false, "Use the OpenAI reasoner configured by OPENAI_API_KEY")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Overall time limit")
}

// ============================================================================
// WIRING
// ============================================================================

type runtime struct {
	svc   *app.StudioService
	close func()
}

func newRuntime(ctx context.Context, opts runOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.verbose {
		internal.DefaultLogger.SetLevel(internal.LogLevelDebug)
	} else {
		internal.DefaultLogger.SetLevel(internal.LogLevelError)
	}

	var store ports.SessionStore
	closeFn := func() {}
	if opts.dbPath != "" {
		db, err := sqlite.Open(ctx, opts.dbPath)
		if err != nil {
			return nil, err
		}
		store = db
		closeFn = func() { db.Close() }
	}

	var reasoner ports.Reasoner
	if opts.useLLM {
		r, err := llm.NewOpenAIReasoner(llm.Config{
			Model:       cfg.AI.OpenAIModel,
			APIKey:      cfg.AI.OpenAIKey,
			BaseURL:     cfg.AI.BaseURL,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
		MaxRetries:  cfg.AI.MaxRetries,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			closeFn()
			return nil, err
		}
		reasoner = r
	}

	var sink ports.EventSink = events.Nop{}
	if opts.verbose {
		sink = events.NewLogSink(internal.DefaultLogger)
	}

	svc, err := app.NewStudioService(app.Dependencies{
		Sessions:  session.NewManager(store, 24*time.Hour),
		Loader:    tabular.NewLoader(),
		Reasoning: reasoning.NewService(reasoner, cfg.AI.Timeout),
		Sink:      sink,
	}, app.Settings{
		Stats: stats.Config{
			MinSamples:  cfg.Analysis.MinSamples,
			Timeout:     cfg.Analysis.TestTimeout,
			Parallelism: cfg.Analysis.Parallelism,
		},
		Weights: cfg.Analysis.Weights,
	})
	if err != nil {
		closeFn()
		return nil, err
	}
	return &runtime{svc: svc, close: closeFn}, nil
}

// load creates a session, uploads the file and profiles it
func (rt *runtime) load(ctx context.Context, fileName string) (*studio.Session, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fileName, err)
	}
	defer f.Close()

	sess, err := rt.svc.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := rt.svc.Upload(ctx, sess.ID, filepath.Base(fileName), f); err != nil {
		return nil, err
	}
	return rt.svc.StartAnalysis(ctx, sess.ID)
}

// ============================================================================
// COMMANDS
// ============================================================================

func runProfile(ctx context.Context, out io.Writer, opts runOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	sess, err := rt.load(ctx, opts.fileName)
	if err != nil {
		return err
	}
	if opts.asJSON {
		return printJSON(out, sess)
	}

	ready, ok := profiled(sess)
	if !ok {
		return fmt.Errorf("session ended in %s without a profile", sess.Phase())
	}
	printOverview(out, ready)
	printColumns(out, ready)
	printSolutions(out, ready)
	return nil
}

func runAnalyze(ctx context.Context, out io.Writer, opts runOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	sess, err := rt.load(ctx, opts.fileName)
	if err != nil {
		return err
	}
	id := sess.ID

	for _, solutionID := range opts.apply {
		if sess, err = rt.svc.ApplySolution(ctx, id, solutionID); err != nil {
			return fmt.Errorf("applying %s: %w", solutionID, err)
		}
	}

	if sess, err = rt.svc.SubmitGoal(ctx, id, opts.goal); err != nil {
		return err
	}

	switch sess.Phase() {
	case studio.PhaseTargetValidationRequired:
		if opts.target == "" {
			parsed := sess.Current.Payload.(*studio.TargetValidationRequired)
			return fmt.Errorf("the goal matches several targets (%s); rerun with --target",
				strings.Join(parsed.Resolution.CandidateColumns(), ", "))
		}
		if sess, err = rt.svc.ConfirmTarget(ctx, id, opts.target); err != nil {
			return err
		}
	case studio.PhasePlanReady:
		if sess, err = rt.svc.ApprovePlan(ctx, id); err != nil {
			return err
		}
	}

	if opts.asJSON {
		return printJSON(out, sess)
	}

	switch p := sess.Current.Payload.(type) {
	case *studio.AnswerReady:
		printOverview(out, p.ProfileReady)
		printRanking(out, p, opts.top)
	case *studio.Completed:
		printOverview(out, p.ProfileReady)
		printExecution(out, p)
	default:
		printTranscript(out, sess)
		if last := lastError(sess); last != nil {
			return fmt.Errorf("%s: %s", last.Kind, last.Message)
		}
		return fmt.Errorf("analysis stopped in %s", sess.Phase())
	}
	return nil
}

// ============================================================================
// OUTPUT
// ============================================================================

func profiled(sess *studio.Session) (studio.ProfileReady, bool) {
	type profiledPayload interface {
		Profiled() studio.ProfileReady
	}
	if p, ok := sess.Current.Payload.(profiledPayload); ok {
		return p.Profiled(), true
	}
	return studio.ProfileReady{}, false
}

func lastError(sess *studio.Session) *studio.ErrorRecord {
	if len(sess.Errors) == 0 {
		return nil
	}
	return &sess.Errors[len(sess.Errors)-1]
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOverview(out io.Writer, p studio.ProfileReady) {
	fmt.Fprintf(out, "Dataset: %s (%d rows, %d columns)\n", p.FileName, p.Profile.RowCount, p.Profile.ColumnCount)
	fmt.Fprintf(out, "Domain:  %s (confidence %.0f%%)\n", p.Domain.Domain, p.Domain.Confidence*100)
	fmt.Fprintf(out, "\n%s\n", p.Summary.Headline)
	for _, h := range p.Summary.Highlights {
		fmt.Fprintf(out, "  - %s\n", h)
	}
	fmt.Fprintln(out)
}

func printColumns(out io.Writer, p studio.ProfileReady) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tROLE\tTYPE\tMISSING\tUNIQUE")
	for _, c := range p.Profile.Columns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f%%\t%d\n", c.Name, c.Role, c.Datatype, c.MissingPercent, c.UniqueCount)
	}
	w.Flush()
	fmt.Fprintln(out)
}

func printSolutions(out io.Writer, p studio.ProfileReady) {
	if len(p.Solutions) == 0 {
		fmt.Fprintln(out, "No missing-value solutions needed.")
		return
	}
	fmt.Fprintln(out, "Missing-value solutions:")
	for _, s := range p.Solutions {
		fmt.Fprintf(out, "  %-32s %s\n", s.ID, s.Title)
	}
}

func printRanking(out io.Writer, p *studio.AnswerReady, top int) {
	fmt.Fprintf(out, "Drivers of %s (%s):\n", p.Ranking.Target, p.Ranking.TargetType)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPREDICTOR\tSCORE\tTEST\tP-VALUE\tSIGNIFICANCE")
	for _, d := range p.Ranking.Top(top) {
		pValue := "-"
		if ev := d.Result.Evidence(); ev.PValue != nil {
			pValue = fmt.Sprintf("%.4g", *ev.PValue)
		}
		fmt.Fprintf(w, "%d\t%s\t%.3f\t%s\t%s\t%s\n", d.Rank, d.Predictor, d.Composite, d.Result.Test(), pValue, d.SignificanceLabel)
	}
	w.Flush()

	for _, f := range p.Ranking.Flags {
		fmt.Fprintf(out, "  ! %s: %s\n", f.Column, f.Reason)
	}
	fmt.Fprintf(out, "\n%s\n", p.Answer.Narrative)
	for _, e := range p.Answer.Evidence {
		fmt.Fprintf(out, "  - %s\n", e)
	}
}

func printExecution(out io.Writer, p *studio.Completed) {
	fmt.Fprintln(out, "Plan results:")
	for _, r := range p.Execution.Results {
		fmt.Fprintf(out, "  [%s] %s: %s\n", r.Status, r.StepID, r.Summary)
		if r.Error != "" {
			fmt.Fprintf(out, "      %s\n", r.Error)
		}
	}
	fmt.Fprintf(out, "%d of %d steps succeeded\n", len(p.Execution.Results)-p.Execution.Failures(), len(p.Execution.Results))
}

func printTranscript(out io.Writer, sess *studio.Session) {
	for _, m := range sess.Transcript {
		fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
	}
}
