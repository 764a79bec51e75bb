package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ryanmccauley/loop/internal/config"
	"github.com/ryanmccauley/loop/internal/console"
	"github.com/ryanmccauley/loop/internal/logging"
	"github.com/ryanmccauley/loop/internal/loop"
	"github.com/ryanmccauley/loop/internal/opencode"
)

// Flag names double as viper keys; LOOP_MAX_ITERATIONS maps to max-iterations.
const (
	flagFile          = "file"
	flagMaxIterations = "max-iterations"
	flagMaxRetries    = "max-retries"
	flagModel         = "model"
	flagAgent         = "agent"
	flagServerURL     = "server-url"
	flagSpawn         = "spawn"
	flagPort          = "port"
	flagBinary        = "opencode-bin"
	flagStatusTool    = "status-tool"
	flagJSON          = "json"
	flagNotify        = "notify"
	flagLogLevel      = "log-level"
	flagLogFormat     = "log-format"
)

// HeadlessResult is the JSON output format for --json.
// It contains the final report for scripts and CI.
type HeadlessResult struct {
	RunID        string              `json:"run_id"`
	SessionID    string              `json:"session_id"`
	Result       string              `json:"result"`
	Reason       string              `json:"reason"`
	Iterations   int                 `json:"iterations"`
	Misses       int                 `json:"misses"`
	LastMisses   int                 `json:"last_misses"`
	TotalCost    float64             `json:"total_cost"`
	TokensIn     int                 `json:"tokens_in"`
	TokensOut    int                 `json:"tokens_out"`
	DurationSecs float64             `json:"duration_secs"`
	Status       string              `json:"status,omitempty"`
	Message      string              `json:"message,omitempty"`
	Error        string              `json:"error,omitempty"`
	Records      []HeadlessIteration `json:"records"`
}

// HeadlessIteration is one record in HeadlessResult.
type HeadlessIteration struct {
	Index        int     `json:"index"`
	Status       string  `json:"status,omitempty"`
	Message      string  `json:"message,omitempty"`
	Cost         float64 `json:"cost"`
	TokensIn     int     `json:"tokens_in"`
	TokensOut    int     `json:"tokens_out"`
	DurationSecs float64 `json:"duration_secs"`
}

// ExitError carries a process exit code for runs that ended without
// completing.
type ExitError struct {
	Code   int
	Reason string
}

func (e *ExitError) Error() string {
	return e.Reason
}

// Exit codes for finished runs.
const (
	ExitComplete    = 0
	ExitIncomplete  = 1
	ExitBlocked     = 2
	ExitInterrupted = 130
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [prompt...]",
		Short: "Run the agent loop on a task",
		Long: `Creates an opencode session, sends the task prompt and keeps the agent
working until it reports complete or blocked through the status tool.

The prompt is taken from the arguments or from --file. Settings come from
.loop/config.yaml, then LOOP_ environment variables, then flags.

Press Ctrl+C once to abort the current turn and print the report; press it
again to exit immediately. On unix, SIGUSR1 pauses or resumes the loop
between iterations.

Example:
  loop run "Add a --dry-run flag to the deploy command"
  loop run --file task.md --max-iterations 10 --model anthropic/claude-sonnet-4
  loop run --spawn --json --file task.md > report.json`,
		RunE: runLoop,
	}
	addRunFlags(cmd)
	return cmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP(flagFile, "f", "", "read the prompt from a file")
	f.IntP(flagMaxIterations, "n", config.DefaultMaxIterations, "maximum number of agent turns")
	f.Int(flagMaxRetries, config.DefaultMaxRetries, "retries of a failed turn")
	f.StringP(flagModel, "m", "", "model as provider/model")
	f.String(flagAgent, "", "opencode agent name")
	f.String(flagServerURL, config.DefaultServerURL, "opencode server url")
	f.Bool(flagSpawn, false, "start an opencode server instead of connecting")
	f.Int(flagPort, config.DefaultServerPort, "port for a spawned server (requires --spawn)")
	f.String(flagBinary, config.DefaultServerBinary, "opencode executable for --spawn")
	f.String(flagStatusTool, config.DefaultStatusTool, "name of the status reporting tool")
	f.Bool(flagJSON, false, "print the final report as JSON to stdout (progress goes to stderr)")
	f.Bool(flagNotify, false, "ring the bell or send an OS notification when the run ends")
	f.String(flagLogLevel, "", "log level: debug, info, warn or error")
	f.String(flagLogFormat, "", "log format: console or json")
}

// newViper binds cmd's flags and LOOP_ environment variables.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("LOOP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

// applyOverrides layers explicitly set flags and environment variables over
// the file config, then validates the result.
func applyOverrides(cfg *config.Config, v *viper.Viper) error {
	if v.IsSet(flagMaxIterations) {
		cfg.Limits.MaxIterations = v.GetInt(flagMaxIterations)
	}
	if v.IsSet(flagMaxRetries) {
		cfg.Limits.MaxRetries = v.GetInt(flagMaxRetries)
	}
	if v.IsSet(flagModel) {
		cfg.Agent.Model = v.GetString(flagModel)
	}
	if v.IsSet(flagAgent) {
		cfg.Agent.Name = v.GetString(flagAgent)
	}
	if v.IsSet(flagServerURL) {
		cfg.Server.URL = v.GetString(flagServerURL)
	}
	if v.IsSet(flagSpawn) {
		cfg.Server.Spawn = v.GetBool(flagSpawn)
	}
	if v.IsSet(flagPort) {
		cfg.Server.Port = v.GetInt(flagPort)
	}
	if v.IsSet(flagBinary) {
		cfg.Server.Binary = v.GetString(flagBinary)
	}
	if v.IsSet(flagStatusTool) {
		cfg.StatusTool = v.GetString(flagStatusTool)
	}
	if v.IsSet(flagLogLevel) {
		cfg.Log.Level = v.GetString(flagLogLevel)
	}
	if v.IsSet(flagLogFormat) {
		cfg.Log.Format = v.GetString(flagLogFormat)
	}
	return config.ValidateConfig(cfg)
}

// readPrompt takes the prompt from a file when given, else from args.
func readPrompt(args []string, file string) (string, error) {
	var prompt string
	if file != "" {
		if len(args) > 0 {
			return "", errors.New("give the prompt as arguments or --file, not both")
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		prompt = string(data)
	} else {
		prompt = strings.Join(args, " ")
	}

	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

// setupLogging configures the default logger; diagnostics go to stderr so
// they never mix with --json output.
func setupLogging(cfg *config.Config, debug bool) error {
	level := logging.LevelWarn
	if cfg.Log.Level != "" {
		lv, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return err
		}
		level = lv
	}
	if debug {
		level = logging.LevelDebug
	}

	logging.SetOutput(os.Stderr)
	logging.SetLevel(level)
	if cfg.Log.Format == config.LogFormatJSON {
		logging.SetFormat(logging.FormatJSON)
	} else {
		logging.SetFormat(logging.FormatConsole)
	}
	return nil
}

func runLoop(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg, err := config.LoadConfig(cwd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, v); err != nil {
		return err
	}
	if err := setupLogging(cfg, verbose); err != nil {
		return err
	}

	prompt, err := readPrompt(args, v.GetString(flagFile))
	if err != nil {
		return err
	}

	ctx, stop := withInterrupt(cmd.Context())
	defer stop()

	jsonOut := v.GetBool(flagJSON)
	progressOut := cmd.OutOrStdout()
	if jsonOut {
		progressOut = cmd.ErrOrStderr()
	}
	var obsOpts []console.Option
	if v.GetBool(flagNotify) {
		obsOpts = append(obsOpts, console.WithNotifier(console.NewNotifier(progressOut)))
	}
	obs := console.New(progressOut, obsOpts...)

	stopPause := watchPauseSignal(ctx, obs)
	defer stopPause()

	baseURL := cfg.Server.URL
	if cfg.Server.Spawn {
		srv, err := opencode.StartServer(ctx, opencode.ServerOptions{
			Binary: cfg.Server.Binary,
			Port:   cfg.Server.Port,
			Dir:    cwd,
		})
		if err != nil {
			return err
		}
		defer srv.Stop()
		baseURL = srv.URL()
		logging.Info("started opencode server", "url", baseURL)
	}

	client := opencode.NewClient(baseURL, opencode.WithDirectory(cwd))
	if err := client.Ping(ctx); err != nil {
		return fmt.Errorf("cannot reach opencode server at %s: %w", baseURL, err)
	}

	runID := uuid.NewString()
	orch := loop.New(client, obs, loop.Options{
		Prompt:        prompt,
		MaxIterations: cfg.Limits.MaxIterations,
		MaxRetries:    cfg.Limits.MaxRetries,
		Model:         cfg.Agent.Model,
		Agent:         cfg.Agent.Name,
		StatusTool:    cfg.StatusTool,
		RunID:         runID,
		Logger:        logging.Default(),
	})

	report, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		if err := writeHeadlessResult(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	}

	return exitFor(report)
}

// exitFor maps a report to the command's error result.
func exitFor(report *loop.Report) error {
	switch {
	case report.Result == loop.ResultComplete:
		return nil
	case report.Reason == loop.ExitReasonInterrupted:
		return &ExitError{Code: ExitInterrupted, Reason: report.Reason.String()}
	case report.Result == loop.ResultBlocked:
		return &ExitError{Code: ExitBlocked, Reason: report.Reason.String()}
	default:
		return &ExitError{Code: ExitIncomplete, Reason: report.Reason.String()}
	}
}

// NewHeadlessResult flattens a report for JSON output.
func NewHeadlessResult(report *loop.Report) HeadlessResult {
	res := HeadlessResult{
		RunID:        report.RunID,
		SessionID:    report.SessionID,
		Result:       string(report.Result),
		Reason:       report.Reason.String(),
		Iterations:   len(report.Records),
		Misses:       loop.CountMisses(report.Records),
		LastMisses:   loop.TrailingMisses(report.Records),
		TotalCost:    report.TotalCost,
		TokensIn:     report.TokensIn,
		TokensOut:    report.TokensOut,
		DurationSecs: report.TotalDuration.Seconds(),
		Records:      make([]HeadlessIteration, 0, len(report.Records)),
	}
	if report.Err != nil {
		res.Error = report.Err.Error()
	}

	for _, rec := range report.Records {
		it := HeadlessIteration{
			Index:        rec.Index,
			Cost:         rec.Cost,
			TokensIn:     rec.TokensIn,
			TokensOut:    rec.TokensOut,
			DurationSecs: rec.Duration.Seconds(),
		}
		if rec.Status != nil {
			it.Status = string(rec.Status.Status)
			it.Message = rec.Status.Message
		}
		res.Records = append(res.Records, it)
	}

	// The final turn decides the result, so only its verdict is reported.
	if n := len(res.Records); n > 0 {
		res.Status = res.Records[n-1].Status
		res.Message = res.Records[n-1].Message
	}
	return res
}

func writeHeadlessResult(w io.Writer, report *loop.Report) error {
	output, err := json.MarshalIndent(NewHeadlessResult(report), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal headless result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// withInterrupt cancels the returned context on the first SIGINT or SIGTERM
// and exits the process on the second.
func withInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	stop := notifyInterrupt(func(n int) {
		if n == 1 {
			logging.Warn("interrupt received, aborting (press again to exit now)")
			cancel()
			return
		}
		os.Exit(ExitInterrupted)
	})
	return ctx, func() {
		stop()
		cancel()
	}
}
