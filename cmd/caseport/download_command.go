package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"caseport/internal/aao"
	"caseport/internal/logging"
	"caseport/internal/run"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var (
		singleFile    bool
		replace       bool
		policy        string
		sequenceMode  string
		outputRoot    string
		language      string
		playerVersion string
		concurrency   int
		noProgress    bool
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "download <case-id-or-url>...",
		Short: "Download cases for offline playback",
		Long: `Download resolves each case, fetches every asset it references, rewrites
the player page to work without the origin site, and writes the result
under the output root. Cases may be given as numeric trial IDs or as
player URLs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseCaseRefs(args)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("single-file") {
				cfg.Output.SingleFile = singleFile
			}
			if flags.Changed("replace") {
				cfg.Output.ReplaceExisting = replace
			}
			if flags.Changed("policy") {
				cfg.Output.Policy = policy
			}
			if flags.Changed("sequence") {
				cfg.Sequence.Mode = sequenceMode
			}
			if flags.Changed("output") {
				cfg.Paths.OutputRoot = outputRoot
			}
			if flags.Changed("language") {
				cfg.Player.Language = language
			}
			if flags.Changed("player-version") {
				cfg.Player.Version = playerVersion
			}
			if flags.Changed("concurrency") {
				cfg.Download.ConcurrentDownloads = concurrency
			}

			logger, logPath, err := newRunLogger(cfg.Paths.LogDir, cfg.Logging.Level, cfg.Logging.Format, verbose)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			runner := &run.Runner{
				Config: cfg,
				Client: aao.New(aao.Config{Logger: logger}),
				Logger: logger,
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			var bar *progressbar.ProgressBar
			if !noProgress && shouldColorize(errOut) {
				bar = progressbar.NewOptions(len(ids),
					progressbar.OptionSetWriter(errOut),
					progressbar.OptionSetDescription("downloading cases"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				var completed atomic.Int64
				runner.Progress = func(res *run.CaseResult) {
					if n := int(completed.Add(1)); n > bar.GetMax() {
						// Sequence mode can grow the batch mid-run.
						bar.ChangeMax(n)
					}
					bar.Add(1)
				}
			}

			report, runErr := runner.Run(signalCtx, ids)
			if bar != nil {
				bar.Finish()
			}

			renderReport(out, report, shouldColorize(out))
			if logPath != "" {
				fmt.Fprintf(out, "Log written to %s\n", logPath)
			}
			if runErr != nil {
				return runErr
			}
			if report.Status() == run.StatusFailed {
				return fmt.Errorf("no case could be downloaded")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&singleFile, "single-file", false, "Embed every asset into one HTML file")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace existing case output")
	cmd.Flags().StringVar(&policy, "policy", "", "Missing-asset policy: failfast or besteffort")
	cmd.Flags().StringVar(&sequenceMode, "sequence", "", "Linked-case handling: none or every")
	cmd.Flags().StringVarP(&outputRoot, "output", "o", "", "Output root directory")
	cmd.Flags().StringVar(&language, "language", "", "Player interface language")
	cmd.Flags().StringVar(&playerVersion, "player-version", "", "Player engine revision to bundle")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Maximum concurrent downloads")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Mirror the run log to stderr")
	return cmd
}

// parseCaseRefs normalizes the argument list into unique trial IDs,
// keeping the request order.
func parseCaseRefs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	seen := make(map[int64]struct{}, len(args))
	for _, arg := range args {
		id, err := aao.ParseCaseRef(arg)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// newRunLogger builds the run logger. Logs go to a timestamped file under
// the log directory so they never interleave with the progress bar; with
// no log directory configured, or with --verbose, stderr is added.
func newRunLogger(logDir, level, format string, verbose bool) (*slog.Logger, string, error) {
	var outputs []string
	logPath := ""
	if strings.TrimSpace(logDir) != "" {
		stamp := time.Now().UTC().Format("20060102T150405Z")
		logPath = filepath.Join(logDir, fmt.Sprintf("caseport-%s.log", stamp))
		outputs = append(outputs, logPath)
	}
	if verbose || len(outputs) == 0 {
		outputs = append(outputs, "stderr")
	}
	logger, err := logging.New(logging.Options{Level: level, Format: format, OutputPaths: outputs})
	if err != nil {
		return nil, "", err
	}
	return logger, logPath, nil
}
