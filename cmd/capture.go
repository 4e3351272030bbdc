package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/domcapture/internal/app"
	"github.com/JakeFAU/domcapture/internal/config"
	"github.com/JakeFAU/domcapture/internal/logging"
)

// flagKeys maps CLI flags onto configuration keys.
var flagKeys = map[string]string{
	"input":         "input",
	"output":        "output.dir",
	"threads":       "capture.threads",
	"delay":         "capture.delay_seconds",
	"politeness":    "capture.politeness",
	"page-timeout":  "capture.page_timeout",
	"host-qps":      "capture.host_qps",
	"viewport":      "browser.viewport",
	"chrome-path":   "browser.chrome_path",
	"user-agent":    "browser.user_agent",
	"probe-timeout": "probe.timeout",
	"listen":        "server.listen",
	"log-file":      "logging.file",
	"dev":           "logging.development",
}

// runCapture executes a configured run. Tests replace it to avoid launching
// a browser.
var runCapture = func(cmd *cobra.Command, cfg config.Config, logger *zap.Logger) (app.Result, error) {
	a := app.New(cfg, logger, app.WithConsole(cmd.OutOrStdout()))
	stop := a.Controller().Notify(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	res, err := a.Run(cmd.Context())
	if err != nil {
		return res, fmt.Errorf("capture run: %w", err)
	}
	return res, nil
}

func newCaptureCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture [url|file]",
		Short: "Capture screenshots for a URL or a file of URLs",
		Long: `Reads a single URL or a newline-delimited file of URLs (blank lines and
# comments are skipped), deduplicates them and captures each one.
The first interrupt stops new work and writes a partial report; a second
interrupt exits immediately.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCaptureCommand(cmd, v, args)
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "URL or path to a file of URLs")
	f.StringP("output", "o", "screenshots", "base directory for run folders")
	f.IntP("threads", "t", 3, "number of concurrent capture workers")
	f.Float64P("delay", "d", 3, "seconds to wait after load before polling readiness")
	f.String("viewport", "1366x768", "browser viewport as WIDTHxHEIGHT")
	f.Duration("politeness", time.Second, "pause between captures per worker")
	f.Duration("page-timeout", 25*time.Second, "navigation timeout per page")
	f.Duration("probe-timeout", 5*time.Second, "liveness probe timeout")
	f.Float64("host-qps", 0, "per-host capture rate limit, 0 disables")
	f.String("listen", "", "address for the status API, e.g. :9090")
	f.String("chrome-path", "", "Chrome executable (or CHROME_PATH)")
	f.String("user-agent", "", "override the browser and probe user agent")
	f.String("log-file", "domcapture.log", "rotating JSON log file, empty disables")
	f.Bool("dev", false, "development logging")

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
	return cmd
}

func runCaptureCommand(cmd *cobra.Command, v *viper.Viper, args []string) error {
	cfg, err := loadConfig(cmd, v, args)
	if err != nil {
		return err
	}

	logger, err := logging.NewWithOptions(logging.Options{
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	res, err := runCapture(cmd, cfg, logger)
	if err != nil {
		logger.Error("capture failed", zap.Error(err))
		return err
	}
	printSummary(cmd.OutOrStdout(), res)
	return nil
}

func loadConfig(cmd *cobra.Command, v *viper.Viper, args []string) (config.Config, error) {
	if len(args) == 1 {
		if cmd.Flags().Changed("input") {
			return config.Config{}, errors.New("pass the input either as an argument or with --input, not both")
		}
		v.Set("input", args[0])
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("read --config: %w", err)
	}
	cfg, err := config.Load(v, path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func printSummary(w io.Writer, res app.Result) {
	s := res.Summary
	state := "complete"
	if s.Partial {
		state = "partial"
	}
	fmt.Fprintf(w, "%s run: %d/%d urls reported, %d succeeded, %d failed (%d hosts)\n",
		state, s.Rows, res.Total, s.Successes, s.Failures, s.FailedHosts)
	fmt.Fprintf(w, "reports written to %s\n", res.RunDir)
}
