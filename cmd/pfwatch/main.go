package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/mailops/pfwatch/internal/pfwatch"
)

const helpDescription = `
Watch a postfix mail log and keep running per-sender delivery counters.

pfwatch tails the mail log, classifies queue lifecycle events (enqueue,
delivery, requeue, removal), and periodically reports the top talkers by
recipients queued, sent, bounced, deferred or axed. State is persisted
across restarts and stale senders are evicted on a rinse interval.

While running, single keys control the display:
  r  redraw the report          s  write a snapshot now
  d  toggle sender/domain view  e  run the rinse now
  n  start the next cycle now   q  quit
`

var exampleUsage = strings.TrimSpace(`
  pfwatch --log-file /var/log/maillog --snapshot /var/lib/pfwatch/state
  pfwatch --log-file '/var/log/maillog.2006-01-02' --sort d_sent --top 30
  pfwatch --config $HOME/.pfwatch/config.toml --once --plain
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := pfwatch.DefaultConfig()
	var cfgPath string

	log := pfwatch.Logger()

	root := &cobra.Command{
		Use:     "pfwatch",
		Short:   "Top-style watcher for postfix mail logs",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = pfwatch.DefaultConfigPath()
			}

			// Build set of changed flags: flags beat env beats file.
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			// The watcher rebuilds from this on every reload, so a key
			// deleted from the config file reverts to its default.
			base := cfg
			if err := pfwatch.ApplyEnvConfig(&base, changed); err != nil {
				return err
			}

			if cfgFile != "" && pfwatch.FileExists(cfgFile) {
				fc, err := pfwatch.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := pfwatch.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			if err := pfwatch.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			log.Info().
				Strs("logs", cfg.LogFiles).
				Str("snapshot", cfg.SnapshotFile).
				Dur("interval", cfg.Interval).
				Int("rinse_hours", cfg.RinseHours).
				Str("sort", cfg.SortField).
				Msg("configuration")

			app, err := pfwatch.NewApp(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var updates <-chan pfwatch.Config
			if cfgFile != "" && pfwatch.FileExists(cfgFile) && !cfg.Once {
				watcher := pfwatch.NewConfigWatcher(cfgFile, base, changed)
				go watcher.Run(ctx)
				updates = watcher.Updates()
			}

			if err := app.Run(ctx, updates); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.pfwatch/config.toml)")
	root.Flags().StringSliceVar(&cfg.LogFiles, "log-file", cfg.LogFiles, "mail log path, repeatable; may embed the date token 2006-01-02")
	root.Flags().StringVar(&cfg.SnapshotFile, "snapshot", cfg.SnapshotFile, "file for persisted queue/sender state")
	root.Flags().StringVar(&cfg.CursorFile, "cursor-file", cfg.CursorFile, "file for persisted log read offsets (defaults next to snapshot)")

	root.Flags().DurationVar(&cfg.Interval, "interval", cfg.Interval, "repeat interval between cycles")
	root.Flags().IntVar(&cfg.RinseHours, "rinse-hours", cfg.RinseHours, fmt.Sprintf("hours between stale-sender evictions, clamped to [1,12] (default %d)", pfwatch.DefaultRinseHours))

	root.Flags().BoolVar(&cfg.DomainMode, "domain", cfg.DomainMode, "aggregate by sender domain instead of full address")
	root.Flags().StringVar(&cfg.SortField, "sort", cfg.SortField, "report sort field: nrcpt, pending, sent, bounced, deferred, axed or d_-prefixed delta")
	root.Flags().IntVar(&cfg.TopN, "top", cfg.TopN, "number of rows to report")

	root.Flags().StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "address for the Prometheus /metrics endpoint (disabled when empty)")
	if err := root.Flags().MarkHidden("metrics-listen"); err != nil {
		log.Info().Err(err).Msg("failed to hide metrics-listen flag")
	}
	root.Flags().BoolVar(&cfg.Plain, "plain", cfg.Plain, "plain output without colors or screen control")
	root.Flags().BoolVar(&cfg.Once, "once", cfg.Once, "run one cycle and exit")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("pfwatch")
		os.Exit(1)
	}

}
