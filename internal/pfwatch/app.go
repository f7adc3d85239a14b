// Package pfwatch wires the classifier, aggregator, snapshot codec and
// report renderer into the repeating watch cycle.
package pfwatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/mailops/pfwatch/internal/aggregate"
	"github.com/mailops/pfwatch/internal/classify"
	"github.com/mailops/pfwatch/internal/metrics"
	"github.com/mailops/pfwatch/internal/report"
	"github.com/mailops/pfwatch/internal/snapshot"
	"github.com/mailops/pfwatch/internal/tail"
)

// Control keys accepted while waiting between cycles.
const (
	keyQuit      = 'q'
	keyDomain    = 'd'
	keySnapshot  = 's'
	keyRinse     = 'e'
	keyRedraw    = 'r'
	keyNextCycle = 'n'
	keyCtrlC     = 0x03
	keyCtrlD     = 0x04
)

// App runs the watch loop. All table mutation happens on the loop
// goroutine; keystrokes and config updates are delivered over channels
// and handled only at the wait point, so no locking is needed.
type App struct {
	cfg      Config
	field    aggregate.Field
	agg      *aggregate.Aggregator
	readers  []*tail.Reader
	renderer *report.Renderer

	interactive bool
	keys        chan byte
}

// NewApp builds an app from a validated config.
func NewApp(cfg Config) (*App, error) {
	field, err := aggregate.ParseField(cfg.SortField)
	if err != nil {
		return nil, err
	}
	readers := make([]*tail.Reader, 0, len(cfg.LogFiles))
	for _, path := range cfg.LogFiles {
		readers = append(readers, tail.NewReader(path))
	}
	interactive := !cfg.Plain && !cfg.Once && term.IsTerminal(int(os.Stdin.Fd()))
	width := 0
	if interactive {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	return &App{
		cfg:         cfg,
		field:       field,
		agg:         aggregate.New(cfg.RinseHours, time.Now()),
		readers:     readers,
		renderer:    &report.Renderer{Plain: !interactive, Width: width},
		interactive: interactive,
		keys:        make(chan byte, 8),
	}, nil
}

// Run executes cycles until the context is canceled, the quit key is
// pressed, or (in once mode) a single cycle completes.
func (a *App) Run(ctx context.Context, updates <-chan Config) error {
	if a.cfg.MetricsListen != "" {
		errc := metrics.Serve(a.cfg.MetricsListen)
		go func() {
			if err := <-errc; err != nil {
				logger.Error().Err(err).Msg("metrics listener stopped")
			}
		}()
	}

	if a.cfg.SnapshotFile != "" && FileExists(a.cfg.SnapshotFile) {
		if err := snapshot.Load(a.cfg.SnapshotFile, a.agg); err != nil {
			logger.Warn().Err(err).Msg("snapshot load failed, starting empty")
		} else {
			logger.Info().
				Int("senders", a.agg.SenderLen()).
				Int("queue", a.agg.QueueLen()).
				Msg("snapshot restored")
		}
	}
	if a.cfg.CursorFile != "" {
		if err := tail.LoadCursors(a.cfg.CursorFile, a.readers); err != nil {
			logger.Warn().Err(err).Msg("cursor load failed, reading from start")
		}
	}

	if a.interactive {
		fd := int(os.Stdin.Fd())
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("set terminal raw mode: %w", err)
		}
		defer term.Restore(fd, oldState)
		go a.readKeys(ctx)
	}

	defer a.persist()

	for {
		a.cycle(time.Now(), false)
		if a.cfg.Once {
			return nil
		}
		quit, err := a.wait(ctx, updates)
		if err != nil || quit {
			return err
		}
	}
}

// cycle is one pass: clear deltas, ingest new lines, render, rinse,
// persist. forcedRinse bypasses the rinse interval gate.
func (a *App) cycle(now time.Time, forcedRinse bool) {
	a.agg.ClearDeltas()
	a.ingest(now)
	a.render()
	if n := a.agg.Rinse(now, forcedRinse); n > 0 {
		logger.Info().Int("evicted", n).Msg("rinse")
	}
	a.persist()
}

func (a *App) ingest(now time.Time) {
	for _, r := range a.readers {
		lines, err := r.Poll(now)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("log", r.Template()).Msg("log read failed, skipping")
		}
		for _, line := range lines {
			metrics.LinesRead.Inc()
			ev := classify.Classify(line)
			if ev.Kind == classify.NoEvent {
				metrics.LinesSkipped.Inc()
				continue
			}
			metrics.EventsTotal.WithLabelValues(ev.Kind.String()).Inc()
			a.agg.Apply(ev, now)
		}
	}
	metrics.SendersTracked.Set(float64(a.agg.SenderLen()))
	metrics.QueueEntries.Set(float64(a.agg.QueueLen()))
}

func (a *App) render() {
	var (
		title string
		rows  []aggregate.Row
	)
	if a.cfg.DomainMode {
		title = fmt.Sprintf("pfwatch: top domains by %s", a.field)
		rows = a.agg.TopDomains(a.field, a.cfg.TopN)
	} else {
		title = fmt.Sprintf("pfwatch: top senders by %s", a.field)
		rows = a.agg.TopSenders(a.field, a.cfg.TopN)
	}
	out := a.renderer.Render(title, a.field, rows)
	if a.interactive {
		// Clear screen and home the cursor; raw mode needs explicit
		// carriage returns.
		os.Stdout.WriteString("\x1b[2J\x1b[H")
		out = withCarriageReturns(out)
	}
	os.Stdout.WriteString(out)
}

func (a *App) persist() {
	if a.cfg.SnapshotFile != "" {
		if err := snapshot.Save(a.cfg.SnapshotFile, a.agg); err != nil {
			logger.Error().Err(err).Msg("snapshot save failed")
		}
	}
	if a.cfg.CursorFile != "" {
		if err := tail.SaveCursors(a.cfg.CursorFile, a.readers); err != nil {
			logger.Error().Err(err).Msg("cursor save failed")
		}
	}
}

// wait blocks until the repeat interval elapses, a control key arrives,
// or a reloaded config is delivered. Returns quit=true when the user
// asked to exit.
func (a *App) wait(ctx context.Context, updates <-chan Config) (quit bool, err error) {
	timer := time.NewTimer(a.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()

		case <-timer.C:
			return false, nil

		case cfg, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			a.applyConfig(cfg)

		case key := <-a.keys:
			switch key {
			case keyQuit, keyCtrlC, keyCtrlD:
				return true, nil
			case keyNextCycle, '\r', '\n':
				return false, nil
			case keyDomain:
				a.cfg.DomainMode = !a.cfg.DomainMode
				a.render()
			case keyRedraw:
				a.render()
			case keySnapshot:
				a.persist()
				logger.Info().Msg("snapshot written")
			case keyRinse:
				n := a.agg.Rinse(time.Now(), true)
				logger.Info().Int("evicted", n).Msg("forced rinse")
				a.render()
			}
		}
	}
}

// applyConfig folds a reloaded config into the running app. Table
// identity and cursors survive; only tunables change.
func (a *App) applyConfig(cfg Config) {
	if field, err := aggregate.ParseField(cfg.SortField); err == nil {
		a.field = field
	}
	a.agg.SetRinseHours(cfg.RinseHours)
	a.cfg.Interval = cfg.Interval
	a.cfg.DomainMode = cfg.DomainMode
	a.cfg.TopN = cfg.TopN
	a.cfg.SortField = cfg.SortField
	a.cfg.RinseHours = cfg.RinseHours
}

func (a *App) readKeys(ctx context.Context) {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		if n != 1 {
			continue
		}
		select {
		case a.keys <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

func withCarriageReturns(s string) string {
	out := make([]byte, 0, len(s)+len(s)/40)
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, '\r')
		}
		out = append(out, s[i])
	}
	return string(out)
}
