// Command ghostline runs the inline completion daemon: it loads the YAML
// configuration, assembles the backend failover chain, starts the suggestion
// engine run loop, and serves the operational HTTP endpoint (/metrics,
// /healthz, /readyz).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pkravets/ghostline/internal/config"
	"github.com/pkravets/ghostline/internal/engine"
	"github.com/pkravets/ghostline/internal/engine/edit"
	"github.com/pkravets/ghostline/internal/feedback"
	"github.com/pkravets/ghostline/internal/health"
	"github.com/pkravets/ghostline/internal/observe"
	"github.com/pkravets/ghostline/internal/voice"
	"github.com/pkravets/ghostline/pkg/backend"
	"github.com/pkravets/ghostline/pkg/backend/httpapi"
	"github.com/pkravets/ghostline/pkg/backend/openai"
)

// spoolDrainInterval is how often undelivered feedback is retried.
const spoolDrainInterval = 5 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "ghostline.yaml", "path to the YAML configuration file")
	dictatePath := flag.String("dictate", "", "transcribe the given audio file, print the classified result, and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ghostline: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ghostline: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	slog.Info("ghostline starting",
		"config", *configPath,
		"backends", len(cfg.Backends),
		"log_level", cfg.Logging.Level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "ghostline",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownObserve(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	client, err := reg.BuildChain(cfg)
	if err != nil {
		slog.Error("failed to build backend chain", "err", err)
		return 1
	}
	for _, b := range cfg.Backends {
		slog.Info("backend configured", "name", b.Name, "base_url", b.BaseURL, "model", b.Model)
	}

	var spool *feedback.Spool
	engineOpts := []engine.Option{engine.WithMetrics(observe.DefaultMetrics())}
	if cfg.Feedback.SpoolPath != "" {
		spool = feedback.NewSpool(cfg.Feedback.SpoolPath)
		engineOpts = append(engineOpts, engine.WithFeedbackSpool(func(fb backend.Feedback) {
			if err := spool.Add(fb); err != nil {
				slog.Warn("feedback spool write failed", "err", err)
			}
		}))
	}

	bridge := voice.NewBridge(client, cfg.Engine.Locale,
		voice.WithCommandFilter(buildCommandFilter(cfg.Voice)),
		voice.WithMetrics(observe.DefaultMetrics()))

	if *dictatePath != "" {
		return dictateOnce(ctx, bridge, *dictatePath)
	}

	sched := engine.NewRunLoop()
	defer sched.Close()

	eng := engine.New(client, sched, logEvents{}, cfg.Engine.EngineSettings(), engineOpts...)
	defer eng.Close()

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(old, new)
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	g, ctx := errgroup.WithContext(ctx)

	// Keep the daemon alive until a shutdown signal arrives even when the
	// ops endpoint and spool are disabled.
	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error {
			return serveOps(ctx, cfg)
		})
	}

	if spool != nil {
		g.Go(func() error {
			drainSpool(ctx, spool, client)
			return nil
		})
	}

	slog.Info("ghostline ready")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinBackends wires the backend factories that ship with
// ghostline into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.Register("service", func(entry config.BackendEntry) (backend.Client, error) {
		var opts []httpapi.Option
		if entry.APIKey != "" {
			opts = append(opts, httpapi.WithAPIKey(entry.APIKey))
		}
		return httpapi.New(entry.BaseURL, opts...)
	})

	reg.Register("openai", func(entry config.BackendEntry) (backend.Client, error) {
		var opts []openai.Option
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, opts...)
	})
}

// dictateOnce transcribes one audio file through the backend chain and
// prints the classified result.
func dictateOnce(ctx context.Context, bridge *voice.Bridge, path string) int {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	u, err := bridge.Dictate(ctx, fileRecorder{path: path})
	if err != nil {
		slog.Error("dictation failed", "path", path, "err", err)
		return 1
	}
	if u.IsCommand {
		fmt.Printf("command: %s (confidence %.2f)\n", u.Command, u.Confidence)
	} else {
		fmt.Printf("transcript: %s\n", u.Text)
	}
	return 0
}

// fileRecorder satisfies [voice.Recorder] by reading a pre-recorded clip.
type fileRecorder struct {
	path string
}

func (r fileRecorder) Record(ctx context.Context) ([]byte, string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, "", err
	}
	mimeType := "application/octet-stream"
	switch {
	case strings.HasSuffix(r.path, ".wav"):
		mimeType = "audio/wav"
	case strings.HasSuffix(r.path, ".webm"):
		mimeType = "audio/webm"
	case strings.HasSuffix(r.path, ".ogg"):
		mimeType = "audio/ogg"
	case strings.HasSuffix(r.path, ".mp3"):
		mimeType = "audio/mpeg"
	}
	return data, mimeType, nil
}

// buildCommandFilter converts the voice config block into a command filter.
func buildCommandFilter(vc config.VoiceConfig) *voice.CommandFilter {
	var opts []voice.FilterOption
	if vc.PhoneticThreshold > 0 {
		opts = append(opts, voice.WithPhoneticThreshold(vc.PhoneticThreshold))
	}
	if vc.FuzzyThreshold > 0 {
		opts = append(opts, voice.WithFuzzyThreshold(vc.FuzzyThreshold))
	}
	for _, p := range vc.Phrases {
		opts = append(opts, voice.WithPhrase(p.Text, voice.Command(p.Command)))
	}
	return voice.NewCommandFilter(opts...)
}

// serveOps runs the operational HTTP server until ctx is cancelled.
func serveOps(ctx context.Context, cfg *config.Config) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	var checkers []health.Checker
	if len(cfg.Backends) > 0 && cfg.Backends[0].BaseURL != "" {
		checkers = append(checkers, health.URLChecker(
			"assistant_service",
			cfg.Backends[0].BaseURL,
			&http.Client{Timeout: 5 * time.Second},
		))
	}
	health.New(checkers...).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ops endpoint listening", "addr", cfg.Metrics.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown error", "err", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// drainSpool periodically retries delivery of spooled feedback records.
func drainSpool(ctx context.Context, spool *feedback.Spool, client backend.Client) {
	ticker := time.NewTicker(spoolDrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delivered, err := spool.Drain(ctx, client)
			if delivered > 0 {
				slog.Info("spooled feedback delivered", "count", delivered)
			}
			if err != nil {
				slog.Debug("feedback spool drain stopped", "err", err)
			}
		}
	}
}

// applyReload applies the hot-reloadable parts of a config change.
func applyReload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged {
		slog.SetDefault(newLogger(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EngineChanged {
		slog.Warn("engine tunables changed; applied to new surfaces on reattach")
	}
	if d.VoiceChanged {
		slog.Warn("voice settings changed; applied on next bridge construction")
	}
	if d.BackendsChanged {
		slog.Warn("backend chain changed; restart required to apply",
			"changes", len(d.BackendChanges))
	}
}

// logEvents writes engine events to the structured log. The daemon has no UI
// of its own; host integrations supply their own [engine.Events].
type logEvents struct{}

func (logEvents) SuggestionChanged(surfaceID string, text string) {
	slog.Debug("suggestion changed", "surface", surfaceID, "len", len(text))
}

func (logEvents) EditSessionChanged(surfaceID string, snap edit.Snapshot) {
	slog.Debug("edit session changed", "surface", surfaceID, "status", snap.Status)
}

func (logEvents) EditPreviewReady(surfaceID string, alternatives []string) {
	slog.Debug("edit preview ready", "surface", surfaceID, "count", len(alternatives))
}

func (logEvents) UserError(surfaceID string, class engine.Class, message string) {
	slog.Warn("user-facing error", "surface", surfaceID, "class", class, "message", message)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
