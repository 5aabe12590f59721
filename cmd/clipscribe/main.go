// Command clipscribe is the transcript synchronization and editing server.
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
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/kweiler/clipscribe/internal/config"
	"github.com/kweiler/clipscribe/internal/observe"
	"github.com/kweiler/clipscribe/internal/resilience"
	"github.com/kweiler/clipscribe/internal/server"
	"github.com/kweiler/clipscribe/internal/store"
	"github.com/kweiler/clipscribe/internal/store/postgres"
	"github.com/kweiler/clipscribe/internal/store/sqlite"
	"github.com/kweiler/clipscribe/pkg/provider/asr"
	asrmock "github.com/kweiler/clipscribe/pkg/provider/asr/mock"
	"github.com/kweiler/clipscribe/pkg/provider/asr/whisper"
	"github.com/kweiler/clipscribe/pkg/provider/asr/whisperx"
	"github.com/kweiler/clipscribe/pkg/provider/llm"
	"github.com/kweiler/clipscribe/pkg/provider/llm/anyllm"
	oaillm "github.com/kweiler/clipscribe/pkg/provider/llm/openai"
)

// version is injected via -ldflags at build time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "clipscribe: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "clipscribe: %v\n", err)
		}
		return 1
	}

	// The LevelVar lets the config watcher adjust verbosity at runtime.
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("clipscribe starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry.
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "clipscribe",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// Providers.
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	asrProvider, llmProvider, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer asrProvider.Close()

	// Store.
	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer st.Close()

	// HTTP server.
	srv := server.New(server.Config{
		ASR:      asrProvider,
		LLM:      llmProvider,
		Store:    st,
		Metrics:  observe.DefaultMetrics(),
		Media:    cfg.Media,
		Playback: cfg.Playback,
		Logger:   logger,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Config hot reload.
	watcher, err := config.NewWatcher(*configPath, func(d config.Diff, current *config.Config) {
		if d.LogLevelChanged {
			levelVar.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.PlaybackChanged {
			slog.Info("playback settings changed, new sessions pick them up",
				"resume_delay_ms", d.NewPlayback.EffectiveResumeDelayMs(),
				"pause_only", d.NewPlayback.PauseOnly,
			)
		}
		if d.PauseThresholdChanged {
			slog.Info("pause threshold changed, new transcriptions pick it up",
				"threshold_sec", d.NewPauseThreshold,
			)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the provider factories that ship with
// clipscribe into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ASR.
	reg.RegisterASR("whisper", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []whisper.ServerOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithServerLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})

	reg.RegisterASR("whisper-native", func(entry config.ProviderEntry) (asr.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterASR("whisperx", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []whisperx.Option
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, whisperx.WithBinary(bin))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisperx.WithLanguage(lang))
		}
		return whisperx.New(opts...), nil
	})

	reg.RegisterASR("mock", func(config.ProviderEntry) (asr.Provider, error) {
		return &asrmock.Provider{}, nil
	})

	// LLM. The dedicated OpenAI client handles "openai"; the any-llm
	// backends cover the rest.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildProviders instantiates the providers named in cfg. ASR is required;
// a missing LLM only disables transcript optimization. Both providers get a
// circuit breaker so a failing backend is not hammered by every upload.
func buildProviders(cfg *config.Config, reg *config.Registry) (asr.Provider, llm.Provider, error) {
	p, err := reg.CreateASR(cfg.Providers.ASR)
	if err != nil {
		return nil, nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Name, err)
	}
	asrProvider := resilience.NewASRFailover(p, cfg.Providers.ASR.Name, resilience.FallbackConfig{})
	slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Name)

	var llmProvider llm.Provider
	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			asrProvider.Close()
			return nil, nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		llmProvider = resilience.NewLLMFailover(p, name, resilience.FallbackConfig{})
		slog.Info("provider created", "kind", "llm", "name", name)
	} else {
		slog.Info("no llm provider configured, /optimize disabled")
	}

	return asrProvider, llmProvider, nil
}

// buildStore opens the configured persistence backend. "none" falls back to
// an in-memory SQLite database, so dedupe still works within one process
// lifetime.
func buildStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.StorePostgres:
		return postgres.New(ctx, cfg.DSN)
	case config.StoreNone:
		return sqlite.New(":memory:")
	default:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file:./clipscribe.db"
		}
		return sqlite.New(dsn)
	}
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       clipscribe startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printLine("ASR", providerLabel(cfg.Providers.ASR))
	printLine("LLM", providerLabel(cfg.Providers.LLM))
	printLine("Store", string(cfg.Store.Backend))
	printLine("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(entry config.ProviderEntry) string {
	if entry.Name == "" {
		return "(not configured)"
	}
	if entry.Model != "" {
		return entry.Name + " / " + entry.Model
	}
	return entry.Name
}

func printLine(kind, value string) {
	if value == "" {
		value = "(default)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s : %-19s ║\n", kind, value)
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a
// string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
