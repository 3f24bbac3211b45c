// Command heckler is the soundboard bot server. It joins a Discord
// voice channel, transcribes what it hears, and plays back matching
// audio clips. It also serves the admin HTTP API used by hecklerctl.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/hecklerbot/heckler/internal/config"
	discordbot "github.com/hecklerbot/heckler/internal/discord"
	"github.com/hecklerbot/heckler/internal/janitor"
	"github.com/hecklerbot/heckler/internal/observe"
	"github.com/hecklerbot/heckler/internal/react"
	"github.com/hecklerbot/heckler/internal/store"
	"github.com/hecklerbot/heckler/internal/stt"
	"github.com/hecklerbot/heckler/internal/synonym"
	"github.com/hecklerbot/heckler/internal/transcribe"
	"github.com/hecklerbot/heckler/internal/voice"
	"github.com/hecklerbot/heckler/internal/web"
)

const (
	workerCloseTimeout = 10 * time.Second
	// vocabularyRefresh is how often the phonetic oracle re-reads the
	// phrase vocabulary, picking up phrases added over the HTTP API.
	vocabularyRefresh = 5 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	// Bare flags run the server, matching `heckler run`.
	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		return runServer(os.Args[1:])
	}

	switch os.Args[1] {
	case "run":
		return runServer(os.Args[2:])
	case "tidy":
		return runTidy(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "heckler: unknown command %q\n", os.Args[1])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  heckler run  --config <file>            start the bot and admin API
  heckler tidy --config <file> [--clean]  reconcile the clip catalog with disk`)
}

func runServer(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "heckler.toml", "path to the TOML configuration file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heckler: %v\n", err)
		return 1
	}
	slog.SetDefault(newLogger(cfg.LogLevel))

	slog.Info("heckler starting",
		"config", *configPath,
		"data_directory", cfg.DataDirectory,
		"guild", cfg.GuildID,
		"channel", cfg.ChannelID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage ───────────────────────────────────────────────────────────────
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("connect to database", "err", err)
		return 1
	}
	defer pool.Close()

	st := store.NewPostgres(pool, cfg.DataDirectory)
	if err := st.Migrate(ctx); err != nil {
		slog.Error("migrate database", "err", err)
		return 1
	}

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("init telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewDefaultMetrics()
	if err != nil {
		slog.Error("create metrics", "err", err)
		return 1
	}

	// ── Speech to text ────────────────────────────────────────────────────────
	var worker *stt.Worker
	if cfg.Whisper.Model != "" {
		worker, err = stt.NewNativeWorker(cfg.Whisper.Model,
			stt.WithDurationHistogram(metrics.TranscriptionDuration))
	} else {
		worker, err = stt.NewRemoteWorker(cfg.Whisper.URL,
			stt.WithDurationHistogram(metrics.TranscriptionDuration))
	}
	if err != nil {
		slog.Error("create transcription worker", "err", err)
		return 1
	}
	defer worker.Close(workerCloseTimeout)

	// ── Phrase matching ───────────────────────────────────────────────────────
	oracle := synonym.NewPhonetic(nil)
	refreshVocabulary(ctx, st, oracle)

	// ── Reaction pipeline ─────────────────────────────────────────────────────
	player := discordbot.NewPlayer()

	engine := react.New(st, oracle, player, cfg.DataDirectory, cfg.RateAdjuster,
		react.WithCounters(metrics.TranscriptsHandled, metrics.ClipsPlayed, metrics.RateLimited),
	)

	vsession := voice.New(ctx, transcribe.New(worker), player, engine.HandleTranscript,
		voice.WithActiveSpeakersGauge(metrics.ActiveSpeakers))
	defer vsession.Close()

	// ── Discord ───────────────────────────────────────────────────────────────
	bot, err := discordbot.New(cfg, player, vsession)
	if err != nil {
		slog.Error("connect to discord", "err", err)
		return 1
	}
	defer bot.Close()
	engine.SetReporter(func(_ context.Context, message string) {
		bot.ReportPlay(message)
	})

	// ── Run ───────────────────────────────────────────────────────────────────
	periodic := react.NewPeriodicPlayer(st, player, cfg.DataDirectory,
		time.Duration(cfg.RandomClipInterval)*time.Second)

	srv := web.New(st, cfg.DataDirectory, cfg.HTTPAPI.User, cfg.HTTPAPI.Password,
		web.WithStatusFunc(st.Status),
		web.WithMetrics(metrics),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { periodic.Run(gctx); return nil })
	g.Go(func() error { return web.ListenAndServe(gctx, cfg.HTTPAPI, srv.Handler()) })
	g.Go(func() error {
		ticker := time.NewTicker(vocabularyRefresh)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				refreshVocabulary(gctx, st, oracle)
			}
		}
	})

	slog.Info("heckler ready")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

func runTidy(args []string) int {
	fs := flag.NewFlagSet("tidy", flag.ExitOnError)
	configPath := fs.String("config", "heckler.toml", "path to the TOML configuration file")
	clean := fs.Bool("clean", false, "delete orphaned files and catalog rows instead of reporting them")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heckler: %v\n", err)
		return 1
	}
	slog.SetDefault(newLogger(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heckler: connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	st := store.NewPostgres(pool, cfg.DataDirectory)
	report, err := janitor.Scan(ctx, st, cfg.DataDirectory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "heckler: scan catalog: %v\n", err)
		return 1
	}

	if *clean {
		janitor.Clean(ctx, st, cfg.DataDirectory, report, os.Stdout)
	} else {
		janitor.Print(report, os.Stdout)
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", path)
		}
		return nil, err
	}
	return cfg, nil
}

// refreshVocabulary rebuilds the phonetic oracle's vocabulary from the
// words of every stored phrase.
func refreshVocabulary(ctx context.Context, s store.Store, oracle *synonym.Phonetic) {
	phrases, err := s.ListPhrases(ctx)
	if err != nil {
		slog.Warn("load phrase vocabulary", "err", err)
		return
	}
	seen := make(map[string]struct{})
	var words []string
	for _, p := range phrases {
		for _, w := range strings.Fields(p.Text) {
			if _, ok := seen[w]; ok {
				continue
			}
			seen[w] = struct{}{}
			words = append(words, w)
		}
	}
	oracle.SetVocabulary(words)
	slog.Debug("phrase vocabulary refreshed", "words", len(words))
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
