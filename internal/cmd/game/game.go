// Package game parses game command flags and starts the session server.
package game

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/louisbranch/wayfarer.quest/internal/coop/content"
	"github.com/louisbranch/wayfarer.quest/internal/coop/service"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage/memory"
	"github.com/louisbranch/wayfarer.quest/internal/coop/storage/sqlite"
	"github.com/louisbranch/wayfarer.quest/internal/coop/token"
	entrypoint "github.com/louisbranch/wayfarer.quest/internal/platform/cmd"
	"github.com/louisbranch/wayfarer.quest/internal/platform/timeouts"
	"github.com/louisbranch/wayfarer.quest/internal/telemetry"
	"github.com/louisbranch/wayfarer.quest/internal/transport/ws"
)

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 10 * time.Second

// Config holds game command configuration.
type Config struct {
	Port        int    `env:"WAYFARER_QUEST_GAME_PORT" envDefault:"8080"`
	Addr        string `env:"WAYFARER_QUEST_GAME_ADDR"`
	ContentDir  string `env:"WAYFARER_QUEST_CONTENT_DIR" envDefault:"content"`
	DBPath      string `env:"WAYFARER_QUEST_DB_PATH" envDefault:"wayfarer.db"`
	JoinBaseURL string `env:"WAYFARER_QUEST_JOIN_BASE_URL" envDefault:"https://wayfarer.quest"`
}

// ParseConfig parses environment and flags into a Config. A .env file in the
// working directory is loaded first when present.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The game server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The game server listen address (overrides -port)")
	fs.StringVar(&cfg.ContentDir, "content-dir", cfg.ContentDir, "Directory of quest scripts")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path for journals and telemetry")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the session server.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGame, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	library, err := content.LoadDir(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("load quest content: %w", err)
	}
	log.Printf("quest library loaded quests=%d", len(library.QuestIDs()))

	journal, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open journal store: %w", err)
	}
	defer journal.Close()

	opts := service.Options{
		Journal: journal,
		Emitter: telemetry.NewEmitter(journal),
	}
	// Session tokens are optional: without a signing key the server still
	// runs, but reconnects skip token verification.
	if tokens, err := token.LoadConfigFromEnv(nil); err != nil {
		log.Printf("session tokens disabled err=%v", err)
	} else {
		opts.Tokens = &tokens
	}

	hub := ws.NewHub()
	opts.Notifier = hub
	svc := service.New(memory.New(), library, opts)
	hub.Attach(svc)

	mux := http.NewServeMux()
	ws.NewGateway(svc, hub, cfg.JoinBaseURL).Routes(mux)

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	server := &http.Server{Addr: addr, Handler: mux}

	go sweepLoop(ctx, svc)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("game server listening addr=%s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// sweepLoop drives the periodic maintenance the session core needs: presence
// disconnect detection, battle planning timeouts, and room cleanup.
func sweepLoop(ctx context.Context, svc *service.Service) {
	presenceTicker := time.NewTicker(timeouts.HeartbeatInterval)
	defer presenceTicker.Stop()
	cleanupTicker := time.NewTicker(timeouts.CleanupSweepInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-presenceTicker.C:
			if _, err := svc.CheckDisconnects(ctx); err != nil {
				log.Printf("presence sweep err=%v", err)
			}
			if err := svc.TickRounds(ctx); err != nil {
				log.Printf("round sweep err=%v", err)
			}
		case <-cleanupTicker.C:
			removed, err := svc.CleanupExpiredRooms(ctx)
			if err != nil {
				log.Printf("cleanup sweep err=%v", err)
				continue
			}
			if removed > 0 {
				log.Printf("cleanup sweep removed=%d", removed)
			}
		}
	}
}
