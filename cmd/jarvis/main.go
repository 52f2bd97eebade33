// JARVIS - live voice assistant with an agent router behind it.
// Serves the local dashboard API and runs voice sessions against the
// Gemini Live API on the machine's microphone and speaker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-jarvis/internal/config"
	"github.com/teslashibe/go-jarvis/internal/httpc"
	jlog "github.com/teslashibe/go-jarvis/internal/log"
	"github.com/teslashibe/go-jarvis/pkg/agent"
	"github.com/teslashibe/go-jarvis/pkg/audioio"
	"github.com/teslashibe/go-jarvis/pkg/inference"
	"github.com/teslashibe/go-jarvis/pkg/insight"
	"github.com/teslashibe/go-jarvis/pkg/live"
	"github.com/teslashibe/go-jarvis/pkg/session"
	"github.com/teslashibe/go-jarvis/pkg/store"
	"github.com/teslashibe/go-jarvis/pkg/web"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		os.Exit(2)
	}
	logger := jlog.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("jarvis stopped", "error", err)
		os.Exit(1)
	}
}

// loadConfig layers flags over the file and environment configuration.
func loadConfig() (*config.Config, error) {
	path := flag.String("config", "", "Path to a YAML config file (default $JARVIS_CONFIG or jarvis.yaml)")
	addr := flag.String("addr", "", "HTTP listen address")
	user := flag.String("user", "", "User id the assistant acts for")
	level := flag.String("log-level", "", "Log level: debug, info, warn, error")
	backend := flag.String("store", "", "Store backend: memory or firestore")
	audio := flag.String("audio", "", "Audio backend: device or mock")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, err
	}
	for dst, v := range map[*string]string{
		&cfg.HTTPAddr:      *addr,
		&cfg.UserID:        *user,
		&cfg.LogLevel:      *level,
		&cfg.Store.Backend: *backend,
		&cfg.AudioBackend:  *audio,
	} {
		if v != "" {
			*dst = v
		}
	}
	return cfg, cfg.Validate()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Store.Backend == "firestore" {
		return store.NewFirestore(ctx, store.FirestoreConfig{
			ProjectID:       cfg.Store.ProjectID,
			CredentialsFile: cfg.Store.CredentialsFile,
			Logger:          logger,
		})
	}
	logger.Warn("using in-memory store, nothing will persist")
	return store.NewMemory(), nil
}

// ensureProfile creates a minimal profile on first run so sessions and the
// briefing have a language and a name to work with.
func ensureProfile(ctx context.Context, st store.Profiles, cfg *config.Config) error {
	_, err := st.Profile(ctx, cfg.UserID)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return st.SaveProfile(ctx, &store.Profile{UID: cfg.UserID, Language: cfg.Language})
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := ensureProfile(ctx, st, cfg); err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	// Keys saved through the dashboard win over the process configuration.
	keys := inference.KeySourceFunc(func(ctx context.Context) ([]string, error) {
		stored, err := st.APIKeys(ctx, cfg.UserID)
		if err != nil {
			logger.Warn("stored api keys unavailable", "error", err)
		}
		if len(stored) == 0 {
			stored = cfg.APIKeys
		}
		return inference.LookupKeys(stored, "", cfg.APIKey), nil
	})
	factory := inference.GeminiFactory(httpc.Client, logger)
	pool := inference.NewPool(keys, factory, inference.WithLogger(logger))
	if pool.Len(ctx) == 0 {
		logger.Warn("no api keys configured; add one via POST /api/keys")
	}

	router := agent.NewRouter(pool, st, agent.WithLogger(logger))
	chat := agent.NewChat(router, st, agent.WithChatLogger(logger))

	var srv *web.Server
	monitor := insight.New(pool, st,
		insight.WithLogger(logger),
		insight.WithNotify(func(uid string, n insight.Notification) {
			if srv != nil {
				srv.Notify(uid, n)
			}
		}),
	)

	newSession := func(ctx context.Context) (*session.Session, error) {
		key := pool.ActiveKey(ctx)
		if key == "" {
			return nil, inference.ErrNoAPIKey
		}

		src, sink, err := audioio.Open(audioio.Backend(cfg.AudioBackend), logger)
		if err != nil {
			return nil, err
		}

		return session.New(session.Deps{
			UserID: cfg.UserID,
			Store:  st,
			Agent:  router,
			Source: src,
			Sink:   sink,
		},
			session.WithLogger(logger),
			session.WithLiveOptions(live.WithAPIKey(key)),
		)
	}

	srv, err = web.NewServer(web.Config{
		Addr:          cfg.HTTPAddr,
		UserID:        cfg.UserID,
		Language:      cfg.Language,
		Logger:        logger,
		Store:         st,
		Chat:          chat,
		OCR:           router,
		NewSession:    newSession,
		StaticDir:     cfg.StaticDir,
		Notifications: monitor.Notifications,
		ValidateKey: func(ctx context.Context, key string) bool {
			return inference.ValidateKey(ctx, factory, key)
		},
	})
	if err != nil {
		return err
	}

	go monitor.Run(ctx, cfg.UserID, cfg.InsightInterval)

	logger.Info("jarvis ready",
		"addr", cfg.HTTPAddr,
		"user", cfg.UserID,
		"store", cfg.Store.Backend,
		"audio", cfg.AudioBackend,
	)
	return srv.Run(ctx)
}
