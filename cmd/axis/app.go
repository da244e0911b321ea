package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nugget/axis/internal/agent"
	"github.com/nugget/axis/internal/auth"
	"github.com/nugget/axis/internal/buildinfo"
	"github.com/nugget/axis/internal/config"
	"github.com/nugget/axis/internal/llm"
	"github.com/nugget/axis/internal/reschedule"
	"github.com/nugget/axis/internal/store"
	"github.com/nugget/axis/internal/tools"
	"github.com/nugget/axis/internal/usage"
)

// dbFile is the database name inside data_dir.
const dbFile = "axis.db"

// app holds the components every long-running command shares.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error

	db        *sql.DB
	store     *store.Store
	usage     *usage.Store
	client    llm.Client // metered
	generator *reschedule.Generator
	tools     *tools.Registry
}

// openApp loads configuration, sets up logging to logOut (plus the
// optional rotated file), opens the database and builds the model
// client. Close releases everything it opened.
func openApp(configPath string, logOut io.Writer) (*app, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// ParseLogLevel was already checked by Validate.
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	w, closeLog := config.LogWriter(logOut, cfg.LogFile)
	logger := config.NewLogger(w, level, cfg.LogFormat)
	logger.Info("starting Axis", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"data_dir", cfg.DataDir,
		"db_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)

	a := &app{cfg: cfg, logger: logger, closeLog: closeLog}
	if err := a.open(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open() error {
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	db, err := store.OpenDB(a.cfg.Database.Driver, filepath.Join(a.cfg.DataDir, dbFile))
	if err != nil {
		return err
	}
	a.db = db

	if a.store, err = store.New(db, a.logger); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if a.usage, err = usage.NewStore(db); err != nil {
		return fmt.Errorf("open usage store: %w", err)
	}

	apiKey, err := a.cfg.ResolveAPIKey()
	if err != nil {
		return err
	}
	base, err := llm.New(a.cfg.LLM, apiKey, a.logger)
	if err != nil {
		return err
	}
	a.client = usage.NewMeter(base, a.usage, a.logger)
	a.generator = reschedule.NewGenerator(a.client, a.cfg.Reschedule.Temperature, a.cfg.Reschedule.MaxTokens, a.logger)
	a.tools = tools.NewRegistry(a.generator, a.logger)
	return nil
}

func (a *app) newLoop() *agent.Loop {
	return agent.NewLoop(agent.Config{
		Store:       a.store,
		Client:      a.client,
		Tools:       a.tools,
		Limits:      agentLimits(a.cfg.Agent),
		Temperature: a.cfg.LLM.Temperature,
		MaxTokens:   a.cfg.LLM.MaxTokens,
		Logger:      a.logger,
	})
}

func (a *app) newAuthenticator() *auth.Authenticator {
	ttl := time.Duration(a.cfg.Auth.TokenTTLHours) * time.Hour
	return auth.New(a.cfg.Auth.JWTSecret, ttl, a.cfg.Auth.BcryptCost)
}

// Close releases the database and the log file.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}
