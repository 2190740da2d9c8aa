package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/stackforge/layerbot/internal/authz"
	"github.com/stackforge/layerbot/internal/bot"
	"github.com/stackforge/layerbot/internal/config"
	"github.com/stackforge/layerbot/internal/github"
	"github.com/stackforge/layerbot/internal/jobstore"
	"github.com/stackforge/layerbot/internal/logging"
	"github.com/stackforge/layerbot/internal/scheduler"
	"github.com/stackforge/layerbot/internal/web"
	"github.com/stackforge/layerbot/internal/webhook"
)

// app wires configuration into the serving components. The same
// wiring backs both serve and replay.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	handler *webhook.Handler
	web     *web.Handler
	sched   *scheduler.Scheduler
}

func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	targets, err := config.LoadTargets(cfg.TargetsPath)
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))

	store := jobstore.NewStore()
	sched := scheduler.New(&scheduler.ExecRunner{}, store, scheduler.Config{
		Workers:           cfg.SchedulerWorkers,
		QueueSize:         cfg.SchedulerQueueSize,
		MaxAttempts:       cfg.SchedulerMaxAttempts,
		InitialBackoff:    cfg.SchedulerRetryInitial,
		BackoffMultiplier: cfg.SchedulerBackoffMultiplier,
		MaxBackoff:        cfg.SchedulerRetryMax,
		BuildCommand:      cfg.BuildCommand,
		DeployCommand:     cfg.DeployCommand,
	}, logger)

	appAuth := &github.AppAuth{
		AppID:      cfg.GitHubAppID,
		PrivateKey: cfg.GitHubPrivateKey,
	}

	authorizer := authz.NewStaticAuthorizer(cfg.CommandUsers, cfg.BotLogin)
	router := webhook.NewRouter(authorizer, logger)

	b := bot.New(cfg, targets, bot.NewGitHubService(appAuth), sched, logger)
	b.RegisterRoutes(router)

	return &app{
		cfg:     cfg,
		logger:  logger,
		handler: webhook.NewHandler(cfg.GitHubWebhookSecret, router, logger),
		web:     web.NewHandler(store),
		sched:   sched,
	}, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Listen for GitHub webhook events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.sched.Shutdown(context.Background())

			r := mux.NewRouter()
			r.HandleFunc("/events", a.handler.Handle).Methods("POST")
			r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("OK"))
			}).Methods("GET")
			a.web.RegisterRoutes(r)

			addr := fmt.Sprintf(":%d", a.cfg.Port)
			a.logger.Info("layerbot started",
				"addr", addr,
				"app", a.cfg.AppName,
				"command_prefix", a.cfg.CommandPrefix)

			if err := http.ListenAndServe(addr, r); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
}

func newReplayCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Dispatch one recorded event from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.sched.Shutdown(context.Background())

			outcome, err := a.handler.Replay(cmd.Context(), file)
			if err != nil {
				return err
			}
			a.logger.Info("event replayed", "file", file, "outcome", outcome.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to a recorded event JSON file")
	cmd.MarkFlagRequired("file")

	return cmd
}
