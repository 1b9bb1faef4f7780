package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/prontio/agenda/internal/config"
	"github.com/prontio/agenda/internal/domain/agenda"
	"github.com/prontio/agenda/internal/platform/backend"
	"github.com/prontio/agenda/internal/platform/db"
	"github.com/prontio/agenda/internal/platform/middleware"
	"github.com/prontio/agenda/internal/platform/websocket"
	"github.com/prontio/agenda/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:          "agenda-server",
		Short:        "Clinic agenda view service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(gridCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(weekCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// app holds everything a command needs to talk to the backend.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	gateway *agenda.Gateway
	store   *agenda.SessionStore
	ctrl    *agenda.Controller
	history agenda.TransitionReader
	hub     *websocket.Hub
	pool    *pgxpool.Pool
}

func defaultAgendaConfig(cfg *config.Config) agenda.AgendaConfig {
	return agenda.AgendaConfig{
		StartTime:   cfg.AgendaDefaultStart,
		EndTime:     cfg.AgendaDefaultEnd,
		SlotMinutes: cfg.AgendaDefaultSlotMinutes,
	}
}

func transitionTable(cfg *config.Config) agenda.TransitionTable {
	if cfg.AgendaLockTerminalStatus {
		return agenda.LockTerminalTransitions()
	}
	return agenda.AllowAllTransitions()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, withJournal bool) (*app, error) {
	if err := cfg.ValidateBackend(); err != nil {
		return nil, err
	}

	req := backend.NewHTTPRequester(cfg.BackendURL, backend.HTTPOptions{
		Timeout:         cfg.BackendTimeout,
		ActionSeparator: cfg.BackendActionSeparator,
	}, logger)
	gw := agenda.NewGateway(req)
	defaults := defaultAgendaConfig(cfg)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		gateway: gw,
		hub:     websocket.NewHub(logger),
		store: agenda.NewSessionStore(func() *agenda.ConfigResolver {
			return agenda.NewConfigResolver(gw, defaults, logger)
		}, cfg.SessionIdleTTL),
	}

	var recorder agenda.TransitionRecorder
	if withJournal && cfg.JournalEnabled() {
		pool, err := db.NewPool(ctx, cfg.JournalDatabaseURL, journalPoolOptions(cfg), logger)
		if err != nil {
			return nil, fmt.Errorf("connect journal database: %w", err)
		}
		repo := agenda.NewTransitionRepoPG(pool)
		a.pool = pool
		a.history = repo
		recorder = repo
		logger.Info().Msg("transition journal enabled")
	}

	a.ctrl = agenda.NewController(gw, transitionTable(cfg), recorder, logger).WithPublisher(a.hub)
	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the agenda API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newServer(a *app) *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Content-Type", "X-Request-ID", middleware.SessionHeader},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"version":  version,
			"sessions": a.store.Len(),
			"sockets":  a.hub.ClientCount(),
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pool))
	e.GET("/ws/agenda", websocket.NewHandler(a.hub, cfg.CORSOrigins).HandleConnect)

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	api := e.Group("/api/v1/agenda", middleware.RateLimit(rl))
	if cfg.RequestTimeout > 0 {
		api.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	agenda.NewHandler(a.store, a.ctrl, a.history).RegisterRoutes(api)
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.close()

	e := newServer(a)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.store.Run(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("backend", cfg.BackendURL).
			Str("transitions", a.ctrl.Table().Name()).
			Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func gridCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the slot grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, _ := cmd.Flags().GetBool("remote")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			var ac agenda.AgendaConfig
			if remote {
				a, err := newApp(cmd.Context(), cfg, newLogger(cfg), false)
				if err != nil {
					return err
				}
				r := agenda.NewConfigResolver(a.gateway, defaultAgendaConfig(cfg), a.logger)
				r.EnsureLoaded(cmd.Context())
				ac = r.Config()
			} else {
				ac = agenda.NewConfigResolver(nil, defaultAgendaConfig(cfg), zerolog.Nop()).Config()
			}
			return printGrid(cmd.OutOrStdout(), ac, agenda.BuildGrid(ac))
		},
	}
	cmd.Flags().Bool("remote", false, "Fetch the clinic configuration from the backend")
	return cmd
}

func dayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "day [YYYY-MM-DD]",
		Short: "Print one day of the agenda",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter agenda.DayFilter
			filter.NameContains, _ = cmd.Flags().GetString("nome")
			filter.StatusContains, _ = cmd.Flags().GetString("status")

			a, s, err := cliSession(cmd)
			if err != nil {
				return err
			}
			view, err := a.ctrl.DayView(cmd.Context(), s, firstArg(args), filter, true)
			if err != nil {
				return err
			}
			return printDay(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().String("nome", "", "Only patients whose name contains this text")
	cmd.Flags().String("status", "", "Only appointments whose status contains this text")
	return cmd
}

func weekCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "week [YYYY-MM-DD]",
		Short: "Print the week containing a date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, s, err := cliSession(cmd)
			if err != nil {
				return err
			}
			if err := s.SetView(agenda.ViewWeek); err != nil {
				return err
			}
			week, err := a.ctrl.WeekView(cmd.Context(), s, firstArg(args), true)
			if err != nil {
				return err
			}
			return printWeek(cmd.OutOrStdout(), week)
		},
	}
}

// cliSession builds an app without the journal and opens a throwaway
// session for one command.
func cliSession(cmd *cobra.Command) (*app, *agenda.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg).Level(zerolog.WarnLevel)
	a, err := newApp(cmd.Context(), cfg, logger, false)
	if err != nil {
		return nil, nil, err
	}
	return a, a.store.Create(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the transition journal schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				return printMigrations(cmd.OutOrStdout(), statuses)
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the built-in set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func journalPoolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns}
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *db.Migrator) error) error {
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.JournalEnabled() {
		return errors.New("JOURNAL_DATABASE_URL is required")
	}

	ctx := cmd.Context()
	pool, err := db.NewPool(ctx, cfg.JournalDatabaseURL, journalPoolOptions(cfg), newLogger(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	var source fs.FS = migrations.FS
	if dir != "" {
		source = os.DirFS(dir)
	}
	return fn(ctx, db.NewMigrator(pool, source))
}
