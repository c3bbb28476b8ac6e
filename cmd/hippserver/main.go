package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/term"

	auth "github.com/hipp-al/go-hipp-auth"
	"github.com/hipp-al/go-hipp-auth/activitymap"
	"github.com/hipp-al/go-hipp-auth/config"
)

const usage = `usage: hippserver [command]

commands:
  serve                     run the HTTP server (default)
  migrate                   apply database migrations
  seed                      migrate, then create default roles and the admin user
  reset-password <username> set a new password for a user
  config                    print the effective configuration
`

type App struct {
	config *config.Config
	logger *glog.BaseLogger
	db     *bun.DB
	repo   auth.RepositoryManager
}

func (a *App) GetLogger(name string) glog.Logger {
	return a.logger.GetLogger(name)
}

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "serve"
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", print.MaybePrettyJSON(err))
		os.Exit(1)
	}

	level := glog.Info
	if cfg.LogDebug {
		level = glog.Trace
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("hipp"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	app := &App{config: cfg, logger: lgr}
	ctx := context.Background()

	if err := run(ctx, app, cmd, flag.Args()); err != nil {
		app.GetLogger("main").Error("command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *App, cmd string, args []string) error {
	switch cmd {
	case "config":
		fmt.Println(print.MaybePrettyJSON(app.config.Redacted()))
		return nil
	case "serve", "migrate", "seed", "reset-password":
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	if err := WithPersistence(ctx, app); err != nil {
		return err
	}
	defer app.db.Close()

	switch cmd {
	case "migrate":
		return nil
	case "seed":
		return Seed(ctx, app)
	case "reset-password":
		if len(args) < 2 {
			return fmt.Errorf("reset-password requires a username")
		}
		return ResetPassword(ctx, app, args[1])
	}

	if err := Seed(ctx, app); err != nil {
		return err
	}
	return Serve(ctx, app)
}

// WithPersistence opens the database and applies pending migrations
func WithPersistence(ctx context.Context, app *App) error {
	var db *bun.DB
	switch app.config.DBDriver {
	case config.DriverPostgres:
		sqldb, err := sql.Open("pgx", app.config.DSN())
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to open postgres")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		sqldb, err := sql.Open(sqliteshim.ShimName, app.config.DSN())
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to open sqlite")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return errors.Wrap(err, errors.CategoryInternal, "database is not reachable").
			WithMetadata(map[string]any{"driver": app.config.DBDriver})
	}

	if err := auth.Migrate(ctx, db, app.GetLogger("migrate")); err != nil {
		db.Close()
		return err
	}

	app.db = db
	app.repo = auth.NewRepositoryManager(db)
	return nil
}

func (a *App) hasher() auth.PasswordHasher {
	return auth.NewPasswordHasher(a.config.PasswordHashCost)
}

func (a *App) commandDeps() auth.CommandDeps {
	return auth.CommandDeps{
		Repo:        a.repo,
		Hasher:      a.hasher(),
		Policy:      a.config.PasswordPolicy(),
		PhoneRegion: a.config.PhoneDefaultRegion,
		Activity:    activitymap.LogSink(a.GetLogger("activity")),
		Logger:      a.GetLogger("commands"),

		EmailDerivedIDs: a.config.UserIDsFromEmail,
	}
}

func Seed(ctx context.Context, app *App) error {
	return auth.NewSeeder(app.repo, app.hasher()).
		WithLogger(app.GetLogger("seed")).
		WithAdmin(app.config.AdminSeed()).
		Seed(ctx)
}

// ResetPassword prompts twice for a new password and stores it
func ResetPassword(ctx context.Context, app *App, username string) error {
	record, err := auth.NewDirectory(app.repo).GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}

	password, err := readPassword("new password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("repeat password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	id, err := uuid.Parse(record.ID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "stored user id is not a uuid")
	}

	err = auth.NewResetPasswordHandler(app.commandDeps()).Execute(ctx, auth.ResetPasswordMessage{
		UserID:      id,
		NewPassword: password,
		Actor:       auth.ActorRef{ID: "cli", Type: "system"},
	})
	if err != nil {
		return err
	}

	fmt.Printf("password updated for %s\n", record.Username)
	return nil
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryBadInput, "unable to read password")
	}
	return string(raw), nil
}

// Serve runs the HTTP server until a termination signal arrives
func Serve(ctx context.Context, app *App) error {
	tokens, err := auth.NewTokenService(app.config, app.GetLogger("tokens"))
	if err != nil {
		return err
	}

	provider := auth.NewUserProvider(app.repo, app.hasher()).
		WithLogger(app.GetLogger("provider"))

	auther := auth.NewAuthenticator(provider, tokens).
		WithLogger(app.GetLogger("auth")).
		WithActivitySink(activitymap.LogSink(app.GetLogger("activity")))

	gate := auth.NewHTTPAuthenticator(tokens, app.config).
		WithLogger(app.GetLogger("auth:gate")).
		WithValidationListeners(auth.TokenAuditListener(app.GetLogger("auth:token")))

	ctrl := auth.NewController(auther, app.commandDeps()).
		WithContextKey(gate.ContextKey())

	srv := fiber.New(fiber.Config{
		AppName:               "hippserver",
		DisableStartupMessage: true,
		ErrorHandler:          auth.ErrorHandler(app.GetLogger("http")),
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})

	srv.Use(recover.New())
	srv.Use(requestid.New())
	srv.Use(logger.New())
	srv.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	srv.Get("/healthz", func(c *fiber.Ctx) error {
		pingCtx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := app.db.PingContext(pingCtx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth.RegisterRoutes(srv, gate, ctrl.Routes())

	errc := make(chan error, 1)
	go func() {
		app.GetLogger("http").Info("listening", "addr", app.config.HTTPAddr)
		errc <- srv.Listen(app.config.HTTPAddr)
	}()

	select {
	case err := <-errc:
		return err
	case sig := <-WaitExitSignal():
		app.GetLogger("http").Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.ShutdownWithContext(shutdownCtx)
}

func WaitExitSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}
