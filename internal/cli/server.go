package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fhe-quiz-client/internal/app"
	"fhe-quiz-client/internal/config"
	"fhe-quiz-client/internal/infra/fhe"
	"fhe-quiz-client/internal/infra/memory"
	pgledger "fhe-quiz-client/internal/infra/postgres"
	redisledger "fhe-quiz-client/internal/infra/redis"
	"fhe-quiz-client/internal/lib/slogpretty"
	transport "fhe-quiz-client/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const defaultLedgerAddress = "0x0000000000000000000000000000000000f4e51d"

// NewStartCmd builds the CLI subcommand to start the client daemon.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz client daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// ledgerGateway is the full gateway surface a backend must provide.
type ledgerGateway interface {
	app.ReadGateway
	app.WriteGateway
	transport.SignerSetter
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slogpretty.NewHandler(os.Stdout, slog.LevelInfo))

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ledgerAddress := cfg.Ledger.Address
	if ledgerAddress == "" {
		ledgerAddress = defaultLedgerAddress
	}

	var ledger ledgerGateway
	switch {
	case cfg.Postgres.URL != "":
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		ledger = pgledger.NewLedger(pool, ledgerAddress)
		logger.Info("using postgres ledger backend")
	case cfg.Redis.Addr != "":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ledger = redisledger.NewLedger(client, ledgerAddress)
		logger.Info("using redis ledger backend", "addr", cfg.Redis.Addr)
	default:
		ledger = memory.NewLedger(ledgerAddress)
		logger.Info("using in-memory ledger backend")
	}

	secret := cfg.Ledger.Secret
	if secret == "" {
		secret = "fhe-quiz-local"
	}
	encryptor := fhe.NewLocalEncryptor(secret)

	notifier := app.NewNotifierWithDelays(
		config.Duration(cfg.Status.SuccessClear, 2*time.Second),
		config.Duration(cfg.Status.ErrorClear, 3*time.Second),
	)
	client := app.NewClient(ledger, ledger, encryptor, notifier, logger)
	wsHandler := transport.NewWSHandler(client, ledger, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz client", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
