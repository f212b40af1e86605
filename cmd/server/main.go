// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/quizduel/internal/auth"
	"github.com/jason-s-yu/quizduel/internal/cache"
	"github.com/jason-s-yu/quizduel/internal/config"
	"github.com/jason-s-yu/quizduel/internal/database"
	"github.com/jason-s-yu/quizduel/internal/events"
	"github.com/jason-s-yu/quizduel/internal/handlers"
	"github.com/jason-s-yu/quizduel/internal/match"
	"github.com/jason-s-yu/quizduel/internal/matchmaking"
	"github.com/jason-s-yu/quizduel/internal/questions"
	"github.com/jason-s-yu/quizduel/internal/timer"
	_ "github.com/joho/godotenv/autoload"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("server exited")
	}
}

func run(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		p, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer p.Close()
		if err := database.Migrate(ctx, p); err != nil {
			return err
		}
		pool = p
	}

	provider, err := questionProvider(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}

	hub := events.NewHub(32, logger)
	publishers := events.Multi{hub}
	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL, "quizduel-server", logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		publishers = append(publishers, events.NewNATSPublisher(nc, cfg.NATSSubjectPrefix, logger))
	}

	opts := match.Options{
		Rules:     cfg.Rules,
		Timers:    timer.NewScheduler(clockwork.NewRealClock(), logger),
		Questions: provider,
		Events:    publishers,
		Logger:    logger,
	}
	defer opts.Timers.Close()
	if pool != nil {
		opts.Results = database.NewResultRepository(pool)
	}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		opts.Actions = cache.NewActionLog(rdb, cfg.HistorianQueueName, logger)
	}

	engine, err := match.NewEngine(opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	queue := matchmaking.NewQueue(engine, opts.Timers, cfg.QueueTTL, publishers, logger)
	defer queue.Close()

	issuer, err := newIssuer(cfg)
	if err != nil {
		return err
	}

	srv := handlers.NewServer(engine, queue, hub, issuer, logger)
	srv.OriginPatterns = cfg.CORSOrigins
	c := cors.New(cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(srv.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Running on %s", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// questionProvider prefers the Postgres question table and seeds it from the
// bank file when both are configured.
func questionProvider(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger logrus.FieldLogger) (questions.Provider, error) {
	var bank *questions.Bank
	if cfg.QuestionBankFile != "" {
		b, err := questions.LoadBankFile(cfg.QuestionBankFile)
		if err != nil {
			return nil, err
		}
		bank = b
	}

	if pool == nil {
		if bank == nil {
			return nil, errors.New("either QUESTION_BANK_FILE or a database must be configured")
		}
		logger.WithField("file", cfg.QuestionBankFile).Info("serving questions from bank file")
		return bank, nil
	}

	repo := database.NewQuestionRepository(pool)
	if bank != nil {
		all := bank.All()
		if err := repo.SeedQuestions(ctx, all); err != nil {
			return nil, err
		}
		logger.WithField("count", len(all)).Info("seeded question table")
	}
	return repo, nil
}

func newIssuer(cfg config.Config) (*auth.Issuer, error) {
	if cfg.AuthPrivateKeyPath != "" {
		return auth.NewIssuerFromPath(cfg.AuthPrivateKeyPath, cfg.AuthPublicKeyPath, cfg.TokenExpire)
	}
	return auth.NewIssuer(cfg.TokenExpire)
}
