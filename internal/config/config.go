// internal/config/config.go

// Package config reads runtime settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jason-s-yu/quizduel/internal/auth"
	"github.com/jason-s-yu/quizduel/internal/match"
	"github.com/sirupsen/logrus"
)

// Config is everything the binaries need to start.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	Rules    match.Rules
	QueueTTL time.Duration

	QuestionBankFile string
	DatabaseURL      string

	RedisAddr          string
	RedisDB            int
	HistorianQueueName string

	HistorianBatchSize int
	HistorianFlush     time.Duration
	MatchInactivity    time.Duration

	NATSURL           string
	NATSSubjectPrefix string

	CORSOrigins []string
	TokenExpire time.Duration
	// Raw ed25519 key files. When unset a key pair is generated per process.
	AuthPrivateKeyPath string
	AuthPublicKeyPath  string
}

// Load reads the environment. Malformed values are errors; missing ones take defaults.
func Load() (Config, error) {
	var errs []string
	rules := match.DefaultRules()

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		QuestionBankFile:   getEnv("QUESTION_BANK_FILE", ""),
		DatabaseURL:        databaseURL(),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		HistorianQueueName: getEnv("HISTORIAN_QUEUE_NAME", ""),
		NATSURL:            getEnv("NATS_URL", ""),
		NATSSubjectPrefix:  getEnv("NATS_SUBJECT_PREFIX", ""),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
		AuthPrivateKeyPath: getEnv("AUTH_PRIVATE_KEY_PATH", ""),
		AuthPublicKeyPath:  getEnv("AUTH_PUBLIC_KEY_PATH", ""),
	}

	rules.PickTimeout = getEnvDuration("PICK_TIMEOUT", rules.PickTimeout, &errs)
	rules.QuestionTimeout = getEnvDuration("QUESTION_TIMEOUT", rules.QuestionTimeout, &errs)
	rules.RoundOverTimeout = getEnvDuration("ROUND_OVER_TIMEOUT", rules.RoundOverTimeout, &errs)
	rules.ResultRetention = getEnvDuration("RESULT_RETENTION", rules.ResultRetention, &errs)
	rules.QuestionsPerRound = getEnvInt("QUESTIONS_PER_ROUND", rules.QuestionsPerRound, &errs)
	rules.MaxRounds = getEnvInt("MAX_ROUNDS", rules.MaxRounds, &errs)
	rules.TimeoutPenalty = getEnvInt("TIMEOUT_PENALTY", rules.TimeoutPenalty, &errs)
	rules.ScoreFloor = match.FloorMode(getEnv("SCORE_FLOOR", string(rules.ScoreFloor)))
	rules.ForfeitOnLeave = getEnvBool("FORFEIT_ON_LEAVE", rules.ForfeitOnLeave, &errs)
	cfg.Rules = rules

	cfg.QueueTTL = getEnvDuration("QUEUE_TTL", 60*time.Second, &errs)
	cfg.RedisDB = getEnvInt("REDIS_DB", 0, &errs)
	cfg.HistorianBatchSize = getEnvInt("HISTORIAN_BATCH_SIZE", 20, &errs)
	cfg.HistorianFlush = getEnvDuration("HISTORIAN_FLUSH_INTERVAL", 500*time.Millisecond, &errs)
	cfg.MatchInactivity = getEnvDuration("MATCH_INACTIVITY_TIMEOUT", 10*time.Minute, &errs)

	expire, err := auth.ParseExpiry(os.Getenv("TOKEN_EXPIRE_TIME"))
	if err != nil {
		errs = append(errs, err.Error())
	}
	cfg.TokenExpire = expire

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("invalid match rules: %w", err)
	}
	if c.QueueTTL <= 0 {
		return fmt.Errorf("queue ttl must be positive, got %s", c.QueueTTL)
	}
	if c.HistorianBatchSize <= 0 || c.HistorianFlush <= 0 || c.MatchInactivity <= 0 {
		return fmt.Errorf("historian batch size, flush interval and inactivity timeout must be positive")
	}
	if (c.AuthPrivateKeyPath == "") != (c.AuthPublicKeyPath == "") {
		return fmt.Errorf("AUTH_PRIVATE_KEY_PATH and AUTH_PUBLIC_KEY_PATH must be set together")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// databaseURL prefers DATABASE_URL, else assembles one from the POSTGRES_* / PG_* keys.
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	host := os.Getenv("PG_HOST")
	if host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(os.Getenv("POSTGRES_USER"), os.Getenv("POSTGRES_PASSWORD")),
		Host:   host + ":" + getEnv("PG_PORT", "5432"),
		Path:   "/" + getEnv("PG_DATABASE", "quizduel"),
	}
	return u.String()
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int, errs *[]string) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not an integer", key, s))
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration, errs *[]string) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not a duration", key, s))
		return def
	}
	return d
}

func getEnvBool(key string, def bool, errs *[]string) bool {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not a boolean", key, s))
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
