// Package config loads runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all tunable parameters for the Sweeply server process.
// Values are loaded from environment variables with defaults that let the
// binary run locally without excessive setup.
type Config struct {
	HTTPAddr        string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSL      bool

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	// Dispatch tunables.
	TopK          int
	PoolLimit     int
	OfferTTL      time.Duration
	RedispatchTTL time.Duration

	// Arrival monitor tunables.
	SweepInterval      time.Duration
	ArrivalTolerance   time.Duration
	RedistributeGrace  time.Duration
	WarnWindow         time.Duration
	WarnOnce           bool
	PunctualityPenalty float64

	// Scoring weights. Must sum to 1.0, validated by matching.NewWeights.
	WeightRating      float64
	WeightDistance    float64
	WeightAcceptance  float64
	WeightPunctuality float64

	LogLevel string
}

func defaults() Config {
	return Config{
		HTTPAddr:        ":8080",
		MetricsAddr:     ":9100",
		ShutdownTimeout: 15 * time.Second,

		DBHost:     "localhost",
		DBPort:     5432,
		DBUser:     "postgres",
		DBPassword: "postgres",
		DBName:     "sweeply",

		RedisGeoKey: "providers_geo",
		KafkaTopic:  "sweeply-notifications",

		TopK:          3,
		PoolLimit:     25,
		OfferTTL:      15 * time.Minute,
		RedispatchTTL: 30 * time.Minute,

		SweepInterval:      15 * time.Minute,
		ArrivalTolerance:   30 * time.Minute,
		RedistributeGrace:  30 * time.Minute,
		WarnWindow:         15 * time.Minute,
		PunctualityPenalty: 0.05,

		WeightRating:      0.4,
		WeightDistance:    0.2,
		WeightAcceptance:  0.2,
		WeightPunctuality: 0.2,

		LogLevel: "info",
	}
}

// Load reads configuration from a .env file (if present) and the process
// environment. Invalid values are collected and returned as a joined error.
func Load() (Config, error) {
	// Missing .env is fine, env vars may be set directly.
	_ = godotenv.Load()

	cfg := defaults()
	var errs []error

	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.MetricsAddr, "METRICS_ADDR")
	setDuration(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setString(&cfg.DBHost, "DB_HOST")
	setInt(&cfg.DBPort, "DB_PORT", &errs)
	setString(&cfg.DBUser, "DB_USER")
	setString(&cfg.DBPassword, "DB_PASSWORD")
	setString(&cfg.DBName, "DB_NAME")
	cfg.DBSSL = strings.EqualFold(os.Getenv("DB_SSL"), "true")

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setString(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setString(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setInt(&cfg.TopK, "DISPATCH_TOP_K", &errs)
	setInt(&cfg.PoolLimit, "DISPATCH_POOL_LIMIT", &errs)
	setDuration(&cfg.OfferTTL, "DISPATCH_OFFER_TTL", &errs)
	setDuration(&cfg.RedispatchTTL, "DISPATCH_REDISPATCH_TTL", &errs)

	setDuration(&cfg.SweepInterval, "MONITOR_SWEEP_INTERVAL", &errs)
	setDuration(&cfg.ArrivalTolerance, "MONITOR_ARRIVAL_TOLERANCE", &errs)
	setDuration(&cfg.RedistributeGrace, "MONITOR_REDISTRIBUTE_GRACE", &errs)
	setDuration(&cfg.WarnWindow, "MONITOR_WARN_WINDOW", &errs)
	cfg.WarnOnce = strings.EqualFold(os.Getenv("MONITOR_WARN_ONCE"), "true")
	setFloat(&cfg.PunctualityPenalty, "MONITOR_PUNCTUALITY_PENALTY", &errs)

	setFloat(&cfg.WeightRating, "SCORING_WEIGHT_RATING", &errs)
	setFloat(&cfg.WeightDistance, "SCORING_WEIGHT_DISTANCE", &errs)
	setFloat(&cfg.WeightAcceptance, "SCORING_WEIGHT_ACCEPTANCE", &errs)
	setFloat(&cfg.WeightPunctuality, "SCORING_WEIGHT_PUNCTUALITY", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.TopK <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_TOP_K must be > 0"))
	}
	if cfg.PoolLimit <= 0 {
		errs = append(errs, fmt.Errorf("DISPATCH_POOL_LIMIT must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// GetEnv retrieves the value of an environment variable with a fallback
// value if not set.
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func setString(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func setInt(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setFloat(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setDuration(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
