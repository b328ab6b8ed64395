package wyvern

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/kaifufi/wyvern-exchange-go/events"
	"github.com/kaifufi/wyvern-exchange-go/state"
	"github.com/kaifufi/wyvern-exchange-go/state/redisdb"
	"github.com/kaifufi/wyvern-exchange-go/state/sqlite"
)

// ChainID identifies the ledger orders are signed for
type ChainID int64

const (
	ChainIDMainnet ChainID = 1
	ChainIDDevnet  ChainID = 50 // local simulations
)

// Big returns the chain id as a big integer
func (id ChainID) Big() *big.Int {
	return big.NewInt(int64(id))
}

// State backends
const (
	BackendMemDB     = "memdb"
	BackendGoLevelDB = "goleveldb"
	BackendSQLite    = "sqlite"
	BackendRedis     = "redis"
)

// Config holds runtime configuration, read from the environment
type Config struct {
	ChainID             ChainID       `env:"WYVERN_CHAIN_ID"             envDefault:"50"`
	StateBackend        string        `env:"WYVERN_STATE_BACKEND"        envDefault:"memdb"`
	StatePath           string        `env:"WYVERN_STATE_PATH"           envDefault:"data"`
	RedisAddr           string        `env:"WYVERN_REDIS_ADDR"           envDefault:"localhost:6379"`
	RedisPrefix         string        `env:"WYVERN_REDIS_PREFIX"         envDefault:"wyvern/"`
	AMQPURL             string        `env:"WYVERN_AMQP_URL"`
	AMQPExchange        string        `env:"WYVERN_AMQP_EXCHANGE"        envDefault:"wyvern.events"`
	AMQPDialTimeout     time.Duration `env:"WYVERN_AMQP_DIAL_TIMEOUT"    envDefault:"30s"`
	LogLevel            string        `env:"WYVERN_LOG_LEVEL"            envDefault:"info"`
	LogFormat           string        `env:"WYVERN_LOG_FORMAT"           envDefault:"text"`
	AuthenticationDelay time.Duration `env:"WYVERN_AUTH_DELAY"           envDefault:"336h"`
	MetricsNamespace    string        `env:"WYVERN_METRICS_NAMESPACE"    envDefault:"wyvern"`
	OTelEndpoint        string        `env:"WYVERN_OTEL_ENDPOINT"`
	FeedAddr            string        `env:"WYVERN_FEED_ADDR"`
}

// LoadConfig reads an optional .env file and parses the environment.
// Variables already set in the environment win over the file.
func LoadConfig(dotenvPaths ...string) (*Config, error) {
	if len(dotenvPaths) == 0 {
		dotenvPaths = []string{".env"}
	}
	for _, path := range dotenvPaths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return &InvalidParamError{Message: fmt.Sprintf("chain id must be positive, got: %d", c.ChainID)}
	}
	switch c.StateBackend {
	case BackendMemDB, BackendGoLevelDB, BackendSQLite, BackendRedis:
	default:
		return &InvalidParamError{Message: fmt.Sprintf("unknown state backend: %q", c.StateBackend)}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return &InvalidParamError{Message: fmt.Sprintf("invalid log level: %q", c.LogLevel)}
	}
	if c.AuthenticationDelay < 0 {
		return &InvalidParamError{Message: "authentication delay must not be negative"}
	}
	return nil
}

// OpenState opens the configured state backend
func OpenState(ctx context.Context, cfg *Config) (state.Backend, error) {
	switch cfg.StateBackend {
	case BackendMemDB:
		return state.NewMemDB(), nil
	case BackendGoLevelDB:
		if err := os.MkdirAll(cfg.StatePath, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		return state.OpenGoLevelDB("wyvern", cfg.StatePath)
	case BackendSQLite:
		return sqlite.Open(ctx, cfg.StatePath)
	case BackendRedis:
		return redisdb.Open(ctx, cfg.RedisAddr, cfg.RedisPrefix)
	default:
		return nil, &InvalidParamError{Message: fmt.Sprintf("unknown state backend: %q", cfg.StateBackend)}
	}
}

// OpenEventSink returns the sink events are published to: the log, plus an
// AMQP topic exchange when WYVERN_AMQP_URL is set. close releases the broker
// connection.
func OpenEventSink(ctx context.Context, cfg *Config, log *logrus.Entry) (sink events.Sink, closeFn func() error, err error) {
	logSink := events.NewLog(log)
	if cfg.AMQPURL == "" {
		return logSink, func() error { return nil }, nil
	}

	conn, err := events.DialAMQP(ctx, cfg.AMQPURL, cfg.AMQPDialTimeout)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := events.NewAMQP(conn, cfg.AMQPExchange, log)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return events.Multi{logSink, publisher}, func() error {
		return errors.Join(publisher.Close(), conn.Close())
	}, nil
}
