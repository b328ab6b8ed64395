package wyvern

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from the configured level and format
// ("text" or "json").
func NewLogger(cfg *Config, out io.Writer) (*logrus.Entry, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, &InvalidParamError{Message: fmt.Sprintf("invalid log level: %q", cfg.LogLevel)}
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, &InvalidParamError{Message: fmt.Sprintf("unknown log format: %q", cfg.LogFormat)}
	}
	return log.WithField("chain_id", int64(cfg.ChainID)), nil
}
