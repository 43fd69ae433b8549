package config

import (
	"go.uber.org/zap"

	"github.com/linesmerrill/evchat/logging"
)

// setLogger picks the zap logger for env
func setLogger(env string) (*zap.Logger, error) {
	return logging.New(env)
}
