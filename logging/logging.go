package logging

import "go.uber.org/zap"

// Sugared creates a sugared logger, falling back to the example logger when
// the environment's logger cannot be built
func Sugared(env string) *zap.SugaredLogger {
	logger, err := New(env)
	if err != nil {
		logger = zap.NewExample()
	}
	return logger.Sugar()
}
