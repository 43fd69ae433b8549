package logging

import "go.uber.org/zap"

// New creates a zap logger for the given environment: development and
// production get the zap presets, anything else the example logger
func New(env string) (*zap.Logger, error) {
	switch env {
	case "development":
		return zap.NewDevelopment()
	case "production":
		return zap.NewProduction()
	default:
		return zap.NewExample(), nil
	}
}
