package types

import (
	"github.com/lepinkainen/imgmin/config"
	"go.uber.org/zap"
)

// DefaultVersion is the fallback version when AppContext is nil
const DefaultVersion = "dev"

// AppContext holds application-wide context information passed to commands
type AppContext struct {
	Version string
	Config  config.Config
	Logger  *zap.SugaredLogger
}

// GetVersion returns the version, tolerating a nil context
func (c *AppContext) GetVersion() string {
	if c == nil || c.Version == "" {
		return DefaultVersion
	}
	return c.Version
}

// GetLogger returns the logger, or a no-op logger when none is set
func (c *AppContext) GetLogger() *zap.SugaredLogger {
	if c == nil || c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

// GetConfig returns the configuration, or the defaults for a nil context
func (c *AppContext) GetConfig() config.Config {
	if c == nil {
		return config.Default()
	}
	return c.Config
}
