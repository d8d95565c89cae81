package commands

import (
	"github.com/mosaicnetworks/quilt/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Quilt   config.Config `mapstructure:",squash"`
	Discard bool          `mapstructure:"discard"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Quilt:   *config.NewDefaultConfig(),
		Discard: false,
	}
}
