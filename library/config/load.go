// Package config loads the yaml settings into the shared config registry.
package config

import (
	"path/filepath"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"

	"github.com/Laisky/laisky-blog-moderation/library/log"
)

// LoadFromFile loads settings from cfgPath and records its directory as `cfg_dir`,
// so relative paths in the settings (templates, credentials) can be resolved.
func LoadFromFile(cfgPath string) {
	gconfig.Shared.Set("cfg_dir", filepath.Dir(cfgPath))
	if err := gconfig.Shared.LoadFromFile(cfgPath); err != nil {
		log.Logger.Panic("load configuration",
			zap.Error(err),
			zap.String("config", cfgPath))
	}

	log.Logger.Info("load configuration",
		zap.String("config", cfgPath))
}

// ResolvePath joins a relative path onto the directory of the loaded config file.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(gconfig.Shared.GetString("cfg_dir"), p)
}
