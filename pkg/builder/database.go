package builder

import (
	"github.com/streamvault/streamvault/internal/models"
)

func (b *Builder) WithDatabase(cfg models.DatabaseConfig) *Builder {
	b.cfg.Database = &cfg
	return b
}

func (b *Builder) WithAuth(cfg models.AuthConfig) *Builder {
	if len(cfg.SkipPaths) == 0 {
		cfg.SkipPaths = []string{"/health"}
	}
	b.cfg.Auth = &cfg
	return b
}

func (b *Builder) WithCache(cfg models.CacheConfig) *Builder {
	if cfg.TTLSeconds == 0 {
		cfg.TTLSeconds = 30
	}
	b.cfg.Cache = &cfg
	return b
}
