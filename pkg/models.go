package pkg

import (
	"github.com/streamvault/streamvault/internal/models"
	pkgmodels "github.com/streamvault/streamvault/pkg/models"
)

type (
	ServerConfig    = models.ServerConfig
	DatabaseConfig  = models.DatabaseConfig
	AuthConfig      = models.AuthConfig
	CacheConfig     = models.CacheConfig
	Policy          = models.Policy
	RateLimitConfig = pkgmodels.RateLimitConfig
	TimeoutConfig   = pkgmodels.TimeoutConfig
)
