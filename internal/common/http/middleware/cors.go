package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	Enabled          bool          `yaml:"enabled"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"`
	AllowedMethods   []string      `yaml:"allowedMethods"`
	AllowedHeaders   []string      `yaml:"allowedHeaders"`
	ExposedHeaders   []string      `yaml:"exposedHeaders"`
	AllowCredentials bool          `yaml:"allowCredentials"`
	MaxAge           time.Duration `yaml:"maxAge"`
}

// DefaultCORSConfig lets any origin call the verifier.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Content-Encoding", traceIDHeader, requestIDHeader},
		ExposedHeaders: []string{traceIDHeader, requestIDHeader},
		MaxAge:         10 * time.Minute,
	}
}

// CORSMiddleware applies CORS headers for browser clients. With a wildcard
// origin, requests that carry no Origin header still get "*".
func CORSMiddleware(cfg CORSConfig) gin.HandlerFunc {
	if !cfg.Enabled || len(cfg.AllowedOrigins) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	wildcard := containsWildcard(cfg.AllowedOrigins)
	corsCfg := cors.Config{
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     cfg.AllowedHeaders,
		ExposeHeaders:    cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}
	if wildcard && !cfg.AllowCredentials {
		corsCfg.AllowAllOrigins = true
	} else {
		allowed := cfg.AllowedOrigins
		corsCfg.AllowOriginFunc = func(origin string) bool {
			return isOriginAllowed(origin, allowed)
		}
	}
	handler := cors.New(corsCfg)

	return func(c *gin.Context) {
		if wildcard && c.GetHeader("Origin") == "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
		handler(c)
	}
}

func containsWildcard(allowed []string) bool {
	for _, item := range allowed {
		if strings.TrimSpace(item) == "*" {
			return true
		}
	}
	return false
}

func isOriginAllowed(origin string, allowed []string) bool {
	for _, item := range allowed {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if item == "*" || strings.EqualFold(item, origin) {
			return true
		}
	}
	return false
}
