package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/droiddeck/backend/internal/infrastructure/config"
)

// CORS builds the cross-origin policy for the UI from configuration.
// Methods and headers are fixed to what the REST surface actually
// serves; only origins and preflight cache age vary per deployment.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	maxAge := time.Duration(cfg.MaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 12 * time.Hour
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
		},
		AllowCredentials: true,
		MaxAge:           maxAge,
	})
}
