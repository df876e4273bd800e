package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stackmelt/passkey-auth/internal/auth"
	"github.com/stackmelt/passkey-auth/internal/http/handlers"
	"github.com/stackmelt/passkey-auth/internal/security"
)

// RouterConfig carries the transport-level settings for the API router.
type RouterConfig struct {
	// WebOrigin is the browser origin allowed to call the API with credentials.
	WebOrigin string
	// SecureCookies ties the cookie Secure flag to the production flag.
	SecureCookies bool
	// SessionSecret verifies session cookies in the auth middleware.
	SessionSecret string
}

// NewRouter builds the gin engine with middleware and all API routes.
func NewRouter(svc *auth.Service, cfg RouterConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.WebOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	RegisterRoutes(engine, svc, cfg)
	return engine
}

// RegisterRoutes attaches the API endpoints to the engine.
func RegisterRoutes(engine *gin.Engine, svc *auth.Service, cfg RouterConfig) {
	authHandler := handlers.NewAuthHandler(svc, cfg.SecureCookies)
	passkeyHandler := handlers.NewPasskeyHandler(svc, cfg.SecureCookies)

	api := engine.Group("/api")
	api.GET("/health", handlers.Health)

	api.POST("/login-by-password", authHandler.LoginByPassword)
	api.POST("/logout", authHandler.Logout)
	api.POST("/is-logged-in", authHandler.IsLoggedIn)

	api.POST("/generate-passkey-challenge", passkeyHandler.GenerateRegistrationChallenge)
	api.POST("/verify-passkey-registration", passkeyHandler.VerifyRegistration)
	api.POST("/generate-authentication-challenge", passkeyHandler.GenerateAuthenticationChallenge)
	api.POST("/verify-passkey-authentication", passkeyHandler.VerifyAuthentication)

	api.GET("/passkeys", SessionRequired(cfg), passkeyHandler.List)

	engine.NoRoute(handlers.NotFound)
}

// SessionRequired validates the session cookie and stores the user ID in the
// request context. Requests without a valid session are rejected.
func SessionRequired(cfg RouterConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, errCookie := c.Request.Cookie(handlers.SessionCookieName)
		if errCookie != nil || cookie.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		userID, ok := security.ValidateSession(cfg.SessionSecret, cookie.Value)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.Set(handlers.ContextUserIDKey, userID)
		c.Next()
	}
}
