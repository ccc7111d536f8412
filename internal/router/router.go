package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/event-registration/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/event-registration/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Map the GET request at path "/healthz" to the Health handler.  This
	// endpoint can be used by load balancers or monitoring systems to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// Create a route group under the /v1/auth prefix for operations that do
	// not require an existing session (register, login, refresh).
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token; refresh-access issues a new access
	// token while keeping the existing refresh token.
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts either a refresh_token in the body or a bearer token in
	// the Authorization header, so it does not sit behind the JWT middleware.
	g.POST("/logout", a.Logout)

	// Protected group: every route registered here requires a valid access
	// token, and any known role is accepted.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole("ADMIN", "USER"))
	auth.GET("/me", a.Me)
}

// RegisterEvents wires the event catalogue.  Browsing is public; creating
// events requires an authenticated ADMIN.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, jwtSecret string) {
	e.GET("/v1/events", h.List)
	e.GET("/v1/events/:id", h.Get)

	admin := e.Group("/v1/events")
	admin.Use(middleware.JWTAuth(jwtSecret))
	admin.Use(middleware.RequireRole("ADMIN"))
	admin.POST("", h.Create)
}

// RegisterPurchases wires the registration workflow.  All purchase routes
// require an authenticated user; the rate limiter, when enabled, sits in
// front of the purchase creation route since that is the endpoint clients
// hammer during popular on-sales.
func RegisterPurchases(e *echo.Echo, h *handler.PurchaseHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("ADMIN", "USER"))

	if limiter != nil {
		g.POST("/events/:id/purchases", h.Create, limiter)
	} else {
		g.POST("/events/:id/purchases", h.Create)
	}
	g.POST("/purchases/:id/cancel", h.Cancel)
	g.GET("/purchases", h.List)
	g.GET("/purchases/:id", h.Get)
}

// RegisterWebhook wires the payment provider callback.  The route carries
// no JWT middleware; provider authenticity is verified upstream.
func RegisterWebhook(e *echo.Echo, h *handler.WebhookHandler) {
	e.POST("/v1/payments/webhook", h.Handle)
}

// RegisterSystem wires the operational endpoints.  Lock statistics expose
// internals of the process and are therefore restricted to ADMIN.
func RegisterSystem(e *echo.Echo, h *handler.LockStatsHandler, jwtSecret string) {
	g := e.Group("/v1/system")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("ADMIN"))
	g.GET("/locks", h.Stats)
}
