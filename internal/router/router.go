// Package router registers the HTTP routes of the API.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/poplist/api/internal/config"
	"github.com/poplist/api/internal/handler"
	"github.com/poplist/api/internal/middleware"
)

// Register wires every route onto the Echo instance. The auth group sits
// behind the Redis token bucket; profile and watchlist mutations require a
// valid access token; TMDB proxy and public discovery are open.
func Register(e *echo.Echo, cfg config.Config, rdb *redis.Client,
	auth *handler.AuthHandler, oauth *handler.OAuthHandler,
	tmdbH *handler.TMDBHandler, lists *handler.WatchlistHandler) {

	e.GET("/", handler.Health)
	e.GET("/health", handler.Health)

	// Credential endpoints, throttled per client IP.
	a := e.Group("/auth")
	a.Use(middleware.NewAuthRateLimit(config.LoadRateLimitConfig(), rdb))
	a.POST("/signup", auth.Signup)
	a.POST("/login", auth.Login)
	a.POST("/refresh", auth.Refresh)
	a.POST("/logout", auth.Logout)
	a.GET("/google", oauth.GoogleStart)
	a.GET("/google/callback", oauth.GoogleCallback)
	a.GET("/username/check/:username", auth.CheckUsername)

	// Profile management requires an access token.
	p := e.Group("/auth/profile")
	p.Use(middleware.JWTAuth(cfg.AccessSecret))
	p.GET("", auth.Me)
	p.PUT("/username", auth.UpdateUsername)
	p.PUT("/password", auth.UpdatePassword)
	p.PUT("/language", auth.UpdateLanguage)
	p.DELETE("/account", auth.DeleteAccount)

	// TMDB proxy, cached and rate-limited behind the handler.
	t := e.Group("/tmdb")
	t.GET("/trending/:window", tmdbH.Trending)
	t.GET("/discover/:type", tmdbH.Discover)
	t.GET("/genre/:type/list", tmdbH.Genres)
	t.GET("/:type/popular", tmdbH.Popular)
	t.GET("/:type/top_rated", tmdbH.TopRated)
	t.GET("/:type/:id/providers", tmdbH.Providers)
	t.GET("/:type/:id/similar", tmdbH.Similar)

	e.GET("/image-proxy", tmdbH.ImageProxy)

	// Reading a single list is open to anonymous visitors: public lists
	// render for everyone, private ones only for their owner.
	e.GET("/watchlists/:id", lists.Get, middleware.JWTAuthOptional(cfg.AccessSecret))

	// Watchlists: owner operations behind auth.
	w := e.Group("/watchlists")
	w.Use(middleware.JWTAuth(cfg.AccessSecret))
	w.POST("", lists.Create)
	w.GET("", lists.ListMine)
	w.GET("/saved", lists.ListSaved)
	w.PUT("/:id", lists.Update)
	w.DELETE("/:id", lists.Delete)
	w.POST("/:id/items", lists.AddItem)
	w.DELETE("/:id/items/:itemId", lists.RemoveItem)
	w.POST("/:id/like", lists.Like)
	w.DELETE("/:id/like", lists.Unlike)
	w.POST("/:id/save", lists.Save)
	w.DELETE("/:id/save", lists.Unsave)

	// Public discovery behind the Redis response cache.
	e.GET("/discover/watchlists", lists.DiscoverPublic,
		middleware.NewBrowseCache(config.LoadBrowseCacheConfig(), rdb))
}
