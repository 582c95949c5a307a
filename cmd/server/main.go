package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/poplist/api/internal/config"
	"github.com/poplist/api/internal/database"
	"github.com/poplist/api/internal/handler"
	"github.com/poplist/api/internal/queue"
	"github.com/poplist/api/internal/repository"
	"github.com/poplist/api/internal/router"
	"github.com/poplist/api/internal/service"
	"github.com/poplist/api/internal/tmdb"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable: rate limiting and browse cache disabled")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db, cfg.MaxSessions)
	caches := repository.NewCacheRepo(db)
	lists := repository.NewWatchlistRepo(db)

	tmdbClient := tmdb.NewClient(cfg.TMDBAPIKey,
		tmdb.WithRateLimit(cfg.TMDBPerSecond),
		tmdb.WithConcurrency(cfg.TMDBConcurrent),
		tmdb.WithTimeout(time.Duration(cfg.TMDBTimeoutSec)*time.Second))
	proxy := service.NewTMDBProxy(caches, tmdbClient,
		time.Duration(cfg.CacheTTLDays)*24*time.Hour)

	authH := handler.NewAuthHandler(cfg, users, tokens, queue.Publisher{})
	oauthH := handler.NewOAuthHandler(cfg, authH)
	tmdbH := handler.NewTMDBHandler(proxy, tmdbClient)
	listsH := handler.NewWatchlistHandler(lists)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = errorHandler

	router.Register(e, cfg, rdb, authH, oauthH, tmdbH, listsH)

	// Background workers: audit-event consumer and periodic cache sweep.
	go func() {
		if err := queue.StartAuthConsumer(); err != nil {
			log.Printf("auth consumer stopped: %v", err)
		}
	}()
	go sweepCache(caches)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// errorHandler catches anything the handlers did not translate themselves
// and returns a generic JSON body. Full detail stays in the server log,
// except routine 401/404 noise.
func errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := "internal error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if s, ok := he.Message.(string); ok {
			msg = s
		}
	}
	if code != http.StatusUnauthorized && code != http.StatusNotFound {
		log.Printf("http %d %s %s: %v", code, c.Request().Method, c.Request().URL.Path, err)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, echo.Map{"error": msg})
	}
}

// sweepCache drops expired TMDB cache rows once an hour.
func sweepCache(caches *repository.CacheRepo) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := caches.ClearExpired(ctx)
		cancel()
		if err != nil {
			log.Printf("cache sweep failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("cache sweep removed %d expired entries", n)
		}
	}
}
