package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/poplist/api/internal/tmdb"
)

// TMDBGetter serves proxied API requests. Implemented by service.TMDBProxy.
type TMDBGetter interface {
	Get(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error)
}

// ImageStreamer streams files from the TMDB image CDN. Implemented by
// tmdb.Client.
type ImageStreamer interface {
	Image(ctx context.Context, path string) (io.ReadCloser, string, error)
}

// TMDBHandler exposes the cached, rate-limited TMDB proxy endpoints.
type TMDBHandler struct {
	Proxy  TMDBGetter
	Images ImageStreamer
}

func NewTMDBHandler(proxy TMDBGetter, images ImageStreamer) *TMDBHandler {
	return &TMDBHandler{Proxy: proxy, Images: images}
}

// proxyParams collects the shared query parameters with their defaults.
func proxyParams(c echo.Context, keys ...string) url.Values {
	defaults := map[string]string{"language": "fr-FR", "page": "1", "region": "FR"}
	params := url.Values{}
	for _, k := range keys {
		v := c.QueryParam(k)
		if v == "" {
			v = defaults[k]
		}
		if v != "" {
			params.Set(k, v)
		}
	}
	return params
}

func validMediaType(t string) bool { return t == "movie" || t == "tv" }

// respond forwards the opaque upstream JSON, or maps the failure: upstream
// statuses are preserved, everything else is a 500.
func (h *TMDBHandler) respond(c echo.Context, body json.RawMessage, err error) error {
	if err != nil {
		var ue *tmdb.UpstreamError
		if errors.As(err, &ue) {
			return c.JSON(ue.StatusCode, echo.Map{"error": "upstream error"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tmdb request failed"})
	}
	return c.JSONBlob(http.StatusOK, body)
}

// Trending handles GET /tmdb/trending/:window (day or week).
func (h *TMDBHandler) Trending(c echo.Context) error {
	window := c.Param("window")
	if window != "day" && window != "week" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "window must be day or week"})
	}
	body, err := h.Proxy.Get(c.Request().Context(), "/trending/all/"+window,
		proxyParams(c, "language", "page"))
	return h.respond(c, body, err)
}

// Discover handles GET /tmdb/discover/:type with passthrough filters.
func (h *TMDBHandler) Discover(c echo.Context) error {
	mediaType := c.Param("type")
	if !validMediaType(mediaType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be movie or tv"})
	}
	params := proxyParams(c, "language", "page", "region", "sort_by", "with_genres", "year")
	body, err := h.Proxy.Get(c.Request().Context(), "/discover/"+mediaType, params)
	return h.respond(c, body, err)
}

// Popular handles GET /tmdb/:type/popular.
func (h *TMDBHandler) Popular(c echo.Context) error {
	return h.listing(c, "popular")
}

// TopRated handles GET /tmdb/:type/top_rated.
func (h *TMDBHandler) TopRated(c echo.Context) error {
	return h.listing(c, "top_rated")
}

func (h *TMDBHandler) listing(c echo.Context, kind string) error {
	mediaType := c.Param("type")
	if !validMediaType(mediaType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be movie or tv"})
	}
	body, err := h.Proxy.Get(c.Request().Context(), "/"+mediaType+"/"+kind,
		proxyParams(c, "language", "page", "region"))
	return h.respond(c, body, err)
}

// Providers handles GET /tmdb/:type/:id/providers.
func (h *TMDBHandler) Providers(c echo.Context) error {
	return h.detail(c, "watch/providers", proxyParams(c))
}

// Similar handles GET /tmdb/:type/:id/similar.
func (h *TMDBHandler) Similar(c echo.Context) error {
	return h.detail(c, "similar", proxyParams(c, "language", "page"))
}

func (h *TMDBHandler) detail(c echo.Context, suffix string, params url.Values) error {
	mediaType := c.Param("type")
	if !validMediaType(mediaType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be movie or tv"})
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	body, err := h.Proxy.Get(c.Request().Context(),
		"/"+mediaType+"/"+strconv.FormatInt(id, 10)+"/"+suffix, params)
	return h.respond(c, body, err)
}

// Genres handles GET /tmdb/genre/:type/list.
func (h *TMDBHandler) Genres(c echo.Context) error {
	mediaType := c.Param("type")
	if !validMediaType(mediaType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be movie or tv"})
	}
	body, err := h.Proxy.Get(c.Request().Context(), "/genre/"+mediaType+"/list",
		proxyParams(c, "language"))
	return h.respond(c, body, err)
}

// ImageProxy handles GET /image-proxy?path=/poster.jpg, streaming the file
// from the TMDB CDN with a one-day client cache.
func (h *TMDBHandler) ImageProxy(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" || !strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid path"})
	}
	body, contentType, err := h.Images.Image(c.Request().Context(), path)
	if err != nil {
		var ue *tmdb.UpstreamError
		if errors.As(err, &ue) {
			return c.JSON(ue.StatusCode, echo.Map{"error": "upstream error"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "image fetch failed"})
	}
	defer body.Close()

	if contentType == "" {
		contentType = "image/jpeg"
	}
	c.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return c.Stream(http.StatusOK, contentType, body)
}
