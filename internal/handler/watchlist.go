package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/poplist/api/internal/middleware"
	"github.com/poplist/api/internal/model"
	"github.com/poplist/api/internal/repository"
)

// WatchlistStore is the persistence dependency of the watchlist handlers.
// Implemented by repository.WatchlistRepo.
type WatchlistStore interface {
	Create(ctx context.Context, ownerID uint64, title, description string, public bool) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.Watchlist, error)
	ListByOwner(ctx context.Context, ownerID uint64) ([]model.Watchlist, error)
	ListPublic(ctx context.Context, limit, offset int) ([]model.Watchlist, error)
	ListSaved(ctx context.Context, userID uint64) ([]model.Watchlist, error)
	Update(ctx context.Context, listID, ownerID uint64, title, description string, public bool) error
	Delete(ctx context.Context, listID, ownerID uint64) error
	AddItem(ctx context.Context, listID, ownerID uint64, tmdbID int64, mediaType string) (uint64, error)
	RemoveItem(ctx context.Context, listID, ownerID, itemID uint64) error
	Items(ctx context.Context, listID uint64) ([]model.WatchlistItem, error)
	Like(ctx context.Context, listID, userID uint64) error
	Unlike(ctx context.Context, listID, userID uint64) error
	SaveList(ctx context.Context, listID, userID uint64) error
	UnsaveList(ctx context.Context, listID, userID uint64) error
}

// WatchlistHandler exposes watchlist CRUD and the like/save relations.
type WatchlistHandler struct {
	Lists WatchlistStore
}

func NewWatchlistHandler(lists WatchlistStore) *WatchlistHandler {
	return &WatchlistHandler{Lists: lists}
}

type watchlistReq struct {
	Title       string `json:"title" validate:"required,min=1,max=120"`
	Description string `json:"description" validate:"max=1000"`
	Public      bool   `json:"public"`
}

type watchlistItemReq struct {
	TMDBID    int64  `json:"tmdbId" validate:"required,gt=0"`
	MediaType string `json:"mediaType" validate:"required,oneof=movie tv"`
}

func watchlistID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

func mapListErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "request failed"})
	}
}

// Create handles POST /watchlists.
func (h *WatchlistHandler) Create(c echo.Context) error {
	var req watchlistReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "details": err.Error()})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	id, err := h.Lists.Create(ctx, middleware.UserID(c), req.Title, req.Description, req.Public)
	if err != nil {
		return mapListErr(c, err)
	}
	w, err := h.Lists.GetByID(ctx, id)
	if err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"watchlist": w})
}

// ListMine handles GET /watchlists.
func (h *WatchlistHandler) ListMine(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	lists, err := h.Lists.ListByOwner(ctx, middleware.UserID(c))
	if err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"watchlists": lists})
}

// ListSaved handles GET /watchlists/saved.
func (h *WatchlistHandler) ListSaved(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	lists, err := h.Lists.ListSaved(ctx, middleware.UserID(c))
	if err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"watchlists": lists})
}

// Get handles GET /watchlists/:id. Private lists are visible to their owner
// only; to everyone else they do not exist.
func (h *WatchlistHandler) Get(c echo.Context) error {
	id, err := watchlistID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	w, err := h.Lists.GetByID(ctx, id)
	if err != nil {
		return mapListErr(c, err)
	}
	if !w.Public && w.OwnerID != middleware.UserID(c) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}
	items, err := h.Lists.Items(ctx, id)
	if err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"watchlist": w, "items": items})
}

// Update handles PUT /watchlists/:id.
func (h *WatchlistHandler) Update(c echo.Context) error {
	id, err := watchlistID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req watchlistReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "details": err.Error()})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Lists.Update(ctx, id, middleware.UserID(c), req.Title, req.Description, req.Public); err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "updated"})
}

// Delete handles DELETE /watchlists/:id.
func (h *WatchlistHandler) Delete(c echo.Context) error {
	id, err := watchlistID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Lists.Delete(ctx, id, middleware.UserID(c)); err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "deleted"})
}

// AddItem handles POST /watchlists/:id/items.
func (h *WatchlistHandler) AddItem(c echo.Context) error {
	id, err := watchlistID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req watchlistItemReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "details": err.Error()})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	itemID, err := h.Lists.AddItem(ctx, id, middleware.UserID(c), req.TMDBID, req.MediaType)
	if err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"itemId": itemID})
}

// RemoveItem handles DELETE /watchlists/:id/items/:itemId.
func (h *WatchlistHandler) RemoveItem(c echo.Context) error {
	id, err := watchlistID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	itemID, err := strconv.ParseUint(c.Param("itemId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Lists.RemoveItem(ctx, id, middleware.UserID(c), itemID); err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "removed"})
}

// Like / Unlike / Save / Unsave toggle the user relations on a list.

func (h *WatchlistHandler) Like(c echo.Context) error {
	return h.relation(c, h.Lists.Like, http.StatusCreated)
}

func (h *WatchlistHandler) Unlike(c echo.Context) error {
	return h.relation(c, h.Lists.Unlike, http.StatusOK)
}

func (h *WatchlistHandler) Save(c echo.Context) error {
	return h.relation(c, h.Lists.SaveList, http.StatusCreated)
}

func (h *WatchlistHandler) Unsave(c echo.Context) error {
	return h.relation(c, h.Lists.UnsaveList, http.StatusOK)
}

func (h *WatchlistHandler) relation(c echo.Context, op func(context.Context, uint64, uint64) error, okStatus int) error {
	id, err := watchlistID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := op(ctx, id, middleware.UserID(c)); err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(okStatus, echo.Map{"message": "ok"})
}

// DiscoverPublic handles GET /discover/watchlists, the unauthenticated
// browse endpoint behind the response cache.
func (h *WatchlistHandler) DiscoverPublic(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	lists, err := h.Lists.ListPublic(ctx, limit, offset)
	if err != nil {
		return mapListErr(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"watchlists": lists})
}
