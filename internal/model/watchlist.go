package model

import "time"

// Watchlist is a user-owned collection of movies and shows. Public lists are
// visible to everyone and appear in discovery; private lists only to their
// owner.
type Watchlist struct {
	ID          uint64    `json:"id"`
	OwnerID     uint64    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Public      bool      `json:"public"`
	LikeCount   int       `json:"likeCount"`
	SaveCount   int       `json:"saveCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WatchlistItem references a TMDB title inside a watchlist. MediaType is
// "movie" or "tv"; Position orders items within the list.
type WatchlistItem struct {
	ID          uint64    `json:"id"`
	WatchlistID uint64    `json:"watchlistId"`
	TMDBID      int64     `json:"tmdbId"`
	MediaType   string    `json:"mediaType"`
	Position    int       `json:"position"`
	AddedAt     time.Time `json:"addedAt"`
}
