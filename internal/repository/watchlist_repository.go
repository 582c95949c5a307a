package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/poplist/api/internal/model"
)

// WatchlistRepo persists watchlists, their items, and the like/save
// relations.
type WatchlistRepo struct{ DB *sql.DB }

func NewWatchlistRepo(db *sql.DB) *WatchlistRepo { return &WatchlistRepo{DB: db} }

const watchlistColumns = `w.id, w.owner_id, w.title, w.description, w.is_public, w.created_at, w.updated_at,
	(SELECT COUNT(*) FROM watchlist_likes l WHERE l.watchlist_id = w.id),
	(SELECT COUNT(*) FROM watchlist_saves s WHERE s.watchlist_id = w.id)`

func scanWatchlist(scanner interface{ Scan(...any) error }) (model.Watchlist, error) {
	var w model.Watchlist
	err := scanner.Scan(&w.ID, &w.OwnerID, &w.Title, &w.Description, &w.Public,
		&w.CreatedAt, &w.UpdatedAt, &w.LikeCount, &w.SaveCount)
	if errors.Is(err, sql.ErrNoRows) {
		return w, ErrNotFound
	}
	return w, err
}

// Create inserts a watchlist and returns its ID.
func (r *WatchlistRepo) Create(ctx context.Context, ownerID uint64, title, description string, public bool) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO watchlists (owner_id, title, description, is_public) VALUES (?,?,?,?)",
		ownerID, title, description, public)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

// GetByID fetches one watchlist with its like/save counts.
func (r *WatchlistRepo) GetByID(ctx context.Context, id uint64) (model.Watchlist, error) {
	return scanWatchlist(r.DB.QueryRowContext(ctx,
		"SELECT "+watchlistColumns+" FROM watchlists w WHERE w.id=? LIMIT 1", id))
}

// ListByOwner returns all lists owned by a user, newest first.
func (r *WatchlistRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Watchlist, error) {
	return r.queryLists(ctx,
		"SELECT "+watchlistColumns+" FROM watchlists w WHERE w.owner_id=? ORDER BY w.created_at DESC", ownerID)
}

// ListPublic returns discoverable lists, newest first.
func (r *WatchlistRepo) ListPublic(ctx context.Context, limit, offset int) ([]model.Watchlist, error) {
	return r.queryLists(ctx,
		"SELECT "+watchlistColumns+" FROM watchlists w WHERE w.is_public=1 ORDER BY w.created_at DESC LIMIT ? OFFSET ?",
		limit, offset)
}

// ListSaved returns the lists a user has saved, most recently saved first.
func (r *WatchlistRepo) ListSaved(ctx context.Context, userID uint64) ([]model.Watchlist, error) {
	return r.queryLists(ctx,
		`SELECT `+watchlistColumns+` FROM watchlists w
		 JOIN watchlist_saves s ON s.watchlist_id = w.id
		 WHERE s.user_id=? ORDER BY s.created_at DESC`, userID)
}

func (r *WatchlistRepo) queryLists(ctx context.Context, query string, args ...any) ([]model.Watchlist, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Watchlist{}
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ownedBy verifies list existence and ownership.
func (r *WatchlistRepo) ownedBy(ctx context.Context, listID, userID uint64) error {
	var ownerID uint64
	err := r.DB.QueryRowContext(ctx,
		"SELECT owner_id FROM watchlists WHERE id=? LIMIT 1", listID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if ownerID != userID {
		return ErrForbidden
	}
	return nil
}

// Update changes title, description and visibility. Only the owner may
// update.
func (r *WatchlistRepo) Update(ctx context.Context, listID, ownerID uint64, title, description string, public bool) error {
	if err := r.ownedBy(ctx, listID, ownerID); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE watchlists SET title=?, description=?, is_public=? WHERE id=?",
		title, description, public, listID)
	return err
}

// Delete removes a watchlist and its dependent rows in one transaction.
func (r *WatchlistRepo) Delete(ctx context.Context, listID, ownerID uint64) error {
	if err := r.ownedBy(ctx, listID, ownerID); err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, q := range []string{
		"DELETE FROM watchlist_likes WHERE watchlist_id=?",
		"DELETE FROM watchlist_saves WHERE watchlist_id=?",
		"DELETE FROM watchlist_items WHERE watchlist_id=?",
		"DELETE FROM watchlists WHERE id=?",
	} {
		if _, err := tx.ExecContext(ctx, q, listID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddItem appends a TMDB title at the end of the list. A duplicate title in
// the same list yields ErrConflict.
func (r *WatchlistRepo) AddItem(ctx context.Context, listID, ownerID uint64, tmdbID int64, mediaType string) (uint64, error) {
	if err := r.ownedBy(ctx, listID, ownerID); err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO watchlist_items (watchlist_id, tmdb_id, media_type, position)
		 SELECT ?, ?, ?, COALESCE(MAX(position),0)+1 FROM watchlist_items WHERE watchlist_id=?`,
		listID, tmdbID, mediaType, listID)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	return uint64(id), err
}

// RemoveItem deletes one item from a list the caller owns.
func (r *WatchlistRepo) RemoveItem(ctx context.Context, listID, ownerID, itemID uint64) error {
	if err := r.ownedBy(ctx, listID, ownerID); err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM watchlist_items WHERE id=? AND watchlist_id=?", itemID, listID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Items returns the items of a list in position order.
func (r *WatchlistRepo) Items(ctx context.Context, listID uint64) ([]model.WatchlistItem, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, watchlist_id, tmdb_id, media_type, position, added_at FROM watchlist_items WHERE watchlist_id=? ORDER BY position ASC",
		listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.WatchlistItem{}
	for rows.Next() {
		var it model.WatchlistItem
		if err := rows.Scan(&it.ID, &it.WatchlistID, &it.TMDBID, &it.MediaType, &it.Position, &it.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Like records a like; liking twice yields ErrConflict.
func (r *WatchlistRepo) Like(ctx context.Context, listID, userID uint64) error {
	return r.addRelation(ctx, "watchlist_likes", listID, userID)
}

// Unlike removes a like; removing a missing like is a no-op.
func (r *WatchlistRepo) Unlike(ctx context.Context, listID, userID uint64) error {
	return r.dropRelation(ctx, "watchlist_likes", listID, userID)
}

// SaveList records a save (bookmark) of someone else's list.
func (r *WatchlistRepo) SaveList(ctx context.Context, listID, userID uint64) error {
	return r.addRelation(ctx, "watchlist_saves", listID, userID)
}

// UnsaveList removes a save.
func (r *WatchlistRepo) UnsaveList(ctx context.Context, listID, userID uint64) error {
	return r.dropRelation(ctx, "watchlist_saves", listID, userID)
}

func (r *WatchlistRepo) addRelation(ctx context.Context, table string, listID, userID uint64) error {
	var exists int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM watchlists WHERE id=?", listID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO "+table+" (watchlist_id, user_id) VALUES (?,?)", listID, userID)
	if err != nil && isDuplicate(err) {
		return ErrConflict
	}
	return err
}

func (r *WatchlistRepo) dropRelation(ctx context.Context, table string, listID, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE watchlist_id=? AND user_id=?", listID, userID)
	return err
}
