package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/poplist/api/internal/config"
	"github.com/poplist/api/internal/middleware"
	"github.com/poplist/api/internal/model"
	"github.com/poplist/api/internal/queue"
	"github.com/poplist/api/internal/repository"
	"github.com/poplist/api/internal/utils"
)

// UserStore is the persistence dependency of the auth handlers. Implemented
// by repository.UserRepo; tests substitute an in-memory fake.
type UserStore interface {
	Create(ctx context.Context, email string, username, passwordHash, googleID, avatarURL *string, language, roles string) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (model.User, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
	UpdateUsername(ctx context.Context, userID uint64, username string) error
	UpdatePassword(ctx context.Context, userID uint64, passwordHash string) error
	UpdateLanguage(ctx context.Context, userID uint64, language string) error
	LinkGoogle(ctx context.Context, userID uint64, googleID string, avatarURL *string) error
	DeleteCascade(ctx context.Context, userID uint64) error
}

// TokenStore records issued refresh-token sessions. Implemented by
// repository.TokenRepo.
type TokenStore interface {
	CleanupAndCreate(ctx context.Context, userID uint64, tokenHash string, userAgent *string, exp time.Time) error
	DeleteByUserAndHash(ctx context.Context, userID uint64, tokenHash string) (bool, error)
}

// EventPublisher emits auth audit events. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event queue.AuthEvent) error
}

// AuthHandler bundles the dependencies of the auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenStore
	Events EventPublisher
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, ev EventPublisher) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Events: ev}
}

const (
	defaultLanguage = "fr"
	defaultRoles    = "user"
	deleteConfirm   = "confirmer"
)

// ----- DTOs -----

type signupReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}
type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}
type updateUsernameReq struct {
	Username string `json:"username" validate:"required,username"`
}
type updatePasswordReq struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}
type updateLanguageReq struct {
	Language string `json:"language" validate:"required,min=2,max=5"`
}
type deleteAccountReq struct {
	Confirmation string `json:"confirmation"`
}

// authResp is returned on every successful session issuance. Tokens are also
// set as cookies; the JSON fields serve the mobile flow.
type authResp struct {
	User         model.PublicUser `json:"user"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
}

// ----- session issuance -----

// issueSession generates a fresh token pair, records the session (enforcing
// the per-user cap) and transmits the tokens both as httpOnly cookies and in
// the response body.
func (h *AuthHandler) issueSession(c echo.Context, ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.SignAccessToken(h.Cfg.AccessSecret, u.ID, u.Email, u.RoleList(),
		time.Duration(h.Cfg.AccessTTLMin)*time.Minute)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.SignRefreshToken(h.Cfg.RefreshSecret, u.ID, utils.NewTokenID(),
		time.Duration(h.Cfg.RefreshTTLDays)*24*time.Hour)
	if err != nil {
		return authResp{}, err
	}

	var ua *string
	if s := c.Request().UserAgent(); s != "" {
		ua = &s
	}
	if err := h.Tokens.CleanupAndCreate(ctx, u.ID, utils.HashToken(refresh.Token), ua, refresh.Exp); err != nil {
		return authResp{}, err
	}

	h.setAuthCookies(c, access.Token, refresh.Token)
	return authResp{User: u.Public(), AccessToken: access.Token, RefreshToken: refresh.Token}, nil
}

func (h *AuthHandler) setAuthCookies(c echo.Context, access, refresh string) {
	c.SetCookie(h.authCookie("accessToken", access, h.Cfg.AccessTTLMin*60))
	c.SetCookie(h.authCookie("refreshToken", refresh, h.Cfg.RefreshTTLDays*24*3600))
}

func (h *AuthHandler) clearAuthCookies(c echo.Context) {
	c.SetCookie(h.authCookie("accessToken", "", -1))
	c.SetCookie(h.authCookie("refreshToken", "", -1))
}

func (h *AuthHandler) authCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.Cfg.IsProd(),
	}
}

// ----- endpoints -----

// Signup creates a password account and opens its first session.
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "details": err.Error()})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	username, err := h.freeUsername(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	uid, err := h.Users.Create(ctx, req.Email, &username, &hash, nil, nil, defaultLanguage, defaultRoles)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}

	resp, err := h.issueSession(c, ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}
	h.publish(queue.AuthEvent{Type: queue.EventUserRegistered, UserID: u.ID, Email: u.Email, Provider: "password"})
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and opens a session. All failures are the same
// opaque 401 so an unknown email is indistinguishable from a wrong password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if u.PasswordHash == nil || !utils.VerifyPassword(*u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
	}

	// Accounts created before usernames were introduced get one on login.
	if u.Username == nil {
		if username, err := h.freeUsername(ctx); err == nil {
			if err := h.Users.UpdateUsername(ctx, u.ID, username); err == nil {
				u.Username = &username
			}
		}
	}

	resp, err := h.issueSession(c, ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates a refresh token: the presented token is validated against
// the store, consumed, and replaced by a brand-new pair. A second use of the
// same token fails.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := h.presentedRefreshToken(c)
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	claims, err := utils.VerifyRefreshToken(h.Cfg.RefreshSecret, raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	uid, err := claims.UserID()
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	// Authorization rides on the delete itself: of two concurrent
	// presentations of the same token only one removes the row, so only one
	// gets a new pair.
	consumed, err := h.Tokens.DeleteByUserAndHash(ctx, uid, utils.HashToken(raw))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	if !consumed {
		// Covers rotated, revoked and forged tokens alike.
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	resp, err := h.issueSession(c, ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout is best-effort and idempotent: the matching session row is deleted
// when the presented token verifies, cookies are cleared either way, and the
// response is always 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	if raw := h.presentedRefreshToken(c); raw != "" {
		if claims, err := utils.VerifyRefreshToken(h.Cfg.RefreshSecret, raw); err == nil {
			if uid, err := claims.UserID(); err == nil {
				ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
				defer cancel()
				_, _ = h.Tokens.DeleteByUserAndHash(ctx, uid, utils.HashToken(raw))
			}
		}
	}
	h.clearAuthCookies(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// presentedRefreshToken reads the refresh token from the cookie (web flow)
// or the request body (mobile flow).
func (h *AuthHandler) presentedRefreshToken(c echo.Context) string {
	if cookie, err := c.Cookie("refreshToken"); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var req refreshReq
	_ = c.Bind(&req)
	return strings.TrimSpace(req.RefreshToken)
}

// CheckUsername reports whether a username is free. The same syntax rules
// apply as on username updates.
func (h *AuthHandler) CheckUsername(c echo.Context) error {
	username := c.Param("username")
	if !utils.ValidUsername(username) {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error": "username must be 3-20 characters of letters, digits or underscore",
		})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	taken, err := h.Users.UsernameTaken(ctx, username)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"available": !taken, "username": username})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": u.Public()})
}

// UpdateUsername changes the authenticated user's username.
func (h *AuthHandler) UpdateUsername(c echo.Context) error {
	var req updateUsernameReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "details": err.Error()})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdateUsername(ctx, middleware.UserID(c), req.Username); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already taken"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"username": req.Username})
}

// UpdatePassword changes the password. Accounts that already have one must
// present it; OAuth-only accounts set their first password without.
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	var req updatePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "details": err.Error()})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, middleware.UserID(c))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if u.PasswordHash != nil && !utils.VerifyPassword(*u.PasswordHash, req.CurrentPassword) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid credentials"})
	}
	hash, err := utils.HashPassword(req.NewPassword, h.Cfg.BcryptCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	if err := h.Users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// UpdateLanguage sets the preferred content language.
func (h *AuthHandler) UpdateLanguage(c echo.Context) error {
	var req updateLanguageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "validation failed", "details": err.Error()})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Users.UpdateLanguage(ctx, middleware.UserID(c), req.Language); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"language": req.Language})
}

// DeleteAccount removes the user and everything they own. The literal
// confirmation phrase is required; without it nothing is touched.
func (h *AuthHandler) DeleteAccount(c echo.Context) error {
	var req deleteAccountReq
	_ = c.Bind(&req)
	if req.Confirmation != deleteConfirm {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "confirmation phrase required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid := middleware.UserID(c)
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	if err := h.Users.DeleteCascade(ctx, uid); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	h.clearAuthCookies(c)
	h.publish(queue.AuthEvent{Type: queue.EventUserDeleted, UserID: uid, Email: u.Email})
	return c.JSON(http.StatusOK, echo.Map{"message": "account deleted"})
}

// freeUsername generates a username that is not yet taken.
func (h *AuthHandler) freeUsername(ctx context.Context) (string, error) {
	for i := 0; i < 5; i++ {
		candidate, err := utils.NewUsername()
		if err != nil {
			return "", err
		}
		taken, err := h.Users.UsernameTaken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errors.New("could not allocate username")
}

// publish emits an audit event without blocking or failing the request.
func (h *AuthHandler) publish(ev queue.AuthEvent) {
	if h.Events == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Events.Publish(ctx, ev)
	}()
}
