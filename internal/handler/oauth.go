package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/poplist/api/internal/config"
	"github.com/poplist/api/internal/model"
	"github.com/poplist/api/internal/queue"
	"github.com/poplist/api/internal/repository"
	"github.com/poplist/api/internal/utils"
)

const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleUser is the subset of the userinfo response we need.
type googleUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// OAuthHandler implements the Google consent dance. It shares the auth
// handler's stores and session issuance so an OAuth login behaves exactly
// like a password login once the external identity is resolved.
type OAuthHandler struct {
	*AuthHandler
	oauth *oauth2.Config
}

func NewOAuthHandler(cfg config.Config, auth *AuthHandler) *OAuthHandler {
	return &OAuthHandler{
		AuthHandler: auth,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.PublicBaseURL + "/auth/google/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

// GoogleStart redirects to the Google consent page. Client intent (web
// window or mobile deep link) travels in a signed state token; the mobile
// flow passes its redirect URI as ?redirect=.
func (h *OAuthHandler) GoogleStart(c echo.Context) error {
	if h.oauth.ClientID == "" || h.oauth.ClientSecret == "" {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "oauth not configured"})
	}
	flow := "web"
	redirect := c.QueryParam("redirect")
	if c.QueryParam("client") == "mobile" {
		if redirect == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "redirect required for mobile flow"})
		}
		flow = "mobile"
	}
	state, err := utils.SignOAuthState(h.Cfg.AccessSecret, flow, redirect)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "oauth start failed"})
	}
	return c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state))
}

// GoogleCallback exchanges the authorization code, resolves or creates the
// account, opens a session, and delivers the result to the flow the state
// token names.
func (h *OAuthHandler) GoogleCallback(c echo.Context) error {
	state, err := utils.VerifyOAuthState(h.Cfg.AccessSecret, c.QueryParam("state"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid state"})
	}
	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing code"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	gu, err := h.exchange(ctx, code)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "oauth exchange failed"})
	}
	if gu.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email not available from provider"})
	}

	u, err := h.resolveUser(ctx, gu)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "oauth login failed"})
	}

	resp, err := h.issueSession(c, ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue session failed"})
	}

	if state.Flow == "mobile" {
		target, err := url.Parse(state.Redirect)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid redirect"})
		}
		q := target.Query()
		q.Set("accessToken", resp.AccessToken)
		q.Set("refreshToken", resp.RefreshToken)
		target.RawQuery = q.Encode()
		return c.Redirect(http.StatusFound, target.String())
	}
	return h.renderPopupResult(c, resp)
}

// exchange trades the authorization code for the Google identity.
func (h *OAuthHandler) exchange(ctx context.Context, code string) (googleUser, error) {
	var gu googleUser
	tok, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		return gu, fmt.Errorf("code exchange: %w", err)
	}
	res, err := h.oauth.Client(ctx, tok).Get(googleUserinfoURL)
	if err != nil {
		return gu, fmt.Errorf("userinfo: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return gu, fmt.Errorf("userinfo: status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(&gu); err != nil {
		return gu, fmt.Errorf("userinfo decode: %w", err)
	}
	return gu, nil
}

// resolveUser finds the account by OAuth subject first, then by email
// (linking Google onto an existing password account), and creates a fresh
// account when neither matches.
func (h *OAuthHandler) resolveUser(ctx context.Context, gu googleUser) (model.User, error) {
	u, err := h.Users.GetByGoogleID(ctx, gu.ID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}

	var avatar *string
	if gu.Picture != "" {
		avatar = &gu.Picture
	}

	u, err = h.Users.GetByEmail(ctx, gu.Email)
	if err == nil {
		if err := h.Users.LinkGoogle(ctx, u.ID, gu.ID, avatar); err != nil {
			return model.User{}, err
		}
		if u.Username == nil {
			if username, err := h.freeUsername(ctx); err == nil {
				if err := h.Users.UpdateUsername(ctx, u.ID, username); err == nil {
					u.Username = &username
				}
			}
		}
		u.GoogleID = &gu.ID
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.User{}, err
	}

	username, err := h.freeUsername(ctx)
	if err != nil {
		return model.User{}, err
	}
	uid, err := h.Users.Create(ctx, gu.Email, &username, nil, &gu.ID, avatar, defaultLanguage, defaultRoles)
	if err != nil {
		return model.User{}, err
	}
	u, err = h.Users.GetByID(ctx, uid)
	if err != nil {
		return model.User{}, err
	}
	h.publish(queue.AuthEvent{Type: queue.EventUserRegistered, UserID: u.ID, Email: u.Email, Provider: "google"})
	return u, nil
}

var popupTmpl = template.Must(template.New("popup").Parse(`<!DOCTYPE html>
<html><head><title>Signing in…</title></head><body>
<script>
  (function () {
    var payload = {{.Payload}};
    if (window.opener) {
      window.opener.postMessage(payload, {{.Origin}});
    }
    window.close();
  })();
</script>
</body></html>`))

// renderPopupResult delivers the session to the opening window. The message
// is targeted at the configured web origin only.
func (h *OAuthHandler) renderPopupResult(c echo.Context, resp authResp) error {
	payload, err := json.Marshal(echo.Map{"type": "oauth-result", "user": resp.User,
		"accessToken": resp.AccessToken, "refreshToken": resp.RefreshToken})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "oauth login failed"})
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return popupTmpl.Execute(c.Response(), map[string]any{
		"Payload": template.JS(payload),
		"Origin":  h.Cfg.WebAppOrigin,
	})
}
