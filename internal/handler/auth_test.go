package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poplist/api/internal/config"
	"github.com/poplist/api/internal/middleware"
	"github.com/poplist/api/internal/model"
	"github.com/poplist/api/internal/queue"
	"github.com/poplist/api/internal/repository"
	"github.com/poplist/api/internal/utils"
)

// ----- in-memory fakes -----

type fakeUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uint64]model.User{}}
}

func (f *fakeUsers) Create(_ context.Context, email string, username, passwordHash, googleID, avatarURL *string, language, roles string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	f.nextID++
	f.byID[f.nextID] = model.User{
		ID: f.nextID, Email: email, Username: username, PasswordHash: passwordHash,
		GoogleID: googleID, AvatarURL: avatarURL, Language: language, Roles: roles,
		CreatedAt: time.Now().UTC(),
	}
	return f.nextID, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByGoogleID(_ context.Context, googleID string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) UsernameTaken(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Username != nil && *u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) UpdateUsername(_ context.Context, userID uint64, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.byID {
		if id != userID && u.Username != nil && *u.Username == username {
			return repository.ErrUsernameExists
		}
	}
	u := f.byID[userID]
	u.Username = &username
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID uint64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.PasswordHash = &passwordHash
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) UpdateLanguage(_ context.Context, userID uint64, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.Language = language
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) LinkGoogle(_ context.Context, userID uint64, googleID string, avatarURL *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	u.GoogleID = &googleID
	if u.AvatarURL == nil {
		u.AvatarURL = avatarURL
	}
	f.byID[userID] = u
	return nil
}

func (f *fakeUsers) DeleteCascade(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, userID)
	return nil
}

func (f *fakeUsers) seed(u model.User) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	f.byID[u.ID] = u
	return u
}

type fakeSession struct {
	hash   string
	exp    time.Time
	issued int
}

type fakeTokens struct {
	mu     sync.Mutex
	max    int
	seq    int
	byUser map[uint64][]fakeSession
}

func newFakeTokens(max int) *fakeTokens {
	return &fakeTokens{max: max, byUser: map[uint64][]fakeSession{}}
}

func (f *fakeTokens) CleanupAndCreate(_ context.Context, userID uint64, tokenHash string, _ *string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := f.byUser[userID][:0]
	for _, s := range f.byUser[userID] {
		if s.exp.After(time.Now().UTC()) {
			live = append(live, s)
		}
	}
	for len(live) >= f.max {
		oldest := 0
		for i, s := range live {
			if s.issued < live[oldest].issued {
				oldest = i
			}
		}
		live = append(live[:oldest], live[oldest+1:]...)
	}
	f.seq++
	f.byUser[userID] = append(live, fakeSession{hash: tokenHash, exp: exp, issued: f.seq})
	return nil
}

func (f *fakeTokens) DeleteByUserAndHash(_ context.Context, userID uint64, tokenHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sessions := f.byUser[userID]
	for i, s := range sessions {
		if s.hash == tokenHash {
			f.byUser[userID] = append(sessions[:i], sessions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTokens) count(userID uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byUser[userID])
}

func (f *fakeTokens) has(userID uint64, hash string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byUser[userID] {
		if s.hash == hash {
			return true
		}
	}
	return false
}

func (f *fakeTokens) expOf(userID uint64, hash string) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byUser[userID] {
		if s.hash == hash {
			return s.exp
		}
	}
	return time.Time{}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []queue.AuthEvent
}

func (f *fakeEvents) Publish(_ context.Context, ev queue.AuthEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// ----- helpers -----

func testCfg() config.Config {
	return config.Config{
		Env:            "test",
		AccessSecret:   "test-access-secret",
		RefreshSecret:  "test-refresh-secret",
		AccessTTLMin:   60,
		RefreshTTLDays: 30,
		BcryptCost:     4, // min cost keeps the suite fast
		MaxSessions:    5,
	}
}

type authFixture struct {
	h      *AuthHandler
	users  *fakeUsers
	tokens *fakeTokens
	events *fakeEvents
	e      *echo.Echo
}

func newAuthFixture() *authFixture {
	users := newFakeUsers()
	tokens := newFakeTokens(5)
	events := &fakeEvents{}
	e := echo.New()
	e.Validator = NewValidator()
	return &authFixture{
		h:      NewAuthHandler(testCfg(), users, tokens, events),
		users:  users,
		tokens: tokens,
		events: events,
		e:      e,
	}
}

func (f *authFixture) call(t *testing.T, h echo.HandlerFunc, method, target, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	require.NoError(t, h(c))
	return rec
}

func (f *authFixture) signup(t *testing.T, email, password string) authResp {
	t.Helper()
	rec := f.call(t, f.h.Signup, http.MethodPost, "/auth/signup",
		`{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ----- signup -----

func TestSignupCreatesAccountAndSession(t *testing.T) {
	f := newAuthFixture()
	rec := f.call(t, f.h.Signup, http.MethodPost, "/auth/signup",
		`{"email":"New@Example.com","password":"secret123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "new@example.com", resp.User.Email)
	assert.Equal(t, []string{"user"}, resp.User.Roles)
	assert.Equal(t, "fr", resp.User.Language)
	assert.True(t, resp.User.HasPassword)
	require.NotNil(t, resp.User.Username)
	assert.True(t, utils.ValidUsername(*resp.User.Username))

	// Both tokens verify against their own secret.
	_, err := utils.VerifyAccessToken(f.h.Cfg.AccessSecret, resp.AccessToken)
	require.NoError(t, err)
	claims, err := utils.VerifyRefreshToken(f.h.Cfg.RefreshSecret, resp.RefreshToken)
	require.NoError(t, err)
	uid, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, uid)

	// Exactly one session row, keyed by the token hash, expiring in 30 days.
	assert.Equal(t, 1, f.tokens.count(resp.User.ID))
	hash := utils.HashToken(resp.RefreshToken)
	assert.True(t, f.tokens.has(resp.User.ID, hash))
	assert.WithinDuration(t, time.Now().UTC().Add(30*24*time.Hour),
		f.tokens.expOf(resp.User.ID, hash), time.Minute)

	for _, name := range []string{"accessToken", "refreshToken"} {
		cookie := findCookie(rec, name)
		require.NotNil(t, cookie, name)
		assert.True(t, cookie.HttpOnly, name)
		assert.Equal(t, "/", cookie.Path, name)
		assert.False(t, cookie.Secure, "non-prod cookies stay plain http")
	}

	assert.Eventually(t, func() bool { return f.events.count() == 1 },
		time.Second, 10*time.Millisecond, "registration event published")
}

func TestSignupDuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	f.signup(t, "dup@example.com", "secret123")

	rec := f.call(t, f.h.Signup, http.MethodPost, "/auth/signup",
		`{"email":"dup@example.com","password":"other-secret"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignupValidation(t *testing.T) {
	f := newAuthFixture()

	rec := f.call(t, f.h.Signup, http.MethodPost, "/auth/signup",
		`{"email":"not-an-email","password":"secret123"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.call(t, f.h.Signup, http.MethodPost, "/auth/signup",
		`{"email":"ok@example.com","password":"short"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// ----- login -----

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture()
	f.signup(t, "login@example.com", "secret123")

	rec := f.call(t, f.h.Login, http.MethodPost, "/auth/login",
		`{"email":"login@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
}

func TestLoginFailuresAreOpaque(t *testing.T) {
	f := newAuthFixture()
	f.signup(t, "known@example.com", "secret123")

	wrongPassword := f.call(t, f.h.Login, http.MethodPost, "/auth/login",
		`{"email":"known@example.com","password":"wrong-password"}`)
	unknownEmail := f.call(t, f.h.Login, http.MethodPost, "/auth/login",
		`{"email":"ghost@example.com","password":"secret123"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.JSONEq(t, `{"error":"Invalid credentials"}`, wrongPassword.Body.String())
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String(),
		"responses must not reveal whether the account exists")
}

func TestLoginOAuthOnlyAccountRejected(t *testing.T) {
	f := newAuthFixture()
	gid := "google-123"
	f.users.seed(model.User{Email: "oauth@example.com", GoogleID: &gid, Language: "fr", Roles: "user"})

	rec := f.call(t, f.h.Login, http.MethodPost, "/auth/login",
		`{"email":"oauth@example.com","password":"anything8"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginBackfillsMissingUsername(t *testing.T) {
	f := newAuthFixture()
	hash, err := utils.HashPassword("secret123", 4)
	require.NoError(t, err)
	u := f.users.seed(model.User{Email: "old@example.com", PasswordHash: &hash, Language: "fr", Roles: "user"})

	rec := f.call(t, f.h.Login, http.MethodPost, "/auth/login",
		`{"email":"old@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.User.Username)
	assert.True(t, utils.ValidUsername(*resp.User.Username))

	stored, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.Username)
}

// ----- refresh rotation -----

func TestRefreshRotatesToken(t *testing.T) {
	f := newAuthFixture()
	first := f.signup(t, "rotate@example.com", "secret123")

	rec := f.call(t, f.h.Refresh, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"`+first.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var second authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The consumed token is gone, the replacement is live.
	assert.False(t, f.tokens.has(first.User.ID, utils.HashToken(first.RefreshToken)))
	assert.True(t, f.tokens.has(first.User.ID, utils.HashToken(second.RefreshToken)))
	assert.Equal(t, 1, f.tokens.count(first.User.ID))
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	f := newAuthFixture()
	first := f.signup(t, "single@example.com", "secret123")

	rec := f.call(t, f.h.Refresh, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"`+first.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	replay := f.call(t, f.h.Refresh, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"`+first.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
}

func TestRefreshConcurrentPresentationsHaveOneWinner(t *testing.T) {
	f := newAuthFixture()
	first := f.signup(t, "race@example.com", "secret123")

	// Two callers present the same token at once. Rotation authorizes on
	// the session delete, so exactly one of them gets the new pair.
	codes := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/auth/refresh",
				strings.NewReader(`{"refreshToken":"`+first.RefreshToken+`"}`))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := f.e.NewContext(req, rec)
			assert.NoError(t, f.h.Refresh(c))
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	var got []int
	for code := range codes {
		got = append(got, code)
	}
	sort.Ints(got)
	assert.Equal(t, []int{http.StatusOK, http.StatusUnauthorized}, got)
	assert.Equal(t, 1, f.tokens.count(first.User.ID))
}

func TestRefreshReadsCookie(t *testing.T) {
	f := newAuthFixture()
	first := f.signup(t, "cookie@example.com", "secret123")

	rec := f.call(t, f.h.Refresh, http.MethodPost, "/auth/refresh", "",
		func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: "refreshToken", Value: first.RefreshToken})
		})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefreshRejectsForgedAndMissingTokens(t *testing.T) {
	f := newAuthFixture()
	u := f.signup(t, "forge@example.com", "secret123")

	// Signed with the wrong secret.
	forged, err := utils.SignRefreshToken("not-the-secret", u.User.ID, utils.NewTokenID(), time.Hour)
	require.NoError(t, err)
	rec := f.call(t, f.h.Refresh, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"`+forged.Token+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Well-signed but never stored.
	stray, err := utils.SignRefreshToken(f.h.Cfg.RefreshSecret, u.User.ID, utils.NewTokenID(), time.Hour)
	require.NoError(t, err)
	rec = f.call(t, f.h.Refresh, http.MethodPost, "/auth/refresh",
		`{"refreshToken":"`+stray.Token+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Nothing presented at all.
	rec = f.call(t, f.h.Refresh, http.MethodPost, "/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ----- logout -----

func TestLogoutRemovesSessionAndIsIdempotent(t *testing.T) {
	f := newAuthFixture()
	u := f.signup(t, "out@example.com", "secret123")

	rec := f.call(t, f.h.Logout, http.MethodPost, "/auth/logout",
		`{"refreshToken":"`+u.RefreshToken+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.tokens.count(u.User.ID))

	access := findCookie(rec, "accessToken")
	require.NotNil(t, access)
	assert.Less(t, access.MaxAge, 0, "cookie must be expired")

	// Replaying the same logout still succeeds.
	rec = f.call(t, f.h.Logout, http.MethodPost, "/auth/logout",
		`{"refreshToken":"`+u.RefreshToken+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutWithoutTokenStillSucceeds(t *testing.T) {
	f := newAuthFixture()
	rec := f.call(t, f.h.Logout, http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ----- session cap -----

func TestSessionCapEvictsOldest(t *testing.T) {
	f := newAuthFixture()
	f.signup(t, "cap@example.com", "secret123")

	login := func() authResp {
		rec := f.call(t, f.h.Login, http.MethodPost, "/auth/login",
			`{"email":"cap@example.com","password":"secret123"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp authResp
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	sessions := make([]authResp, 0, 6)
	for i := 0; i < 6; i++ {
		sessions = append(sessions, login())
	}
	uid := sessions[0].User.ID

	assert.Equal(t, 5, f.tokens.count(uid))
	// The signup session and the first login were evicted; the last five live.
	assert.False(t, f.tokens.has(uid, utils.HashToken(sessions[0].RefreshToken)))
	for _, s := range sessions[1:] {
		assert.True(t, f.tokens.has(uid, utils.HashToken(s.RefreshToken)))
	}
}

// ----- username check -----

func TestCheckUsername(t *testing.T) {
	f := newAuthFixture()
	name := "taken_name"
	f.users.seed(model.User{Email: "taken@example.com", Username: &name, Language: "fr", Roles: "user"})

	check := func(username string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/auth/username/check/"+username, nil)
		rec := httptest.NewRecorder()
		c := f.e.NewContext(req, rec)
		c.SetParamNames("username")
		c.SetParamValues(username)
		require.NoError(t, f.h.CheckUsername(c))
		return rec
	}

	rec := check("x")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = check("taken_name")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":false`)

	rec = check("free_name")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":true`)
}

// ----- profile -----

func (f *authFixture) asUser(t *testing.T, h echo.HandlerFunc, uid uint64, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := f.e.NewContext(req, rec)
	c.Set(middleware.CtxUserID, uid)
	require.NoError(t, h(c))
	return rec
}

func TestMeReturnsProfile(t *testing.T) {
	f := newAuthFixture()
	u := f.signup(t, "me@example.com", "secret123")

	rec := f.asUser(t, f.h.Me, u.User.ID, http.MethodGet, "/auth/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"me@example.com"`)
	assert.NotContains(t, rec.Body.String(), "PasswordHash")
}

func TestUpdateUsernameConflict(t *testing.T) {
	f := newAuthFixture()
	a := f.signup(t, "a@example.com", "secret123")
	b := f.signup(t, "b@example.com", "secret123")

	rec := f.asUser(t, f.h.UpdateUsername, a.User.ID, http.MethodPut, "/auth/profile/username",
		`{"username":"fresh_name"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.asUser(t, f.h.UpdateUsername, b.User.ID, http.MethodPut, "/auth/profile/username",
		`{"username":"fresh_name"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.asUser(t, f.h.UpdateUsername, b.User.ID, http.MethodPut, "/auth/profile/username",
		`{"username":"bad name"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUpdatePasswordRequiresCurrentWhenSet(t *testing.T) {
	f := newAuthFixture()
	u := f.signup(t, "pw@example.com", "secret123")

	rec := f.asUser(t, f.h.UpdatePassword, u.User.ID, http.MethodPut, "/auth/profile/password",
		`{"currentPassword":"wrong","newPassword":"newsecret1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.asUser(t, f.h.UpdatePassword, u.User.ID, http.MethodPut, "/auth/profile/password",
		`{"currentPassword":"secret123","newPassword":"newsecret1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The new password now logs in.
	login := f.call(t, f.h.Login, http.MethodPost, "/auth/login",
		`{"email":"pw@example.com","password":"newsecret1"}`)
	assert.Equal(t, http.StatusOK, login.Code)
}

func TestUpdatePasswordOAuthOnlySetsFirstPassword(t *testing.T) {
	f := newAuthFixture()
	gid := "google-456"
	u := f.users.seed(model.User{Email: "firstpw@example.com", GoogleID: &gid, Language: "fr", Roles: "user"})

	rec := f.asUser(t, f.h.UpdatePassword, u.ID, http.MethodPut, "/auth/profile/password",
		`{"newPassword":"brandnew1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	login := f.call(t, f.h.Login, http.MethodPost, "/auth/login",
		`{"email":"firstpw@example.com","password":"brandnew1"}`)
	assert.Equal(t, http.StatusOK, login.Code)
}

func TestUpdateLanguage(t *testing.T) {
	f := newAuthFixture()
	u := f.signup(t, "lang@example.com", "secret123")

	rec := f.asUser(t, f.h.UpdateLanguage, u.User.ID, http.MethodPut, "/auth/profile/language",
		`{"language":"en-US"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.users.GetByID(context.Background(), u.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "en-US", stored.Language)
}

// ----- account deletion -----

func TestDeleteAccountRequiresConfirmationPhrase(t *testing.T) {
	f := newAuthFixture()
	u := f.signup(t, "del@example.com", "secret123")

	rec := f.asUser(t, f.h.DeleteAccount, u.User.ID, http.MethodDelete, "/auth/profile/account",
		`{"confirmation":"yes"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	_, err := f.users.GetByID(context.Background(), u.User.ID)
	assert.NoError(t, err, "account must survive an unconfirmed delete")
}

func TestDeleteAccountCascades(t *testing.T) {
	f := newAuthFixture()
	u := f.signup(t, "gone@example.com", "secret123")

	rec := f.asUser(t, f.h.DeleteAccount, u.User.ID, http.MethodDelete, "/auth/profile/account",
		`{"confirmation":"confirmer"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := f.users.GetByID(context.Background(), u.User.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	access := findCookie(rec, "accessToken")
	require.NotNil(t, access)
	assert.Less(t, access.MaxAge, 0)
}
