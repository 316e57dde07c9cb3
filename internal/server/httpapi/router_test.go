package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sparkbridge/server/internal/common"
	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/models"
	"github.com/sparkbridge/server/internal/server/services"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var (
	alice = models.TokenPayload{UserID: "u-1", Email: "a@x.com"}
	root  = models.TokenPayload{UserID: "u-0", Email: "root@x.com", IsAdmin: true}
)

// fakeAuth accepts the access tokens "alice" and "root".
type fakeAuth struct {
	registerIn  services.RegisterInput
	registerErr error
	loginErr    error
	refreshErr  error
	meErr       error
	setAdminErr error

	revoked    []string
	revokedAll []string
	setAdmin   map[string]bool
}

func (f *fakeAuth) VerifyAccess(_ context.Context, token string) (models.TokenPayload, error) {
	switch token {
	case "alice":
		return alice, nil
	case "root":
		return root, nil
	}
	return models.TokenPayload{}, common.NewAuthError(common.KindInvalidOrExpiredToken, errors.New("signature is invalid"))
}

func (f *fakeAuth) Register(_ context.Context, in services.RegisterInput) (*models.User, *models.Profile, error) {
	f.registerIn = in
	if f.registerErr != nil {
		return nil, nil, f.registerErr
	}
	return &models.User{ID: "u-1", Email: in.Email},
		&models.Profile{ID: "u-1", Email: in.Email, FirstName: in.FirstName, LastName: in.LastName, AttendeeType: in.AttendeeType},
		nil
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (*services.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &services.LoginResult{
		Tokens:  models.TokenPair{AccessToken: "at", RefreshToken: "rt"},
		User:    &models.User{ID: "u-1", Email: email},
		Profile: &models.Profile{ID: "u-1", FirstName: "A", LastName: "B", AttendeeType: models.AttendeeGeneral},
	}, nil
}

func (f *fakeAuth) Refresh(_ context.Context, token string) (*models.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &models.TokenPair{AccessToken: "at2", RefreshToken: token + "-next"}, nil
}

func (f *fakeAuth) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeAuth) RevokeAll(_ context.Context, userID string) (int64, error) {
	f.revokedAll = append(f.revokedAll, userID)
	return 2, nil
}

func (f *fakeAuth) GetCurrentUser(_ context.Context, userID string) (*models.User, *models.Profile, error) {
	if f.meErr != nil {
		return nil, nil, f.meErr
	}
	return &models.User{ID: userID, Email: "a@x.com"}, &models.Profile{ID: userID, FirstName: "A"}, nil
}

func (f *fakeAuth) SetAdmin(_ context.Context, userID string, isAdmin bool) (*models.Profile, error) {
	if f.setAdminErr != nil {
		return nil, f.setAdminErr
	}
	if f.setAdmin == nil {
		f.setAdmin = map[string]bool{}
	}
	f.setAdmin[userID] = isAdmin
	return &models.Profile{ID: userID, IsAdmin: isAdmin}, nil
}

func newTestRouter(f *fakeAuth) *gin.Engine {
	return NewRouter(f, logging.Nop{}, RouterOptions{AllowedOrigins: []string{"http://localhost:3000"}})
}

func do(t *testing.T, r http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestToAPIError_StatusPerKind(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{common.ErrDuplicateIdentity, http.StatusConflict},
		{common.ErrInvalidCredentials, http.StatusUnauthorized},
		{common.ErrInvalidOrExpiredToken, http.StatusUnauthorized},
		{common.ErrInvalidOrExpiredRefreshToken, http.StatusUnauthorized},
		{common.ErrUserNotFound, http.StatusNotFound},
		{common.ErrAuthInternal, http.StatusInternalServerError},
		{errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, body := ToAPIError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.NotContains(t, body.Message, "pq:")
	}
}

func TestHealth(t *testing.T) {
	w, body := do(t, newTestRouter(&fakeAuth{}), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestAccessGate(t *testing.T) {
	r := newTestRouter(&fakeAuth{})

	w, body := do(t, r, http.MethodGet, "/api/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Access token required", body["error"])

	w, body = do(t, r, http.MethodGet, "/api/auth/me", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or expired token", body["error"])
	assert.NotContains(t, w.Body.String(), "signature")

	w, body = do(t, r, http.MethodGet, "/api/auth/me", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	user := body["user"].(map[string]any)
	assert.Equal(t, "u-1", user["id"])
}

func TestRequireAdmin(t *testing.T) {
	r := newTestRouter(&fakeAuth{})

	w, body := do(t, r, http.MethodPost, "/api/admin/users/u-1/revoke-sessions", "alice", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Admin access required", body["error"])

	w, _ = do(t, r, http.MethodPost, "/api/admin/users/u-1/revoke-sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := &fakeAuth{}
		w, body := do(t, newTestRouter(f), http.MethodPost, "/api/auth/register", "",
			`{"email":"a@x.com","password":"password123","firstName":"A","lastName":"B","company":"","attendeeType":"speaker"}`)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, "User registered successfully", body["message"])
		assert.Equal(t, models.AttendeeSpeaker, f.registerIn.AttendeeType)
		assert.Nil(t, f.registerIn.Company, "empty optional fields become NULL")
		profile := body["profile"].(map[string]any)
		assert.Equal(t, "u-1", profile["id"])
	})

	t.Run("validation", func(t *testing.T) {
		w, body := do(t, newTestRouter(&fakeAuth{}), http.MethodPost, "/api/auth/register", "",
			`{"email":"nope","password":"short","firstName":"","lastName":"B","attendeeType":"press"}`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		details := body["details"].(map[string]any)
		assert.Contains(t, details, "email")
		assert.Contains(t, details, "password")
		assert.Contains(t, details, "firstName")
		assert.Equal(t, "Invalid attendeeType", details["attendeeType"])
	})

	t.Run("long password reaches the service", func(t *testing.T) {
		f := &fakeAuth{}
		pw := strings.Repeat("é", 40)
		w, _ := do(t, newTestRouter(f), http.MethodPost, "/api/auth/register", "",
			`{"email":"a@x.com","password":"`+pw+`","firstName":"A","lastName":"B","attendeeType":"general"}`)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, pw, f.registerIn.Password)
	})

	t.Run("malformed json", func(t *testing.T) {
		w, _ := do(t, newTestRouter(&fakeAuth{}), http.MethodPost, "/api/auth/register", "", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate", func(t *testing.T) {
		f := &fakeAuth{registerErr: common.ErrDuplicateIdentity}
		w, body := do(t, newTestRouter(f), http.MethodPost, "/api/auth/register", "",
			`{"email":"a@x.com","password":"password123","firstName":"A","lastName":"B","attendeeType":"general"}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "User already exists", body["error"])
	})
}

func TestLogin(t *testing.T) {
	w, body := do(t, newTestRouter(&fakeAuth{}), http.MethodPost, "/api/auth/login", "",
		`{"email":"a@x.com","password":"password123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "at", body["accessToken"])
	assert.Equal(t, "rt", body["refreshToken"])
	assert.Equal(t, "A", body["user"].(map[string]any)["firstName"])

	f := &fakeAuth{loginErr: common.ErrInvalidCredentials}
	w, body = do(t, newTestRouter(f), http.MethodPost, "/api/auth/login", "",
		`{"email":"a@x.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials", body["error"])
}

func TestRefresh(t *testing.T) {
	r := newTestRouter(&fakeAuth{})

	w, body := do(t, r, http.MethodPost, "/api/auth/refresh", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Refresh token required", body["error"])

	w, body = do(t, r, http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"rt"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rt-next", body["refreshToken"])

	f := &fakeAuth{refreshErr: common.ErrInvalidOrExpiredRefreshToken}
	w, body = do(t, newTestRouter(f), http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"used"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid or expired refresh token", body["error"])
}

func TestLogout(t *testing.T) {
	f := &fakeAuth{}
	r := newTestRouter(f)

	w, _ := do(t, r, http.MethodPost, "/api/auth/logout", "alice", `{"refreshToken":"rt"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"rt"}, f.revoked)
	assert.Empty(t, f.revokedAll)

	w, _ = do(t, r, http.MethodPost, "/api/auth/logout", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"u-1"}, f.revokedAll)
}

func TestMe_NotFound(t *testing.T) {
	f := &fakeAuth{meErr: common.ErrUserNotFound}
	w, body := do(t, newTestRouter(f), http.MethodGet, "/api/auth/me", "alice", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", body["error"])
}

const (
	targetID = "6f1c2a9e-4b7d-4c1e-9a35-0d8e7f6a5b43"
	ghostID  = "00000000-0000-4000-8000-000000000000"
)

func TestAdminEndpoints(t *testing.T) {
	f := &fakeAuth{}
	r := newTestRouter(f)

	w, body := do(t, r, http.MethodPost, "/api/admin/users/"+targetID+"/revoke-sessions", "root", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["revoked"])
	assert.Equal(t, []string{targetID}, f.revokedAll)

	w, _ = do(t, r, http.MethodPut, "/api/admin/users/"+targetID+"/admin", "root", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, r, http.MethodPut, "/api/admin/users/"+targetID+"/admin", "root", `{"isAdmin":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.setAdmin[targetID])
	assert.Equal(t, true, body["profile"].(map[string]any)["isAdmin"])

	f.setAdminErr = common.ErrUserNotFound
	w, _ = do(t, r, http.MethodPut, "/api/admin/users/"+ghostID+"/admin", "root", `{"isAdmin":false}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminEndpoints_NonUUIDIsNotFound(t *testing.T) {
	f := &fakeAuth{}
	r := newTestRouter(f)

	w, body := do(t, r, http.MethodPost, "/api/admin/users/abc/revoke-sessions", "root", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", body["error"])

	w, _ = do(t, r, http.MethodPut, "/api/admin/users/abc/admin", "root", `{"isAdmin":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Empty(t, f.revokedAll, "service must not see a malformed id")
	assert.Empty(t, f.setAdmin)
}

type recordingNotifier struct {
	revoked  map[string]int64
	profiles []string
}

func (n *recordingNotifier) SessionsRevoked(userID string, revoked int64) {
	if n.revoked == nil {
		n.revoked = map[string]int64{}
	}
	n.revoked[userID] = revoked
}

func (n *recordingNotifier) ProfileUpdated(p *models.Profile) {
	n.profiles = append(n.profiles, p.ID)
}

func TestAdminEndpoints_Notify(t *testing.T) {
	f := &fakeAuth{}
	n := &recordingNotifier{}
	r := NewRouter(f, logging.Nop{}, RouterOptions{Notifier: n})

	w, _ := do(t, r, http.MethodPost, "/api/admin/users/"+targetID+"/revoke-sessions", "root", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int64{targetID: 2}, n.revoked)

	w, _ = do(t, r, http.MethodPut, "/api/admin/users/"+targetID+"/admin", "root", `{"isAdmin":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{targetID}, n.profiles)

	f.setAdminErr = common.ErrUserNotFound
	w, _ = do(t, r, http.MethodPut, "/api/admin/users/"+ghostID+"/admin", "root", `{"isAdmin":true}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, n.profiles, 1)
}

func TestCORS(t *testing.T) {
	r := newTestRouter(&fakeAuth{})

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
