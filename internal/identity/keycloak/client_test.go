package keycloak

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboard/internal/identity"
	"onboard/internal/platform/config"
	"onboard/pkg/platform/sentinel"
)

// fakeKeycloak is a minimal admin API double: a token endpoint plus scripted
// responses per admin path.
type fakeKeycloak struct {
	t             *testing.T
	tokenRequests atomic.Int64
	handler       http.HandlerFunc
}

func newFakeKeycloak(t *testing.T, handler http.HandlerFunc) (*fakeKeycloak, *Client) {
	t.Helper()
	f := &fakeKeycloak{t: t, handler: handler}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.Form.Get("grant_type"))
		assert.Equal(t, "admin-cli", r.Form.Get("client_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "opaque-admin-token",
			"expires_in":   60,
		})
	})
	mux.HandleFunc("/admin/realms/onboard/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer opaque-admin-token", r.Header.Get("Authorization"))
		f.handler(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(config.KeycloakConfig{
		BaseURL:  server.URL,
		Realm:    "onboard",
		ClientID: "admin-cli",
		Username: "admin",
		Password: "admin",
		Timeout:  5 * time.Second,
	}, slog.New(slog.DiscardHandler))

	return f, client
}

func TestFindByEmail(t *testing.T) {
	_, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a@x.com", r.URL.Query().Get("email"))
		assert.Equal(t, "true", r.URL.Query().Get("exact"))
		_ = json.NewEncoder(w).Encode([]identity.User{{ID: "u-1", Email: "a@x.com"}})
	})

	user, err := client.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
}

func TestFindByEmail_NoMatch(t *testing.T) {
	_, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]identity.User{})
	})

	_, err := client.FindByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFindByPhone_FallsBackToAttributeSearch(t *testing.T) {
	_, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		if username := r.URL.Query().Get("username"); username != "" {
			assert.Equal(t, "+15551230001", username)
			_ = json.NewEncoder(w).Encode([]identity.User{})
			return
		}
		assert.Equal(t, "phoneNumber:+15551230001", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode([]identity.User{{ID: "u-2", Username: "legacy-user"}})
	})

	user, err := client.FindByPhone(context.Background(), "+15551230001")
	require.NoError(t, err)
	assert.Equal(t, "u-2", user.ID)
}

func TestCreate_ReadsIDFromLocation(t *testing.T) {
	_, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var payload identity.User
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "+15551230001", payload.Username)
		assert.Equal(t, []string{"+15551230001"}, payload.Attributes[identity.AttrPhoneNumber])

		w.Header().Set("Location", "/admin/realms/onboard/users/new-user-id")
		w.WriteHeader(http.StatusCreated)
	})

	user := &identity.User{Username: "+15551230001", Email: "a@x.com"}
	user.SetAttr(identity.AttrPhoneNumber, "+15551230001")

	id, err := client.Create(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "new-user-id", id)
}

func TestCreate_Conflict(t *testing.T) {
	_, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	_, err := client.Create(context.Background(), &identity.User{Username: "+15551230001"})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestUpdate(t *testing.T) {
	_, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/realms/onboard/users/u-1", r.URL.Path)

		var payload identity.User
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.True(t, payload.EmailVerified)

		w.WriteHeader(http.StatusNoContent)
	})

	err := client.Update(context.Background(), &identity.User{ID: "u-1", EmailVerified: true})
	require.NoError(t, err)
}

func TestFindByID_NotFound(t *testing.T) {
	_, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestServerErrorsMapToUnavailable(t *testing.T) {
	_, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FindByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}

func TestAdminTokenIsCached(t *testing.T) {
	fake, client := newFakeKeycloak(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]identity.User{{ID: "u-1"}})
	})
	ctx := context.Background()

	_, err := client.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	_, err = client.FindByEmail(ctx, "b@x.com")
	require.NoError(t, err)

	assert.Equal(t, int64(1), fake.tokenRequests.Load(), "the second call reuses the cached token")
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /realms/onboard", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"realm": "onboard"})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := New(config.KeycloakConfig{
		BaseURL: server.URL,
		Realm:   "onboard",
		Timeout: time.Second,
	}, slog.New(slog.DiscardHandler))

	assert.NoError(t, client.Health(context.Background()))
}
