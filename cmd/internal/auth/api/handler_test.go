package authapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lohmander/brink-auth/cmd/identity"
	"github.com/lohmander/brink-auth/cmd/internal/auth/authn"
	"github.com/lohmander/brink-auth/cmd/security/token"
)

func newTestServer(t *testing.T) (*httptest.Server, *token.Signer) {
	t.Helper()

	signer, err := token.NewSigner([]byte("0123456789abcdef0123456789abcdef"), 24*time.Hour)
	require.NoError(t, err)

	log := slog.New(slog.DiscardHandler)
	svc := authn.NewService(identity.NewMemoryStore(), signer, log)

	h, err := NewHandler(log, svc, DefaultConfig())
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, signer
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if resp.StatusCode == http.StatusNoContent {
		return resp, nil
	}
	var envelope map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func dataField[T any](t *testing.T, envelope map[string]json.RawMessage) T {
	t.Helper()

	raw, ok := envelope["data"]
	require.True(t, ok, "response missing data envelope")
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func errorField(t *testing.T, envelope map[string]json.RawMessage) apiError {
	t.Helper()

	raw, ok := envelope["error"]
	require.True(t, ok, "response missing error field")
	var v apiError
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestIdentityLifecycle(t *testing.T) {
	srv, signer := newTestServer(t)

	// Create.
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "wonderland1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := dataField[identityResponse](t, body)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "alice", created.Username)
	assert.False(t, created.CreatedAt.IsZero())

	// Authenticate; the token embeds the identity id and expires in 24h.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/identities/auth",
		map[string]string{"username": "alice", "password": "wonderland1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	auth := dataField[authResponse](t, body)
	require.NotEmpty(t, auth.Token)
	assert.Equal(t, created.ID, auth.Identity.ID)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), auth.Expires, 5*time.Second)

	claims, err := signer.Verify(auth.Token, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.ID)

	// Get.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/identities/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := dataField[identityResponse](t, body)
	assert.Equal(t, created, got)

	// List.
	resp, body = doJSON(t, http.MethodGet, srv.URL+"/identities", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := dataField[[]identityResponse](t, body)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	// Update username and password.
	resp, body = doJSON(t, http.MethodPut, srv.URL+"/identities/"+created.ID,
		map[string]string{"username": "alice2", "password": "looking-glass2"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := dataField[identityResponse](t, body)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "alice2", updated.Username)

	// Old credentials stop working; updated ones authenticate.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/identities/auth",
		map[string]string{"username": "alice", "password": "wonderland1"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/identities/auth",
		map[string]string{"username": "alice2", "password": "looking-glass2"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Delete, then the record is gone.
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/identities/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/identities/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorField(t, body).Code)

	// Deleting again still succeeds.
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/identities/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCreateDuplicateUsername(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "wonderland1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "other-pass1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	apiErr := errorField(t, body)
	assert.Equal(t, "username_taken", apiErr.Code)
	assert.Equal(t, "username is already taken", apiErr.Message)
}

func TestAuthenticateFailures(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "wonderland1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Unknown user and wrong password both produce the same 401.
	for _, creds := range []map[string]string{
		{"username": "nobody", "password": "wonderland1"},
		{"username": "alice", "password": "wrong-password"},
	} {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/identities/auth", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_credentials", errorField(t, body).Code)
	}
}

func TestCreateValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "", "password": "wonderland1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", errorField(t, body).Code)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", errorField(t, body).Code)

	// Unknown fields are rejected.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "wonderland1", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", errorField(t, body).Code)
}

func TestUpdateMissingIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/identities/01XXXXXXXXXXXXXXXXXXXXXXXX",
		map[string]string{"username": "ghost"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorField(t, body).Code)
}

func TestUpdateConflictingUsername(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "wonderland1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	alice := dataField[identityResponse](t, body)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "bob", "password": "builder-pass"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/identities/"+alice.ID,
		map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "username is already taken", errorField(t, body).Message)
}

// A short password is still a valid password: create with "pw1", reject the
// wrong password with 401, and issue a verifiable token for the right one.
func TestShortPasswordLifecycle(t *testing.T) {
	srv, signer := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "pw1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := dataField[identityResponse](t, body)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/identities/auth",
		map[string]string{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", errorField(t, body).Code)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/identities/auth",
		map[string]string{"username": "alice", "password": "pw1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	auth := dataField[authResponse](t, body)

	claims, err := signer.Verify(auth.Token, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.ID)
}

// An update rejected for an id collision must not disturb the existing
// records, in particular not the username index of the untouched target.
func TestUpdateIDConflictLeavesRecordsIntact(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "wonderland1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	alice := dataField[identityResponse](t, body)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "bob", "password": "builder-pass"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	bob := dataField[identityResponse](t, body)

	resp, body = doJSON(t, http.MethodPut, srv.URL+"/identities/"+alice.ID,
		map[string]string{"username": "carol", "id": bob.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "id_taken", errorField(t, body).Code)

	// Alice remains authenticatable under her original credentials.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/identities/auth",
		map[string]string{"username": "alice", "password": "wonderland1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// And her username is still taken.
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/identities",
		map[string]string{"username": "alice", "password": "other-pass"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "username is already taken", errorField(t, body).Message)
}
