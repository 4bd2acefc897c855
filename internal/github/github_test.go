package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New(true, "tok", 0, "")
	a.httpClient = srv.Client()
	return a, srv
}

func (a *Adapter) overrideBaseURL(t *testing.T, rawURL string) {
	t.Helper()
	u, err := url.Parse(rawURL + "/")
	require.NoError(t, err)
	a.baseURL = u
}

func writeTestPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	path := filepath.Join(t.TempDir(), "app.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))
	return path
}

func TestGetDefaultBranch(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"default_branch": "main"}`)
	})
	a.overrideBaseURL(t, srv.URL)

	branch, err := a.GetDefaultBranch(context.Background(), "acme", "widgets", "tok")
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestGetDefaultBranch_UpstreamError(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})
	a.overrideBaseURL(t, srv.URL)

	branch, err := a.GetDefaultBranch(context.Background(), "acme", "widgets", "tok")
	require.NoError(t, err, "non-2xx responses downgrade to a benign zero value, not an error")
	assert.Empty(t, branch)
}

func TestDeleteBranch(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	a.overrideBaseURL(t, srv.URL)

	ok, err := a.DeleteBranch(context.Background(), "acme", "widgets", "feature-x", "tok")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteBranch_Failure(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "Reference does not exist"}`)
	})
	a.overrideBaseURL(t, srv.URL)

	ok, err := a.DeleteBranch(context.Background(), "acme", "widgets", "feature-x", "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCreatePull(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"html_url": "https://github.com/acme/widgets/pull/7"}`)
	})
	a.overrideBaseURL(t, srv.URL)

	url, err := a.CreatePull(context.Background(), "acme", "widgets", "feature-x", "main", "Add feature X", false, "tok")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/widgets/pull/7", url)
}

func TestGetProjectPermissions(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"permission": "write"}`)
	})
	a.overrideBaseURL(t, srv.URL)

	perm, err := a.GetProjectPermissions(context.Background(), "acme", "widgets", "alice", "tok")
	require.NoError(t, err)
	assert.Equal(t, "write", perm.Level)
}

func TestInstallationToken_LocalMode(t *testing.T) {
	a := New(true, "configured-pat", 0, "")

	token, err := a.InstallationToken(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "configured-pat", token)
}

func TestInstallationToken_NoInstallationFound(t *testing.T) {
	a, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": 1, "account": {"login": "other-org"}}]`)
	})
	a.overrideBaseURL(t, srv.URL)
	a.LocalMode = false
	a.AppID = 12345
	a.PrivateKeyPath = writeTestPEM(t)

	_, err := a.InstallationToken(context.Background(), "acme")
	assert.Error(t, err, "installation-token must raise an error, unlike every other adapter method")
}

func TestParseRSAPrivateKey_InvalidPEM(t *testing.T) {
	_, err := parseRSAPrivateKey([]byte("not a pem"))
	assert.Error(t, err)
}
