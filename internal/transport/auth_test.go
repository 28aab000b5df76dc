package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdocs/askdocs-go/internal/apperr"
	"github.com/askdocs/askdocs-go/internal/model"
)

func authServer(t *testing.T, reply map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(reply)
	}))
}

func TestLoginPersistsSession(t *testing.T) {
	access := mintToken(t, "u1", time.Hour)
	srv := authServer(t, map[string]any{
		"accessToken":  access,
		"refreshToken": "refresh_u1",
		"user":         model.User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
	})
	defer srv.Close()

	client, tokens := newTestClient(t, srv.URL)
	sess, err := client.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, access, sess.AccessToken)
	assert.Equal(t, "Ada", sess.User.Name)

	stored, err := tokens.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
}

func TestLoginAcceptsLegacyTokenField(t *testing.T) {
	access := mintToken(t, "u1", time.Hour)
	srv := authServer(t, map[string]any{
		"token":        access,
		"refreshToken": "refresh_u1",
		"user":         model.User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
	})
	defer srv.Close()

	client, _ := newTestClient(t, srv.URL)
	sess, err := client.Login(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, access, sess.AccessToken)
}

func TestLoginValidatesInput(t *testing.T) {
	client, _ := newTestClient(t, "http://127.0.0.1:0")
	_, err := client.Login(context.Background(), "  ", "pw")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLoginRejectsIncompleteReply(t *testing.T) {
	srv := authServer(t, map[string]any{"accessToken": "a"})
	defer srv.Close()

	client, tokens := newTestClient(t, srv.URL)
	_, err := client.Login(context.Background(), "ada@example.com", "pw")
	require.Error(t, err)

	stored, err := tokens.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored, "a partial session is never persisted")
}

func TestSignupValidatesAndPersists(t *testing.T) {
	access := mintToken(t, "u2", time.Hour)
	srv := authServer(t, map[string]any{
		"accessToken":  access,
		"refreshToken": "refresh_u2",
		"user":         model.User{ID: "u2", Name: "Grace", Email: "grace@example.com"},
	})
	defer srv.Close()

	client, tokens := newTestClient(t, srv.URL)

	t.Run("missing fields rejected locally", func(t *testing.T) {
		_, err := client.Signup(context.Background(), "Grace", "", "pw")
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("successful signup stores session", func(t *testing.T) {
		sess, err := client.Signup(context.Background(), "  Grace  ", "grace@example.com", "pw")
		require.NoError(t, err)
		assert.Equal(t, "u2", sess.User.ID)

		stored, err := tokens.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sess, stored)
	})
}

func TestLogoutClearsSessionEvenWhenServerFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, tokens := newTestClient(t, srv.URL)
	seedSession(t, tokens, mintToken(t, "u1", time.Hour))

	require.NoError(t, client.Logout(context.Background()))

	stored, err := tokens.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, stored)
}
