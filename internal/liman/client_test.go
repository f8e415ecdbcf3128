package liman

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		BaseURL:         srv.URL,
		APIPrefix:       "/api",
		AuthPrefix:      "/api/auth",
		ChannelAuthPath: "/api/broadcasting/auth",
		HTTPClient:      srv.Client(),
	}).WithToken("tok-123")
}

func TestUnreadNotifications(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/notifications/unread", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"notification_id": "b1", "title": "Disk full", "content": "/var is at 97%",
			 "level": "error", "send_at": "2024-05-01 12:00:00", "send_at_humanized": "3 minutes ago", "seen_at": null},
			{"id": 42, "title": "Update ready", "level": "info", "send_at": "2024-05-01T11:00:00Z",
			 "seen_at": "2024-05-01 11:05:00"}
		]`)
	})

	list, err := c.UnreadNotifications(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "b1", list[0].ID)
	assert.Equal(t, "Disk full", list[0].Title)
	assert.Equal(t, "3 minutes ago", list[0].SentAtHumanized)
	assert.False(t, list[0].Seen())
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), list[0].SentAt)

	assert.Equal(t, "42", list[1].ID)
	require.NotNil(t, list[1].SeenAt)
	assert.True(t, list[1].Seen())
}

func TestUnreadNotifications_KeepsItemsWithBadTimestamps(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[
			{"notification_id": "a", "title": "Fine", "send_at": "2024-05-01 12:00:00", "seen_at": null},
			{"notification_id": "b", "title": "Odd", "send_at": "01/05/2024 noon", "send_at_humanized": "an hour ago", "seen_at": null}
		]`)
	})

	list, err := c.UnreadNotifications(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "b", list[1].ID)
	assert.True(t, list[1].SentAt.IsZero())
	assert.Equal(t, "an hour ago", list[1].SentAtHumanized)
	assert.False(t, list[1].Seen())
}

func TestMarkSeen(t *testing.T) {
	var got seenRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/notifications/seen", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.MarkSeen(t.Context(), "b1"))
	assert.Equal(t, "b1", got.NotificationID)
}

func TestMarkAllRead(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "/api/notifications/read", r.URL.Path)
		io.WriteString(w, `{"message":"ok"}`)
	})

	require.NoError(t, c.MarkAllRead(t.Context()))
	assert.True(t, called)
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.UnreadNotifications(t.Context())
	require.Error(t, err)
	assert.True(t, IsAuthError(err))

	err = c.MarkSeen(t.Context(), "b1")
	assert.True(t, IsAuthError(err))
}

func TestStatusErrorUsesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"message":"notification not found"}`)
	})

	err := c.MarkSeen(t.Context(), "missing")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.Code)
	assert.Equal(t, "notification not found", se.Body)
	assert.False(t, IsAuthError(err))
}

func TestRetriesOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, `[]`)
	})

	list, err := c.UnreadNotifications(t.Context())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for range 4 {
		_, err := c.UnreadNotifications(t.Context())
		require.Error(t, err)
	}

	_, err := c.UnreadNotifications(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liman api unavailable")
	assert.Equal(t, int32(4), calls.Load())
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ops@example.com", req.Email)
		assert.Equal(t, "hunter2hunter2", req.Password)

		io.WriteString(w, `{"access_token":"jwt","token_type":"bearer","expires_in":3600,
			"user":{"id":"u-1","name":"Ops","email":"ops@example.com"}}`)
	})

	token, err := c.Login(t.Context(), "ops@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, "jwt", token.AccessToken)
	assert.Equal(t, 3600, token.ExpiresIn)
	assert.Equal(t, "u-1", token.User.ID)
	assert.WithinDuration(t, time.Now(), token.IssuedAt, time.Minute)
}

func TestLogin_PasswordChangeRequired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"message":"password change required"}`)
	})

	_, err := c.Login(t.Context(), "ops@example.com", "old-password")
	assert.ErrorIs(t, err, ErrPasswordChangeRequired)
}

func TestLogin_ForceChangeWithoutToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"user":{"id":"u-1","forceChange":true}}`)
	})

	_, err := c.Login(t.Context(), "ops@example.com", "old-password")
	assert.ErrorIs(t, err, ErrPasswordChangeRequired)
}

func TestChangePassword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/change_password", r.URL.Path)
		var req changePasswordRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "new-password-1", req.NewPassword)
		io.WriteString(w, `{"access_token":"jwt2"}`)
	})

	token, err := c.ChangePassword(t.Context(), "ops@example.com", "old-password", "new-password-1")
	require.NoError(t, err)
	assert.Equal(t, "jwt2", token.AccessToken)
}

func TestAuthorizeChannel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/broadcasting/auth", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "123.456", r.PostForm.Get("socket_id"))
		assert.Equal(t, "private-App.User.u-1", r.PostForm.Get("channel_name"))
		io.WriteString(w, `{"auth":"key:signature"}`)
	})

	auth, err := c.AuthorizeChannel(t.Context(), "123.456", "private-App.User.u-1")
	require.NoError(t, err)
	assert.Equal(t, "key:signature", auth)
}

func TestAuthorizeChannel_EmptySignature(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})

	_, err := c.AuthorizeChannel(t.Context(), "1.2", "private-App.User.1")
	assert.Error(t, err)
}
