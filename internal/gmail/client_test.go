// internal/gmail/client_test.go
package gmail

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/xkilldash9x/autologin/internal/config"
)

// newServedClient returns an authenticated client talking to handler.
func newServedClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.GmailConfig{}, zaptest.NewLogger(t))
	c.backoffFactory = func() backoff.BackOff { return &backoff.ZeroBackOff{} }

	svc, err := gmailapi.NewService(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	c.service = svc
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, body)
}

func TestSearchQuery(t *testing.T) {
	day := time.Date(2024, 7, 4, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "", SearchQuery("", time.Time{}))
	assert.Equal(t, "from:no-reply@amazon.com", SearchQuery("no-reply@amazon.com", time.Time{}))
	assert.Equal(t, "after:2024/07/04", SearchQuery("", day))
	assert.Equal(t, "from:a@b.c after:2024/07/04", SearchQuery("a@b.c", day))
}

func TestNotAuthenticated(t *testing.T) {
	c := NewClient(config.GmailConfig{}, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.False(t, c.Authenticated())
	_, err := c.SearchEmails(ctx, "someone@example.com", time.Time{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = c.ReadEmail(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSearchEmails_FollowsPages(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
	)
	c := newServedClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages", r.URL.Path)
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		mu.Unlock()
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, http.StatusOK, `{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"p2"}`)
		case "p2":
			writeJSON(w, http.StatusOK, `{"messages":[{"id":"m3"}]}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	ids, err := c.SearchEmails(context.Background(), "no-reply@amazon.com", start)
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"from:no-reply@amazon.com after:2024/01/02", "from:no-reply@amazon.com after:2024/01/02"}, queries)
}

func TestSearchEmails_NoMatches(t *testing.T) {
	c := newServedClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"resultSizeEstimate":0}`)
	}))

	ids, err := c.SearchEmails(context.Background(), "", time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestReadEmail(t *testing.T) {
	c := newServedClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages/m1", r.URL.Path)
		assert.Equal(t, "metadata", r.URL.Query().Get("format"))
		writeJSON(w, http.StatusOK, `{
			"id": "m1",
			"snippet": "Your code is 123456. Don&#39;t share it.",
			"internalDate": "1700000000000",
			"payload": {"headers": [{"name": "From", "value": "x@y.z"}, {"name": "Subject", "value": "Sign-in code"}]}
		}`)
	}))

	email, err := c.ReadEmail(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", email.ID)
	assert.Equal(t, "Sign-in code", email.Subject)
	assert.Equal(t, "Your code is 123456. Don't share it.", email.Snippet)
	assert.True(t, email.Date.Equal(time.UnixMilli(1700000000000)))
	assert.Equal(t, "Sign-in code\nYour code is 123456. Don't share it.", email.Text())
}

func TestReadEmail_NoSubject(t *testing.T) {
	c := newServedClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"m2","snippet":"hi","payload":{"headers":[]}}`)
	}))

	email, err := c.ReadEmail(context.Background(), "m2")
	require.NoError(t, err)
	assert.Empty(t, email.Subject)
	assert.True(t, email.Date.IsZero())
}

func TestRetry(t *testing.T) {
	t.Run("RecoversFromTransientErrors", func(t *testing.T) {
		var calls atomic.Int32
		c := newServedClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				writeJSON(w, http.StatusServiceUnavailable, `{"error":{"code":503,"message":"backend unavailable"}}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"messages":[{"id":"m1"}]}`)
		}))

		ids, err := c.SearchEmails(context.Background(), "", time.Time{})
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, ids)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		var calls atomic.Int32
		c := newServedClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusTooManyRequests, `{"error":{"code":429,"message":"slow down"}}`)
		}))

		_, err := c.SearchEmails(context.Background(), "", time.Time{})
		require.Error(t, err)
		var apiErr *googleapi.Error
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.Code)
		assert.Equal(t, int32(maxRetries+1), calls.Load())
	})

	t.Run("DoesNotRetryClientErrors", func(t *testing.T) {
		var calls atomic.Int32
		c := newServedClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeJSON(w, http.StatusNotFound, `{"error":{"code":404,"message":"not found"}}`)
		}))

		_, err := c.ReadEmail(context.Background(), "missing")
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&googleapi.Error{Code: 500}))
	assert.True(t, isTransient(&googleapi.Error{Code: 429}))
	assert.False(t, isTransient(&googleapi.Error{Code: 403}))
	assert.False(t, isTransient(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.True(t, isTransient(fmt.Errorf("connection reset by peer")))
}
