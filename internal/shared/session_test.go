package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "capline_session", time.Hour, false), mr
}

func TestSessionLoginPersistsAndReloads(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	require.NoError(t, err)
	sess.SetUser(7)

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, "capline_session", cookies[0].Name)
	require.True(t, cookies[0].HttpOnly)
	require.True(t, mr.Exists("session:"+sess.ID))

	// A follow-up request carrying the cookie resolves the same user.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(7), loaded.User())
}

func TestAnonymousSessionNotPersisted(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))
	require.Empty(t, rec.Result().Cookies())
	require.Empty(t, mr.Keys())
}

func TestSessionWithDeadRedisKeyStartsFresh(t *testing.T) {
	sm, _ := newTestManager(t)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "capline_session", Value: "expired-id"})
	sess, err := sm.Load(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(0), sess.User())
}

func TestDestroyDeletesSessionAndClearsCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	require.NoError(t, err)
	sess.SetUser(7)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))
	require.True(t, mr.Exists("session:"+sess.ID))

	sm.Destroy(sess)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(ctx, rec, sess))

	require.False(t, mr.Exists("session:"+sess.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, -1, cookies[0].MaxAge)
	require.Empty(t, cookies[0].Value)
}

func TestSessionExpiresWithTTL(t *testing.T) {
	sm, mr := newTestManager(t)
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	require.NoError(t, err)
	sess.SetUser(7)
	require.NoError(t, sm.Commit(ctx, httptest.NewRecorder(), sess))

	mr.FastForward(2 * time.Hour)
	require.False(t, mr.Exists("session:"+sess.ID))
}
