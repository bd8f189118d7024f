package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisersense-io/mate-service/model"
)

type staticToken struct {
	token       *AuthToken
	err         error
	invalidated *int32
}

func (s staticToken) FindToken(context.Context) (*AuthToken, error) {
	return s.token, s.err
}

func (s staticToken) Invalidate() {
	if s.invalidated != nil {
		atomic.AddInt32(s.invalidated, 1)
	}
}

func TestFetchSystems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/systems", r.URL.Path)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "org-1", q.Get("organizationId"))
		assert.Equal(t, "1", q.Get("filter"))
		assert.Equal(t, "40", q.Get("skip"))
		assert.Equal(t, "20", q.Get("take"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"S1","key":"Pump 1","healthScore":87.5,"hasAlarm":true,"hierarchy":"{}"}]`))
	}))
	defer srv.Close()

	cli := NewClient(staticToken{token: &AuthToken{TokenType: "Bearer", AccessToken: "abc"}}, Config{BaseURL: srv.URL})
	records, err := cli.FetchSystems(context.Background(), "org-1", model.FilterAlarm, 40, 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "S1", records[0].ID)
	assert.Equal(t, 87.5, records[0].HealthScore)
	assert.True(t, records[0].HasAlarm)
	assert.Equal(t, "{}", records[0].Hierarchy)
}

func TestFetchSystemsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	cli := NewClient(staticToken{token: &AuthToken{AccessToken: "abc"}}, Config{BaseURL: srv.URL})
	_, err := cli.FetchSystems(context.Background(), "org", model.FilterAll, 0, 20)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequest)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "boom", se.Body)
}

func TestFetchSystemsUnauthorizedInvalidatesToken(t *testing.T) {
	status := int32(http.StatusUnauthorized)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	var invalidated int32
	cli := NewClient(staticToken{token: &AuthToken{AccessToken: "stale"}, invalidated: &invalidated}, Config{BaseURL: srv.URL})
	_, err := cli.FetchSystems(context.Background(), "org", model.FilterAll, 0, 20)
	assert.ErrorIs(t, err, ErrRequest)
	assert.Equal(t, int32(1), atomic.LoadInt32(&invalidated))

	// 其它错误状态不丢弃令牌
	atomic.StoreInt32(&status, http.StatusBadGateway)
	_, err = cli.FetchSystems(context.Background(), "org", model.FilterAll, 0, 20)
	assert.ErrorIs(t, err, ErrRequest)
	assert.Equal(t, int32(1), atomic.LoadInt32(&invalidated))
}

func TestFetchSystemsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"`))
	}))
	defer srv.Close()

	cli := NewClient(staticToken{token: &AuthToken{AccessToken: "abc"}}, Config{BaseURL: srv.URL})
	_, err := cli.FetchSystems(context.Background(), "org", model.FilterAll, 0, 20)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestFetchSystemsTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(done)

	cli := NewClient(staticToken{token: &AuthToken{AccessToken: "abc"}}, Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := cli.FetchSystems(context.Background(), "org", model.FilterAll, 0, 20)
	assert.ErrorIs(t, err, ErrRequest)
}

func TestFetchSystemsTokenError(t *testing.T) {
	cli := NewClient(staticToken{err: errors.New("no token")}, Config{BaseURL: "http://127.0.0.1:1"})
	_, err := cli.FetchSystems(context.Background(), "org", model.FilterAll, 0, 20)
	assert.ErrorIs(t, err, ErrRequest)
}

func TestAuthorization(t *testing.T) {
	assert.Equal(t, "Bearer x", (&AuthToken{AccessToken: "x"}).Authorization())
	assert.Equal(t, "JWT x", (&AuthToken{TokenType: "JWT", AccessToken: "x"}).Authorization())
}
