package health

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
)

func fastOpts() Options {
	return Options{
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     40 * time.Millisecond,
		Budget:          2 * time.Second,
		RequestTimeout:  200 * time.Millisecond,
	}
}

func TestPoll_ImmediateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": "Welcome to the Compreface Face Comparison API"}`))
	}))
	defer srv.Close()

	res, err := Poll(context.Background(), srv.URL+"/", fastOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, http.StatusOK, res.Status)
}

func TestPoll_SucceedsAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	var retries []time.Duration
	opts := fastOpts()
	opts.OnRetry = func(err error, next time.Duration) { retries = append(retries, next) }

	res, err := Poll(context.Background(), srv.URL, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Attempts)
	assert.Len(t, retries, 3)
	for _, d := range retries {
		assert.LessOrEqual(t, d, opts.MaxInterval+opts.MaxInterval/5, "delay capped near MaxInterval")
	}
}

func TestPoll_RedirectIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs", http.StatusFound)
	}))
	defer srv.Close()

	res, err := Poll(context.Background(), srv.URL, fastOpts())
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, res.Status)
}

func TestPoll_BudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := fastOpts()
	opts.Budget = 200 * time.Millisecond

	start := time.Now()
	res, err := Poll(context.Background(), srv.URL, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHealthCheckTimeout))
	assert.Greater(t, res.Attempts, 1)
	assert.Less(t, time.Since(start), 2*time.Second, "budget bounds total time")
}

func TestPoll_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	opts := fastOpts()
	opts.Budget = 150 * time.Millisecond

	_, err := Poll(context.Background(), url, opts)
	assert.True(t, errors.Is(err, ErrHealthCheckTimeout))
}

func TestPoll_ParentCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := Poll(ctx, srv.URL, fastOpts())
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrHealthCheckTimeout))
}

func TestOptionsDefaults(t *testing.T) {
	o := (&Options{}).withDefaults()
	assert.Equal(t, time.Second, o.InitialInterval)
	assert.Equal(t, 8*time.Second, o.MaxInterval)
	assert.Equal(t, 60*time.Second, o.Budget)
	assert.Equal(t, 5*time.Second, o.RequestTimeout)
	assert.NotNil(t, o.Client)
}
