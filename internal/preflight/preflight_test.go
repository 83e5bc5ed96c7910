package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/facedeploy/internal/endpoint"
	"github.com/majorcontext/facedeploy/internal/prompt"
)

// recordingSource answers from a map and records the order of requested keys.
type recordingSource struct {
	answers map[string]string
	asked   []string
}

func (s *recordingSource) Value(key string) (string, error) {
	s.asked = append(s.asked, key)
	return s.answers[key], nil
}

func TestCollect_Valid(t *testing.T) {
	src := &recordingSource{answers: map[string]string{
		KeyAPIKey:  "95b5a075-85fb-4027-ba71-c577687b2a23",
		KeyBaseURL: "http://localhost:8000",
	}}

	target, state, err := Collect(src)
	require.NoError(t, err)
	assert.Equal(t, Valid, state)
	assert.Equal(t, "95b5a075-85fb-4027-ba71-c577687b2a23", target.APIKey)
	assert.Equal(t, "http://localhost:8000/api/v1/verification/verify", target.VerificationURL())
	assert.Equal(t, []string{KeyAPIKey, KeyBaseURL}, src.asked)
}

func TestCollect_MissingKeyStopsBeforeURL(t *testing.T) {
	src := &recordingSource{answers: map[string]string{KeyBaseURL: "http://localhost:8000"}}

	_, state, err := Collect(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Equal(t, Invalid, state)
	assert.Equal(t, []string{KeyAPIKey}, src.asked)
}

func TestCollect_MissingURL(t *testing.T) {
	_, state, err := Collect(prompt.Static{KeyAPIKey: "key"})
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.Equal(t, Invalid, state)
}

func TestCollect_NothingSupplied(t *testing.T) {
	_, _, err := Collect(prompt.Chain{prompt.Static{}, prompt.Static{}})
	assert.True(t, errors.Is(err, ErrMissingCredential))
}

func TestCollect_InvalidURL(t *testing.T) {
	_, state, err := Collect(prompt.Static{KeyAPIKey: "key", KeyBaseURL: "not-a-url"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, endpoint.ErrInvalidURLFormat))
	assert.Contains(t, err.Error(), `"not-a-url"`)
	assert.Equal(t, Invalid, state)
}

func TestCollect_SourceError(t *testing.T) {
	boom := errors.New("tty closed")
	_, _, err := Collect(errSource{boom})
	assert.True(t, errors.Is(err, boom))
}

type errSource struct{ err error }

func (e errSource) Value(string) (string, error) { return "", e.err }

func TestHTTPProber_AnyResponseIsReachable(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusFound, http.StatusUnauthorized, http.StatusMethodNotAllowed, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if status == http.StatusFound {
				http.Redirect(w, r, "http://192.0.2.1/elsewhere", status)
				return
			}
			w.WriteHeader(status)
		}))
		err := NewHTTPProber(time.Second).Probe(context.Background(), srv.URL+endpoint.VerificationPath)
		assert.NoError(t, err, "status %d", status)
		srv.Close()
	}
}

func TestHTTPProber_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTPProber(time.Second).Probe(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestHTTPProber_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	err := NewHTTPProber(50*time.Millisecond).Probe(context.Background(), srv.URL)
	assert.True(t, errors.Is(err, ErrUnreachable))
	assert.Less(t, time.Since(start), 5*time.Second)
}

type fakeProber struct {
	err   error
	calls int
}

func (f *fakeProber) Probe(context.Context, string) error {
	f.calls++
	return f.err
}

func TestGate_Reachable(t *testing.T) {
	p := &fakeProber{}
	src := &recordingSource{}

	reachable, err := Gate(context.Background(), p, src, "http://x", nil)
	require.NoError(t, err)
	assert.True(t, reachable)
	assert.Empty(t, src.asked, "operator must not be asked when reachable")
	assert.Equal(t, 1, p.calls)
}

func TestGate_UnreachableConfirmation(t *testing.T) {
	tests := []struct {
		answer  string
		wantErr bool
	}{
		{"y", false},
		{"Y", false},
		{"", true},
		{"n", true},
		{"yes", true},
		{"q", true},
	}

	for _, tt := range tests {
		t.Run("answer="+tt.answer, func(t *testing.T) {
			p := &fakeProber{err: ErrUnreachable}
			var warned error
			reachable, err := Gate(context.Background(), p, prompt.Static{KeyContinue: tt.answer}, "http://x", func(e error) { warned = e })

			assert.False(t, reachable)
			assert.ErrorIs(t, warned, ErrUnreachable)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrAborted)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, p.calls, "probe is a single attempt")
		})
	}
}

func TestGate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &recordingSource{}
	_, err := Gate(ctx, &fakeProber{err: ErrUnreachable}, src, "http://x", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, src.asked)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "await-key", AwaitKey.String())
	assert.Equal(t, "invalid", Invalid.String())
	assert.Equal(t, "state(42)", State(42).String())
}
