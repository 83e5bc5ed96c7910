// Package preflight collects the CompreFace credential and base URL, validates
// the URL, and checks that the verification endpoint answers before anything
// is built or started.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/majorcontext/facedeploy/internal/endpoint"
	"github.com/majorcontext/facedeploy/internal/log"
	"github.com/majorcontext/facedeploy/internal/prompt"
)

// Source keys.
const (
	KeyAPIKey   = "COMPRE_FACE_API_KEY"
	KeyBaseURL  = "COMPRE_FACE_URL"
	KeyContinue = "CONTINUE_UNREACHABLE"
)

var (
	// ErrMissingCredential is returned when the API key or URL is empty.
	ErrMissingCredential = errors.New("missing credential")
	// ErrUnreachable is returned when the endpoint does not answer.
	ErrUnreachable = errors.New("endpoint unreachable")
	// ErrAborted is returned when the operator declines to continue.
	ErrAborted = errors.New("aborted by operator")
)

// Questions are the interactive prompts for the keys Collect and Gate ask for.
var Questions = map[string]prompt.Question{
	KeyAPIKey:   {Label: "Enter your CompreFace API key", Secret: true},
	KeyBaseURL:  {Label: "Enter your CompreFace URL (e.g. http://localhost:8000)"},
	KeyContinue: {Label: "Continue anyway? [y/N]"},
}

// Target is a validated credential and endpoint pair.
type Target struct {
	APIKey   string
	Endpoint endpoint.Endpoint
}

// VerificationURL is the endpoint used for liveness probes and comparisons.
func (t Target) VerificationURL() string {
	return t.Endpoint.VerificationURL()
}

// State is a step of the collection state machine.
type State int

const (
	AwaitKey State = iota
	AwaitURL
	ValidateURL
	Valid
	Invalid
)

func (s State) String() string {
	switch s {
	case AwaitKey:
		return "await-key"
	case AwaitURL:
		return "await-url"
	case ValidateURL:
		return "validate-url"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Collect obtains the API key, then the base URL, from src and validates the
// URL. It performs no network access. The returned State is Valid on success
// and Invalid otherwise.
func Collect(src prompt.Source) (Target, State, error) {
	var (
		key, raw string
		err      error
	)

	state := AwaitKey
	for {
		switch state {
		case AwaitKey:
			key, err = src.Value(KeyAPIKey)
			if err != nil {
				return Target{}, Invalid, err
			}
			if key == "" {
				return Target{}, Invalid, fmt.Errorf("%w: CompreFace API key is required (set %s)", ErrMissingCredential, KeyAPIKey)
			}
			state = AwaitURL

		case AwaitURL:
			raw, err = src.Value(KeyBaseURL)
			if err != nil {
				return Target{}, Invalid, err
			}
			if raw == "" {
				return Target{}, Invalid, fmt.Errorf("%w: CompreFace URL is required (set %s)", ErrMissingCredential, KeyBaseURL)
			}
			state = ValidateURL

		case ValidateURL:
			ep, err := endpoint.Parse(raw)
			if err != nil {
				return Target{}, Invalid, err
			}
			log.Debug("credentials collected", "base_url", ep.String(), "host_kind", ep.Kind)
			return Target{APIKey: key, Endpoint: ep}, Valid, nil
		}
	}
}

// Prober checks whether a URL answers HTTP requests.
type Prober interface {
	Probe(ctx context.Context, url string) error
}

// HTTPProber issues a single GET bounded by Timeout. Any HTTP response,
// whatever its status, counts as reachable.
type HTTPProber struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPProber returns a prober with the given per-request timeout.
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{
			// Redirects are answers too; do not follow them off-host.
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		Timeout: timeout,
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, url, err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	log.Debug("probe answered", "url", url, "status", resp.StatusCode)
	return nil
}

// Gate probes url once. When the probe fails, warn is called with the probe
// error and the operator is asked via src whether to continue: "y" or "Y"
// continues, anything else returns ErrAborted. It reports whether the
// endpoint was reachable.
func Gate(ctx context.Context, p Prober, src prompt.Source, url string, warn func(error)) (bool, error) {
	perr := p.Probe(ctx, url)
	if perr == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	log.Warn("verification endpoint unreachable", "url", url, "error", perr)
	if warn != nil {
		warn(perr)
	}

	ok, err := prompt.Confirm(src, KeyContinue)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("%w: %s is unreachable", ErrAborted, url)
	}
	log.Info("continuing with unreachable endpoint", "url", url)
	return false, nil
}
