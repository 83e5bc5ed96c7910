// Package health waits for a freshly started service to answer HTTP requests.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/majorcontext/facedeploy/internal/log"
)

// ErrHealthCheckTimeout is returned when the budget runs out before the
// service answers with a 2xx or 3xx status.
var ErrHealthCheckTimeout = errors.New("health check timed out")

// Options controls polling. Zero values fall back to the defaults below.
type Options struct {
	InitialInterval time.Duration // default 1s
	MaxInterval     time.Duration // default 8s
	Budget          time.Duration // total time allowed, default 60s
	RequestTimeout  time.Duration // per attempt, default 5s
	Client          *http.Client

	// OnRetry, if set, is called after each failed attempt with the error and
	// the delay before the next one.
	OnRetry func(err error, next time.Duration)
}

// Result describes a successful poll.
type Result struct {
	Attempts int
	Elapsed  time.Duration
	Status   int
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.InitialInterval <= 0 {
		out.InitialInterval = time.Second
	}
	if out.MaxInterval < out.InitialInterval {
		out.MaxInterval = 8 * out.InitialInterval
	}
	if out.Budget <= 0 {
		out.Budget = 60 * time.Second
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = 5 * time.Second
	}
	if out.Client == nil {
		out.Client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	return out
}

// Poll issues GET requests to url with exponential backoff until one returns
// a 2xx or 3xx status, the budget is spent, or ctx is done.
func Poll(ctx context.Context, url string, opts Options) (Result, error) {
	o := opts.withDefaults()
	start := time.Now()

	budgetCtx, cancel := context.WithTimeout(ctx, o.Budget)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = o.InitialInterval
	eb.MaxInterval = o.MaxInterval
	eb.MaxElapsedTime = o.Budget
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.1

	var res Result
	attempt := func() error {
		res.Attempts++
		status, err := check(budgetCtx, o.Client, url, o.RequestTimeout)
		if err != nil {
			return err
		}
		res.Status = status
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Debug("health check failed, retrying", "url", url, "attempt", res.Attempts, "retry_in", next, "error", err)
		if o.OnRetry != nil {
			o.OnRetry(err, next)
		}
	}

	err := backoff.RetryNotify(attempt, backoff.WithContext(eb, budgetCtx), notify)
	res.Elapsed = time.Since(start)
	if err == nil {
		log.Debug("health check passed", "url", url, "attempts", res.Attempts, "elapsed", res.Elapsed)
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, fmt.Errorf("%w: %s did not become healthy within %s after %d attempts: %v",
		ErrHealthCheckTimeout, url, o.Budget, res.Attempts, err)
}

func check(ctx context.Context, client *http.Client, url string, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
