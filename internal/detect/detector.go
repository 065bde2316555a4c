// Package detect decides when an interactive login has completed, either
// by matching the current page URL against a glob pattern or by matching a
// field extracted from a captured API response against an expected value.
package detect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/capture"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/rules"
)

// ErrLoginTimeout reports that the wait loop exceeded its bound before a
// login was detected. Distinct from extraction errors so callers can word
// the failure correctly.
var ErrLoginTimeout = errors.New("login wait timed out")

// DefaultPollInterval is how often the wait loop re-checks the session.
const DefaultPollInterval = time.Second

// Probe samples the live session at one polling instant: the current page
// URL and the captured exchanges so far. Probe errors are absorbed by the
// wait loop; a page mid-navigation is expected to fail transiently.
type Probe func(ctx context.Context) (currentURL string, snapshot []capture.Exchange, err error)

// Options bound a Wait loop. A zero Timeout waits forever; a zero Interval
// uses DefaultPollInterval.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Detector is the compiled login-success strategy for one run. It is
// immutable after New and safe to call from any goroutine.
type Detector struct {
	mode     schemas.LoginSuccessMode
	pattern  *regexp.Regexp
	rule     rules.Rule
	operator schemas.MatchOperator
	expected string
	logger   *zap.Logger
}

// New compiles the detection strategy from the run config. An absent mode
// defaults to url_match. Strategy parameters that cannot possibly detect
// anything (empty or uncompilable pattern, a non-api rule, an unknown
// operator) are rejected here rather than looping forever at runtime.
func New(cfg *schemas.ExtractorConfig, logger *zap.Logger) (*Detector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Detector{mode: cfg.LoginSuccessMode, logger: logger}
	if d.mode == "" {
		d.mode = schemas.ModeURLMatch
	}

	switch d.mode {
	case schemas.ModeURLMatch:
		if cfg.LoginSuccessPattern == "" {
			return nil, errors.New("login_success_pattern is required for url_match")
		}
		re, err := rules.CompileGlob(cfg.LoginSuccessPattern)
		if err != nil {
			return nil, fmt.Errorf("compile login_success_pattern %q: %w", cfg.LoginSuccessPattern, err)
		}
		d.pattern = re

	case schemas.ModeAPIMatch:
		rule := rules.Parse(cfg.LoginSuccessAPIRule)
		if rule.Kind != rules.KindAPI {
			return nil, fmt.Errorf("login_success_api_rule %q is not an api rule", cfg.LoginSuccessAPIRule)
		}
		if !cfg.LoginSuccessAPIOperator.Known() {
			return nil, fmt.Errorf("unknown login_success_api_operator %q", cfg.LoginSuccessAPIOperator)
		}
		d.rule = rule
		d.operator = cfg.LoginSuccessAPIOperator
		d.expected = cfg.LoginSuccessAPIValue

	default:
		return nil, fmt.Errorf("unknown login_success_mode %q", cfg.LoginSuccessMode)
	}
	return d, nil
}

// Mode reports the compiled detection mode.
func (d *Detector) Mode() schemas.LoginSuccessMode { return d.mode }

// WatchedPath returns the api-path substring the detector inspects, or ""
// in url_match mode.
func (d *Detector) WatchedPath() string { return d.rule.APIPath }

// Check reports whether the sampled session state satisfies the strategy.
// It is pure: no side effects beyond debug logging, so the wait loop and
// tests can call it freely.
func (d *Detector) Check(currentURL string, snapshot []capture.Exchange) bool {
	switch d.mode {
	case schemas.ModeURLMatch:
		if currentURL != "" && d.pattern.MatchString(currentURL) {
			d.logger.Debug("login detected by url match", zap.String("url", currentURL))
			return true
		}

	case schemas.ModeAPIMatch:
		// Each body-bearing exchange on the watched path is evaluated on
		// its own: an early non-matching response (login still pending)
		// must not end detection while a later one can still match.
		for i := range snapshot {
			exch := &snapshot[i]
			if !strings.Contains(exch.URL, d.rule.APIPath) || !exch.HasBody() {
				continue
			}
			actual := rules.EvaluateRule(d.rule, snapshot[i:i+1])
			if d.operator.Match(actual, d.expected) {
				d.logger.Debug("login detected by api match",
					zap.String("url", exch.URL),
					zap.String("actual", actual),
					zap.String("operator", string(d.operator)))
				return true
			}
		}
	}
	return false
}

// Wait polls the probe until Check passes, the context is cancelled, or
// the timeout elapses. Capture continues independently in the background;
// this loop only samples it. Returns nil on detection, ErrLoginTimeout on
// expiry, or the context error on cancellation.
func (d *Detector) Wait(ctx context.Context, opts Options, probe Probe) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	// Timeout 0 is the explicit "wait forever" sentinel: a nil channel
	// never fires.
	var expired <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		url, snapshot, err := probe(ctx)
		if err != nil {
			d.logger.Debug("login probe failed, will retry", zap.Error(err))
		} else if d.Check(url, snapshot) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-expired:
			return fmt.Errorf("%w after %s", ErrLoginTimeout, opts.Timeout)
		case <-ticker.C:
		}
	}
}
