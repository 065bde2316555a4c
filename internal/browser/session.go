package browser

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/capture"
)

const (
	navigationTimeout = 45 * time.Second
	queryTimeout      = 10 * time.Second
	scriptTimeout     = 5 * time.Second
)

// Session is one browser tab plus the traffic capture attached to it. All
// methods are safe to call until Close; afterwards they fail with the
// context error.
type Session struct {
	id        string
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	harvester *capture.Harvester
}

// ID returns the session's identifier used in logs.
func (s *Session) ID() string { return s.id }

// run executes chromedp actions against the tab, honoring both the
// caller's context and a per-call timeout without reparenting the
// chromedp context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate opens a URL and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	if err := s.run(ctx, navigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// CurrentURL reports the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, queryTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read current url: %w", err)
	}
	return loc, nil
}

// Cookies returns the page's cookie jar joined as "name=value; name=value",
// the shape downstream HTTP clients expect in a Cookie header.
func (s *Session) Cookies(ctx context.Context) (string, error) {
	var joined string
	err := s.run(ctx, queryTimeout, chromedp.ActionFunc(func(cctx context.Context) error {
		cookies, err := network.GetCookies().Do(cctx)
		if err != nil {
			return err
		}
		parts := make([]string, 0, len(cookies))
		for _, c := range cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		joined = strings.Join(parts, "; ")
		return nil
	}))
	if err != nil {
		return "", fmt.Errorf("read cookies: %w", err)
	}
	return joined, nil
}

// LocalStorage reads the configured keys from the page in order. Keys the
// page never set are omitted; read failures degrade to omission too.
func (s *Session) LocalStorage(ctx context.Context, keys []string) []schemas.LocalStorageItem {
	items := make([]schemas.LocalStorageItem, 0, len(keys))
	for _, key := range keys {
		var value *string
		script := "window.localStorage.getItem(" + strconv.Quote(key) + ")"
		if err := s.run(ctx, scriptTimeout, chromedp.Evaluate(script, &value)); err != nil {
			s.logger.Debug("localStorage read failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if value == nil {
			continue
		}
		items = append(items, schemas.LocalStorageItem{Key: key, Value: *value})
	}
	return items
}

// Snapshot returns the captured exchanges in insertion order.
func (s *Session) Snapshot() []capture.Exchange { return s.harvester.Snapshot() }

// ClearCaptures drops all captured exchanges; used when redirecting after
// login so pre-login traffic cannot leak into extraction.
func (s *Session) ClearCaptures() { s.harvester.Clear() }

// WaitQuiet blocks until no watched request has been in flight for the
// given window.
func (s *Session) WaitQuiet(ctx context.Context, window time.Duration) error {
	return s.harvester.WaitQuiet(ctx, window)
}

// Close tears the tab down after draining in-flight body fetches. Always
// safe to call once, on every exit path.
func (s *Session) Close(ctx context.Context) error {
	s.harvester.Stop(ctx)

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close session: %w", err)
	}
	s.logger.Debug("Session closed", zap.String("session_id", s.id))
	return nil
}
