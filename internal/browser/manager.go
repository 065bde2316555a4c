// Package browser owns the Chrome lifecycle for an extraction run: the
// exec allocator that starts the process, and the session (one tab) the
// engine drives through the login flow.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Iron-Yzg/auto-matrix-manager/internal/capture"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/config"
)

// ErrLaunch marks browser startup failures. Runs report these as a failure
// result; only config problems abort the process before a result exists.
var ErrLaunch = errors.New("browser launch failed")

// Manager owns the browser executable. One manager backs one extraction
// run; sessions are tabs created from its allocator.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
}

// NewManager prepares the exec allocator. The browser process itself
// starts lazily with the first session.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) *Manager {
	m := &Manager{logger: logger.Named("browser_manager"), cfg: cfg}
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, m.allocatorOptions()...)

	m.logger.Info("Browser manager initialized",
		zap.Bool("headless", cfg.Headless),
		zap.String("exec_path", cfg.ExecPath),
	)
	return m
}

// allocatorOptions configures the flags for the browser executable.
func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if !m.cfg.Headless {
		// The defaults enable headless mode; the login flow needs a
		// visible window so the operator can scan the QR code.
		opts = append(opts, chromedp.Flag("headless", false))
	}

	opts = append(opts,
		// Hide the automation banner and the navigator.webdriver tell.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		// Stability flags.
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
	)

	width, height := m.cfg.WindowWidth, m.cfg.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1280, 800
	}
	opts = append(opts, chromedp.WindowSize(width, height))

	if m.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(m.cfg.UserAgent))
	}
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	if m.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(m.cfg.UserDataDir))
	}

	// Operator-supplied extra flags, "name" or "name=value".
	for _, arg := range m.cfg.Args {
		name, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if found {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// NewSession opens a fresh tab with capture listeners attached before any
// navigation, so the first request of the login flow is already observed.
// The session dies with ctx.
func (m *Manager) NewSession(ctx context.Context, watched []string) (*Session, error) {
	tabCtx, cancel := chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf),
	)

	// Tie the tab to the run's lifetime.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-tabCtx.Done():
		}
	}()

	harvester := capture.NewHarvester(watched, m.logger)
	if err := harvester.Attach(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	s := &Session{
		id:        uuid.New().String(),
		logger:    m.logger.Named("session"),
		ctx:       tabCtx,
		cancel:    cancel,
		harvester: harvester,
	}
	m.logger.Info("Browser session ready",
		zap.String("session_id", s.id),
		zap.Int("watched_paths", len(watched)))
	return s, nil
}

// Shutdown terminates the browser process. Safe to call after sessions are
// closed and safe to call more than once.
func (m *Manager) Shutdown() {
	if m.allocatorCancel != nil {
		m.allocatorCancel()
		m.logger.Info("Browser manager shut down")
	}
}
