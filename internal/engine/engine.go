// Package engine runs one credential extraction end to end: launch a
// browser, walk the operator through login, detect completion, then
// evaluate the configured extraction rules against what was captured.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Iron-Yzg/auto-matrix-manager/api/schemas"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/capture"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/config"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/detect"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/observability"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/result"
	"github.com/Iron-Yzg/auto-matrix-manager/internal/rules"
)

// closeTimeout bounds browser teardown so a wedged tab cannot hold the
// process open once the result is already decided.
const closeTimeout = 10 * time.Second

// Driver is the slice of the browser session the engine drives. The
// concrete implementation is *browser.Session.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Snapshot() []capture.Exchange
	ClearCaptures()
	WaitQuiet(ctx context.Context, window time.Duration) error
	Cookies(ctx context.Context) (string, error)
	LocalStorage(ctx context.Context, keys []string) []schemas.LocalStorageItem
	ShowNotice(ctx context.Context, platformName, status string)
	UpdateNotice(ctx context.Context, status string)
	ClearNotice(ctx context.Context)
	Close(ctx context.Context) error
}

// Launcher opens a browser session already capturing the given API paths.
type Launcher func(ctx context.Context, watched []string) (Driver, error)

// Engine drives one extraction run for one platform config.
type Engine struct {
	cfg    *schemas.ExtractorConfig
	timing config.ExtractionConfig
	launch Launcher
	logger *zap.Logger
}

func New(cfg *schemas.ExtractorConfig, timing config.ExtractionConfig, launch Launcher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, timing: timing, launch: launch, logger: logger.Named("engine")}
}

// Run executes the extraction and always returns a result. Failures are
// reported inside it, never as a Go error, so the caller emits the same
// envelope either way.
func (e *Engine) Run(ctx context.Context) *schemas.AuthResult {
	res := schemas.NewAuthResult(schemas.StepIdle, "")

	det, err := detect.New(e.cfg, e.logger)
	if err != nil {
		e.logger.Error("login detection config rejected", zap.Error(err))
		return res.Fail(schemas.StepError, "登录检测配置无效", err)
	}

	e.step(ctx, nil, res, schemas.StepLaunching)
	drv, err := e.launch(ctx, rules.WatchedPaths(e.cfg))
	if err != nil {
		e.logger.Error("browser launch failed", zap.Error(err))
		return res.Fail(schemas.StepError, "浏览器启动失败", err)
	}

	closed := false
	closeDriver := func() {
		if closed {
			return
		}
		closed = true
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := drv.Close(cctx); err != nil {
			e.logger.Debug("browser close", zap.Error(err))
		}
	}
	defer closeDriver()

	e.step(ctx, drv, res, schemas.StepOpeningLogin)
	if err := drv.Navigate(ctx, e.cfg.LoginURL); err != nil {
		e.logger.Error("login page failed to open", zap.String("url", e.cfg.LoginURL), zap.Error(err))
		return res.Fail(schemas.StepError, "打开登录页失败", err)
	}
	drv.ShowNotice(ctx, e.cfg.PlatformName, schemas.StepWaitingLogin.Progress())

	e.step(ctx, drv, res, schemas.StepWaitingLogin)
	probe := func(pctx context.Context) (string, []capture.Exchange, error) {
		current, err := drv.CurrentURL(pctx)
		if err != nil {
			return "", nil, err
		}
		return current, drv.Snapshot(), nil
	}
	waitOpts := detect.Options{Timeout: e.timing.LoginTimeout, Interval: e.timing.PollInterval}
	if err := det.Wait(ctx, waitOpts, probe); err != nil {
		if errors.Is(err, detect.ErrLoginTimeout) {
			e.logger.Warn("login wait timed out", zap.Duration("timeout", e.timing.LoginTimeout))
			return res.Fail(schemas.StepFailed, "等待登录超时", err)
		}
		e.logger.Warn("login wait aborted", zap.Error(err))
		return res.Fail(schemas.StepFailed, "授权已取消", err)
	}

	e.step(ctx, drv, res, schemas.StepLoginDetected)

	if target := e.cfg.RedirectURL; target != "" {
		current, err := drv.CurrentURL(ctx)
		if err != nil {
			e.logger.Debug("current url unavailable before redirect", zap.Error(err))
		}
		if !strings.HasPrefix(current, target) {
			e.step(ctx, drv, res, schemas.StepNavigating)
			// Drop login-flow traffic so the rules only see what the
			// destination page produces.
			drv.ClearCaptures()
			if err := drv.Navigate(ctx, target); err != nil {
				e.logger.Error("redirect failed", zap.String("url", target), zap.Error(err))
				return res.Fail(schemas.StepError, "跳转页面失败", err)
			}
			drv.ShowNotice(ctx, e.cfg.PlatformName, schemas.StepExtracting.Progress())
		}
	}

	if err := e.settle(ctx); err != nil {
		e.logger.Warn("settle wait aborted", zap.Error(err))
		return res.Fail(schemas.StepFailed, "授权已取消", err)
	}

	e.step(ctx, drv, res, schemas.StepExtracting)
	if err := drv.WaitQuiet(ctx, e.timing.QuietWindow); err != nil {
		e.logger.Debug("network did not go quiet", zap.Error(err))
	}

	in := result.Inputs{
		Exchanges: drv.Snapshot(),
		Storage:   drv.LocalStorage(ctx, e.cfg.ExtractRules.LocalStorage),
	}
	if jar, err := drv.Cookies(ctx); err != nil {
		e.logger.Debug("cookie jar unavailable", zap.Error(err))
	} else {
		in.CookieJar = jar
	}
	if current, err := drv.CurrentURL(ctx); err != nil {
		e.logger.Debug("current url unavailable", zap.Error(err))
	} else {
		in.CurrentURL = current
	}

	result.NewBuilder(e.cfg, e.logger).Build(res, in)

	drv.ClearNotice(ctx)
	e.step(ctx, drv, res, schemas.StepClosing)
	closeDriver()

	if !result.Extracted(res) {
		e.logger.Warn("nothing extracted",
			zap.Int("exchanges", len(in.Exchanges)),
			zap.String("current_url", in.CurrentURL))
		return res.Fail(schemas.StepFailed, "登录成功但未提取到凭证", nil)
	}

	res.Success = true
	res.Step = schemas.StepCompleted
	res.Message = schemas.StepCompleted.Progress()
	observability.Progress(res.Message)
	e.logger.Info("extraction completed",
		zap.String("platform", e.cfg.PlatformID),
		zap.Int("user_info_fields", len(res.UserInfo)),
		zap.Bool("cookie", res.Cookie != ""))
	return res
}

// settle gives the post-login page a beat to fire its API calls before
// the quiet-window check starts.
func (e *Engine) settle(ctx context.Context) error {
	if e.timing.SettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(e.timing.SettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// step advances the run everywhere at once: the result envelope, the
// [Progress] stream, the structured log, and the on-page notice.
func (e *Engine) step(ctx context.Context, drv Driver, res *schemas.AuthResult, s schemas.AuthStep) {
	res.Step = s
	res.Message = s.Progress()
	observability.Progress(s.Progress())
	e.logger.Info("step", zap.String("step", s.String()))
	if drv != nil {
		drv.UpdateNotice(ctx, s.Progress())
	}
}
