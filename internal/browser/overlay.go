package browser

import (
	"context"
	"strconv"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// The on-page notice tells the human operator what to do while the engine
// waits. It is a UI nicety: every failure here is logged and swallowed,
// extraction never depends on it.

const (
	overlayID = "amm-tip-overlay"
	statusID  = "amm-login-status"
)

func noticeHTML(instruction, status string) string {
	return `
<div style="
    position: fixed !important;
    top: 20px !important;
    left: 50% !important;
    transform: translateX(-50%) !important;
    background: linear-gradient(135deg, #ff9500 0%, #ff6b00 100%) !important;
    color: white !important;
    padding: 20px 28px !important;
    border-radius: 12px !important;
    font-size: 15px !important;
    font-weight: 600 !important;
    box-shadow: 0 10px 40px rgba(255, 149, 0, 0.4) !important;
    z-index: 99999999 !important;
    display: flex !important;
    flex-direction: column !important;
    align-items: center !important;
    gap: 12px !important;
    max-width: 420px !important;
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif !important;
">
    <div style="display: flex !important; align-items: center !important; gap: 10px !important;">
        <svg width="28" height="28" viewBox="0 0 24 24" fill="none" stroke="currentColor" stroke-width="2.5" style="display: block !important;">
            <path d="M12 22s8-4 8-10V5l-8-3-8 3v7c0 6 8 10 8 10z" fill="none" stroke="currentColor"></path>
            <path d="M12 8v4" fill="none" stroke="currentColor"></path>
            <path d="M12 16h.01" fill="none" stroke="currentColor"></path>
        </svg>
        <span style="display: block !important;">授权助手正在运行</span>
    </div>
    <span style="text-align: center !important; opacity: 0.95 !important; font-weight: 400 !important; line-height: 1.5 !important; display: block !important;">
        ` + instruction + `<br>登录成功后页面将自动跳转
    </span>
    <div id="` + statusID + `" style="
        font-size: 12px !important;
        padding: 6px 12px !important;
        background: rgba(255,255,255,0.2) !important;
        border-radius: 20px !important;
        font-weight: 400 !important;
        display: block !important;
    ">` + status + `</div>
</div>
<style>
    @keyframes amm-slide-down {
        from { opacity: 0 !important; transform: translateX(-50%) translateY(-30px) !important; }
        to { opacity: 1 !important; transform: translateX(-50%) translateY(0) !important; }
    }
    @keyframes amm-pulse {
        0%, 100% { opacity: 1 !important; }
        50% { opacity: 0.7 !important; }
    }
    #` + statusID + ` {
        animation: amm-pulse 2s infinite !important;
    }
    #` + overlayID + ` {
        animation: amm-slide-down 0.4s ease-out !important;
    }
</style>
`
}

// noticeStrings picks the operator-facing instruction and status line.
func noticeStrings(platformName, status string) (string, string) {
	instruction := "请在打开的页面中完成登录"
	if platformName != "" {
		instruction = "请使用" + platformName + "App扫码登录"
	}
	if status == "" {
		status = "等待扫码登录..."
	}
	return instruction, status
}

// ShowNotice injects the instruction overlay at the top of the page. Call
// again after navigations; the DOM does not survive them.
func (s *Session) ShowNotice(ctx context.Context, platformName, status string) {
	instruction, status := noticeStrings(platformName, status)

	script := `(() => {
    const existing = document.getElementById('` + overlayID + `');
    if (existing) { existing.remove(); }
    if (!document.body) { return false; }
    const tip = document.createElement('div');
    tip.id = '` + overlayID + `';
    tip.innerHTML = ` + strconv.Quote(noticeHTML(instruction, status)) + `;
    document.body.insertBefore(tip, document.body.firstChild);
    return document.getElementById('` + overlayID + `') !== null;
})()`

	var ok bool
	if err := s.run(ctx, scriptTimeout, chromedp.Evaluate(script, &ok)); err != nil {
		s.logger.Debug("notice injection failed", zap.Error(err))
		return
	}
	if !ok {
		s.logger.Debug("notice injection skipped, body not ready")
	}
}

// UpdateNotice rewrites the status line inside an already-shown notice.
func (s *Session) UpdateNotice(ctx context.Context, status string) {
	script := `(() => {
    const el = document.getElementById('` + statusID + `');
    if (!el) { return false; }
    el.textContent = ` + strconv.Quote(status) + `;
    return true;
})()`

	var ok bool
	if err := s.run(ctx, scriptTimeout, chromedp.Evaluate(script, &ok)); err != nil {
		s.logger.Debug("notice update failed", zap.Error(err))
	}
}

// ClearNotice removes the overlay once extraction is done, so the page is
// back to normal for however long teardown takes.
func (s *Session) ClearNotice(ctx context.Context) {
	script := `(() => {
    const el = document.getElementById('` + overlayID + `');
    if (el) { el.remove(); return true; }
    return false;
})()`

	var ok bool
	if err := s.run(ctx, scriptTimeout, chromedp.Evaluate(script, &ok)); err != nil {
		s.logger.Debug("notice removal failed", zap.Error(err))
	}
}
