package schemas

// AuthStep tracks the progress of one extraction run. Only the terminal
// three values ever appear in an AuthResult; the rest drive progress
// logging and the on-page notice.
type AuthStep string

const (
	StepIdle          AuthStep = "idle"
	StepLaunching     AuthStep = "launching"
	StepOpeningLogin  AuthStep = "opening_login"
	StepWaitingLogin  AuthStep = "waiting_login"
	StepLoginDetected AuthStep = "login_detected"
	StepNavigating    AuthStep = "navigating"
	StepExtracting    AuthStep = "extracting"
	StepClosing       AuthStep = "closing"
	StepCompleted     AuthStep = "completed"
	StepFailed        AuthStep = "failed"
	StepError         AuthStep = "error"
)

func (s AuthStep) String() string { return string(s) }

// Terminal reports whether the step ends a run.
func (s AuthStep) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepError
}

// Progress returns the operator-facing status line shown while the step is
// active. These strings match the desktop product's UI language.
func (s AuthStep) Progress() string {
	switch s {
	case StepLaunching:
		return "正在启动浏览器..."
	case StepOpeningLogin:
		return "正在打开登录页..."
	case StepWaitingLogin:
		return "等待扫码登录..."
	case StepLoginDetected:
		return "登录成功，正在提取凭证..."
	case StepNavigating:
		return "正在跳转页面..."
	case StepExtracting:
		return "正在提取凭证..."
	case StepClosing:
		return "提取完成，正在关闭..."
	case StepCompleted:
		return "授权完成"
	case StepFailed, StepError:
		return "授权失败"
	}
	return ""
}
