package schemas

// -- Output Contract --

// LocalStorageItem is one snapshotted localStorage entry.
type LocalStorageItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AuthResult is the sole contract with the calling process. user_info and
// request_headers mirror the shape of the configured extract_rules, with
// rule strings replaced by evaluated values; key casing is preserved
// exactly. currentUrl keeps its historical camelCase spelling.
type AuthResult struct {
	Success        bool               `json:"success"`
	Step           AuthStep           `json:"step"`
	Message        string             `json:"message"`
	UserInfo       map[string]string  `json:"user_info"`
	RequestHeaders map[string]string  `json:"request_headers"`
	Cookie         string             `json:"cookie"`
	LocalStorage   []LocalStorageItem `json:"local_storage"`
	CurrentURL     string             `json:"currentUrl"`
	Error          string             `json:"error,omitempty"`
}

// NewAuthResult returns a result with all collections allocated, so the
// serialized form always carries {} and [] rather than null. Callers on
// the other side of the pipe deserialize into non-optional shapes.
func NewAuthResult(step AuthStep, message string) *AuthResult {
	return &AuthResult{
		Step:           step,
		Message:        message,
		UserInfo:       map[string]string{},
		RequestHeaders: map[string]string{},
		LocalStorage:   []LocalStorageItem{},
	}
}

// Fail marks the result as a non-success terminal state and records the
// error detail. Partial data already attached is kept: incomplete
// credentials are still useful to the caller.
func (r *AuthResult) Fail(step AuthStep, message string, err error) *AuthResult {
	r.Success = false
	r.Step = step
	r.Message = message
	if err != nil {
		r.Error = err.Error()
	} else if r.Error == "" {
		r.Error = message
	}
	return r
}
