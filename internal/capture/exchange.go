package capture

import (
	"maps"
	"strings"
	"time"
)

// Exchange is one captured request/response pair, keyed by its full URL.
// Request headers are recorded as soon as the request goes out; status,
// MIME type and the raw JSON body arrive later, if the response qualifies.
type Exchange struct {
	URL            string
	Method         string
	Status         int64
	MimeType       string
	RequestHeaders map[string]string
	ResponseBody   []byte
	CapturedAt     time.Time
}

// RequestHeader looks up a request header by name, case-insensitively.
func (e *Exchange) RequestHeader(name string) (string, bool) {
	for k, v := range e.RequestHeaders {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// HasBody reports whether a JSON response body was captured.
func (e *Exchange) HasBody() bool { return len(e.ResponseBody) > 0 }

func (e *Exchange) clone() Exchange {
	out := *e
	out.RequestHeaders = maps.Clone(e.RequestHeaders)
	if e.ResponseBody != nil {
		out.ResponseBody = append([]byte(nil), e.ResponseBody...)
	}
	return out
}
