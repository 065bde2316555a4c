package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// valueOnlyContext is a context that is not cancellable and carries only values.
type valueOnlyContext struct{ context.Context }

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

const bodyFetchTimeout = 15 * time.Second

// pendingRequest tracks one in-flight request so the eventual body can be
// attached to the exchange that was committed when the request went out.
type pendingRequest struct {
	exch       *Exchange
	bodyWanted bool
}

// BodyFetcher retrieves a response body over CDP. Injectable for tests.
type BodyFetcher func(ctx context.Context, id network.RequestID) ([]byte, error)

// Harvester listens to the tab's network events and keeps the exchanges
// whose URL contains one of the watched path substrings. It also tracks
// every in-flight request, watched or not, so callers can wait for network
// quiescence.
type Harvester struct {
	logger  *zap.Logger
	watched []string

	// The context for the browser tab this harvester is attached to.
	sessionCtx context.Context
	// A separate context for the listener so it can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	mu        sync.Mutex
	order     []string
	exchanges map[string]*Exchange
	pending   map[network.RequestID]*pendingRequest
	inflight  map[network.RequestID]bool

	// Tracks body-fetch goroutines so Stop doesn't race a late write.
	bodyFetchWG sync.WaitGroup
	fetchBody   BodyFetcher

	started bool
}

// NewHarvester creates a harvester watching the given path substrings.
func NewHarvester(watched []string, logger *zap.Logger) *Harvester {
	h := &Harvester{
		logger:    logger.Named("harvester"),
		watched:   watched,
		exchanges: make(map[string]*Exchange),
		pending:   make(map[network.RequestID]*pendingRequest),
		inflight:  make(map[network.RequestID]bool),
	}
	h.fetchBody = h.cdpBodyFetch
	return h
}

// Attach registers the event listener on the tab context and enables the
// network domain. Must run before the first navigation so the initial
// exchanges are not missed.
func (h *Harvester) Attach(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.sessionCtx = ctx
	h.listenerCtx, h.cancelListener = context.WithCancel(ctx)
	h.started = true
	h.mu.Unlock()

	chromedp.ListenTarget(h.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			h.handleRequestWillBeSent(e)
		case *network.EventResponseReceived:
			h.handleResponseReceived(e)
		case *network.EventLoadingFinished:
			h.handleLoadingFinished(e)
		case *network.EventLoadingFailed:
			h.handleLoadingFailed(e)
		}
	})

	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		h.Stop(context.Background())
		return err
	}
	h.logger.Debug("Harvester attached and listening for network events.",
		zap.Strings("watched_paths", h.watched))
	return nil
}

// Stop halts event collection and waits for pending body fetches.
func (h *Harvester) Stop(ctx context.Context) {
	h.mu.Lock()
	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.started = false
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.bodyFetchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("Timed out waiting for pending body fetches.", zap.Error(ctx.Err()))
	}
}

// Snapshot returns the captured exchanges in insertion order. The copies
// are detached from the harvester's state.
func (h *Harvester) Snapshot() []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Exchange, 0, len(h.order))
	for _, url := range h.order {
		if exch, ok := h.exchanges[url]; ok {
			out = append(out, exch.clone())
		}
	}
	return out
}

// Clear drops every captured exchange. Used when the driver redirects
// after login so stale pre-login exchanges cannot leak into extraction.
// Bodies still in flight attach to orphaned records and stay invisible.
func (h *Harvester) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = nil
	h.exchanges = make(map[string]*Exchange)
	h.pending = make(map[network.RequestID]*pendingRequest)
	h.logger.Debug("Capture window cleared.")
}

// WaitQuiet polls until no request has been in flight for quietPeriod.
func (h *Harvester) WaitQuiet(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("WaitQuiet aborted.", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			h.mu.Lock()
			inflightCount := len(h.inflight)
			h.mu.Unlock()

			if inflightCount > 0 {
				lastActivity = time.Now()
				h.logger.Debug("Waiting for network to settle...",
					zap.Int("inflight_requests", inflightCount))
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

// -- Event Handlers --

func (h *Harvester) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.inflight[e.RequestID] = true

	// A redirect reuses the request ID; the previous leg will never get a
	// body, so drop its pending record and track the new URL.
	if e.RedirectResponse != nil {
		delete(h.pending, e.RequestID)
	}

	if !h.urlWatched(e.Request.URL) {
		return
	}

	exch := &Exchange{
		URL:            e.Request.URL,
		Method:         e.Request.Method,
		RequestHeaders: flattenHeaders(e.Request.Headers),
		CapturedAt:     time.Now(),
	}
	h.commitLocked(exch)
	h.pending[e.RequestID] = &pendingRequest{exch: exch}
}

func (h *Harvester) handleResponseReceived(e *network.EventResponseReceived) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.pending[e.RequestID]
	if !ok {
		return
	}
	p.exch.Status = e.Response.Status
	p.exch.MimeType = e.Response.MimeType
	p.bodyWanted = e.Response.Status >= 200 && e.Response.Status < 300 &&
		isJSONMime(e.Response.MimeType)
}

func (h *Harvester) handleLoadingFinished(e *network.EventLoadingFinished) {
	h.mu.Lock()
	delete(h.inflight, e.RequestID)

	p, ok := h.pending[e.RequestID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.pending, e.RequestID)

	if !p.bodyWanted {
		h.mu.Unlock()
		return
	}
	h.bodyFetchWG.Add(1)
	// Unlock before spawning the fetch so a slow CDP call can't hold the map.
	h.mu.Unlock()
	go h.fetchBodyFor(e.RequestID, p.exch)
}

func (h *Harvester) handleLoadingFailed(e *network.EventLoadingFailed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, e.RequestID)
	delete(h.pending, e.RequestID)
}

// -- Body Fetching --

// fetchBodyFor grabs the response body for a finished request. Runs in its
// own goroutine. Non-JSON and unfetchable bodies are silently skipped;
// extraction degrades to empty fields rather than failing the run.
func (h *Harvester) fetchBodyFor(id network.RequestID, exch *Exchange) {
	defer h.bodyFetchWG.Done()

	// Detached context: inherits the CDP target but not the session's
	// cancellation, so teardown doesn't abort an almost-done fetch.
	ctx, cancel := context.WithTimeout(valueOnlyContext{h.sessionCtx}, bodyFetchTimeout)
	defer cancel()

	body, err := h.fetchBody(ctx, id)
	if err != nil {
		if h.sessionCtx.Err() != nil {
			// Session already closed; expected during shutdown.
			return
		}
		h.logger.Debug("Response body fetch failed.",
			zap.String("url", exch.URL), zap.Error(err))
		return
	}
	if !gjson.ValidBytes(body) {
		h.logger.Debug("Response body is not valid JSON, skipping.",
			zap.String("url", exch.URL))
		return
	}

	h.mu.Lock()
	exch.ResponseBody = body
	h.mu.Unlock()
	h.logger.Debug("Captured JSON response body.",
		zap.String("url", exch.URL), zap.Int("bytes", len(body)))
}

func (h *Harvester) cdpBodyFetch(ctx context.Context, id network.RequestID) ([]byte, error) {
	c := chromedp.FromContext(h.sessionCtx)
	if c == nil || c.Target == nil {
		return nil, context.Canceled
	}
	return network.GetResponseBody(id).Do(cdp.WithExecutor(ctx, c.Target))
}

// -- Internals --

// commitLocked upserts an exchange under its URL. Last write wins; the URL
// keeps its original position in the insertion order.
func (h *Harvester) commitLocked(exch *Exchange) {
	if _, seen := h.exchanges[exch.URL]; !seen {
		h.order = append(h.order, exch.URL)
	}
	h.exchanges[exch.URL] = exch
}

func (h *Harvester) urlWatched(url string) bool {
	for _, p := range h.watched {
		if p != "" && strings.Contains(url, p) {
			return true
		}
	}
	return false
}

func isJSONMime(mimeType string) bool {
	return strings.Contains(strings.ToLower(mimeType), "json")
}

// flattenHeaders converts CDP headers to a plain string map. CDP can join
// multi-value headers with newlines; only the first line is kept.
func flattenHeaders(headers network.Headers) map[string]string {
	out := make(map[string]string, len(headers))
	for name, value := range headers {
		if valStr, ok := value.(string); ok {
			out[name] = strings.Split(valStr, "\n")[0]
		}
	}
	return out
}
