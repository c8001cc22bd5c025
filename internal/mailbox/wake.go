package mailbox

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Waker prompts the primary process to reconcile promptly. The signal is
// advisory only: correctness never depends on it being received, only on
// the primary process eventually polling or being foregrounded.
type Waker interface {
	Wake(ctx context.Context)
}

// HTTPWaker delivers the wake signal as a payload-free POST to the primary
// process's localhost wake endpoint.
type HTTPWaker struct {
	url  string
	http *http.Client
	log  *slog.Logger
}

// NewHTTPWaker builds a waker for the daemon listening at addr
// (host:port). The short timeout keeps a dead daemon from eating into the
// action context's execution budget.
func NewHTTPWaker(addr string, log *slog.Logger) *HTTPWaker {
	if log == nil {
		log = slog.Default()
	}
	return &HTTPWaker{
		url:  "http://" + addr + "/wake",
		http: &http.Client{Timeout: 2 * time.Second},
		log:  log,
	}
}

// Wake fires and forgets. Failures are logged and swallowed: the mailbox
// entry written before this call is the durable part of the handoff.
func (w *HTTPWaker) Wake(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, nil)
	if err != nil {
		w.log.Debug("wake signal build failed", "error", err)
		return
	}
	resp, err := w.http.Do(req)
	if err != nil {
		w.log.Debug("wake signal not delivered", "url", w.url, "error", err)
		return
	}
	resp.Body.Close()
}

var _ Waker = (*HTTPWaker)(nil)
