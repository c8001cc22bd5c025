// Package gateway performs safety actions against the authoritative server.
// It validates inputs locally, issues exactly one idempotent request per
// action (retried once on transport failure), and returns the authoritative
// updated trip so callers can adopt new state without a second fetch.
//
// No business rules live here beyond the action call contract: whether an
// action is currently legal for a trip is the lifecycle package's job.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/waymark-app/waymark/internal/clock"
	"github.com/waymark-app/waymark/internal/domain"
	"github.com/waymark-app/waymark/internal/session"
)

// retryDelay and retryBudget implement the bounded fixed-delay policy: at
// most one retry, after a 1-second delay, for a total of two attempts.
// Anything still failing after that is surfaced; a later reconciliation
// pass is the place to try again.
const (
	retryDelay  = 1 * time.Second
	retryBudget = 1
)

// Gateway issues safety actions over HTTP. The session is an explicit value
// (not an ambient singleton) so tests can supply fakes freely.
type Gateway struct {
	sess  session.Session
	http  *http.Client
	clock clock.Clock
	log   *slog.Logger
}

// New constructs a Gateway for the given session. httpClient and log may be
// nil, in which case a default client with a 10-second timeout and the
// default slog logger are used.
func New(sess session.Session, httpClient *http.Client, log *slog.Logger) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{sess: sess, http: httpClient, clock: clock.NewSystem(), log: log}
}

// SetClockForTest overrides the gateway's clock for deterministic expiry
// checks in tests. It should not be used in production code.
func (g *Gateway) SetClockForTest(c clock.Clock) {
	if c != nil {
		g.clock = c
	}
}

// envelope is the server's response shape. Every endpoint returns at least
// {ok}; action and fetch endpoints also return the updated trip.
type envelope struct {
	OK    bool                `json:"ok"`
	Error string              `json:"error,omitempty"`
	Trip  *domain.TripRecord  `json:"trip,omitempty"`
	Trips []domain.TripRecord `json:"trips,omitempty"`
}

// CheckIn performs a token check-in via the capability URL. The token is
// single-use and idempotent server-side: repeated use converges to one
// outcome, so a race between two execution contexts cannot double-fire.
func (g *Gateway) CheckIn(ctx context.Context, token string) (domain.TripRecord, error) {
	if token == "" {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.CheckIn: empty token: %w", domain.ErrInvalidInput)
	}
	env, err := g.do(ctx, http.MethodGet, "/t/"+token+"/checkin", nil, false)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.CheckIn: %w", err)
	}
	return tripFrom(env, "gateway.Gateway.CheckIn")
}

// CheckOut performs a token check-out via the capability URL, completing
// the trip.
func (g *Gateway) CheckOut(ctx context.Context, token string) (domain.TripRecord, error) {
	if token == "" {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.CheckOut: empty token: %w", domain.ErrInvalidInput)
	}
	env, err := g.do(ctx, http.MethodGet, "/t/"+token+"/checkout", nil, false)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.CheckOut: %w", err)
	}
	return tripFrom(env, "gateway.Gateway.CheckOut")
}

// CheckInPlan records a check-in on a trip through the authenticated API,
// used by the primary process where a full session is available.
func (g *Gateway) CheckInPlan(ctx context.Context, tripID int64) (domain.TripRecord, error) {
	if tripID <= 0 {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.CheckInPlan: invalid trip id %d: %w", tripID, domain.ErrInvalidInput)
	}
	env, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/checkin", tripID), nil, true)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.CheckInPlan: %w", err)
	}
	return tripFrom(env, "gateway.Gateway.CheckInPlan")
}

// Complete checks the trip out through the authenticated API, moving it to
// its terminal completed state.
func (g *Gateway) Complete(ctx context.Context, tripID int64) (domain.TripRecord, error) {
	if tripID <= 0 {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Complete: invalid trip id %d: %w", tripID, domain.ErrInvalidInput)
	}
	env, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/complete", tripID), nil, true)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Complete: %w", err)
	}
	return tripFrom(env, "gateway.Gateway.Complete")
}

// Start promotes a planned trip to active.
func (g *Gateway) Start(ctx context.Context, tripID int64) (domain.TripRecord, error) {
	if tripID <= 0 {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Start: invalid trip id %d: %w", tripID, domain.ErrInvalidInput)
	}
	env, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/start", tripID), nil, true)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Start: %w", err)
	}
	return tripFrom(env, "gateway.Gateway.Start")
}

// Extend shifts the trip's eta forward by minutes. The server may move the
// status back from overdue to active; the returned record is authoritative.
func (g *Gateway) Extend(ctx context.Context, tripID int64, minutes int) (domain.TripRecord, error) {
	if tripID <= 0 {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Extend: invalid trip id %d: %w", tripID, domain.ErrInvalidInput)
	}
	if minutes <= 0 {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Extend: minutes must be positive, got %d: %w", minutes, domain.ErrInvalidInput)
	}
	body := struct {
		Minutes int `json:"minutes"`
	}{Minutes: minutes}
	env, err := g.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/plans/%d/extend", tripID), body, true)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Extend: %w", err)
	}
	return tripFrom(env, "gateway.Gateway.Extend")
}

// Fetch returns the authoritative record for one trip. Reconciliation uses
// this; a fetch is naturally idempotent, so running it zero, one, or many
// times for the same mailbox intent is safe.
func (g *Gateway) Fetch(ctx context.Context, tripID int64) (domain.TripRecord, error) {
	if tripID <= 0 {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Fetch: invalid trip id %d: %w", tripID, domain.ErrInvalidInput)
	}
	env, err := g.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/plans/%d", tripID), nil, true)
	if err != nil {
		return domain.TripRecord{}, fmt.Errorf("gateway.Gateway.Fetch: %w", err)
	}
	return tripFrom(env, "gateway.Gateway.Fetch")
}

// Active returns all of the user's in-progress trips.
func (g *Gateway) Active(ctx context.Context) ([]domain.TripRecord, error) {
	env, err := g.do(ctx, http.MethodGet, "/api/v1/plans?scope=in_progress", nil, true)
	if err != nil {
		return nil, fmt.Errorf("gateway.Gateway.Active: %w", err)
	}
	return env.Trips, nil
}

// do issues one idempotent request with the bounded retry policy. Transport
// failures are retried exactly once after retryDelay; server rejections and
// undecodable bodies are surfaced immediately without retry.
func (g *Gateway) do(ctx context.Context, method, path string, body any, authed bool) (envelope, error) {
	if authed && g.sess.Expired(g.clock.Now()) {
		return envelope{}, domain.ErrSessionExpired
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return envelope{}, fmt.Errorf("encode body: %w", err)
		}
	}

	// One idempotency key per logical action, reused across the retry, so
	// the server can collapse a duplicate delivery into the first outcome.
	idemKey := ""
	if method == http.MethodPost {
		idemKey = uuid.NewString()
	}

	var env envelope
	attempt := 0
	backoff := retry.WithMaxRetries(retryBudget, retry.NewConstant(retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, g.sess.BaseURL+path, rd)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if authed && g.sess.Bearer != "" {
			req.Header.Set("Authorization", "Bearer "+g.sess.Bearer)
		}
		if idemKey != "" {
			req.Header.Set("Idempotency-Key", idemKey)
		}

		resp, err := g.http.Do(req)
		if err != nil {
			g.log.Debug("transport failure", "method", method, "path", path, "attempt", attempt, "error", err)
			return retry.RetryableError(fmt.Errorf("%w: %v", domain.ErrTransport, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			// Definitive rejection: do not retry, do not burn budget.
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("%w: status %d", domain.ErrServerRejected, resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrDecode, err)
		}
		if !env.OK {
			return fmt.Errorf("%w: %s", domain.ErrServerRejected, env.Error)
		}
		return nil
	})
	if err != nil {
		return envelope{}, err
	}
	return env, nil
}

// tripFrom extracts the updated trip from an action response. A success
// envelope without trip fields is treated as undecodable: the caller cannot
// adopt state it never received.
func tripFrom(env envelope, op string) (domain.TripRecord, error) {
	if env.Trip == nil {
		return domain.TripRecord{}, fmt.Errorf("%s: response missing trip: %w", op, domain.ErrDecode)
	}
	return *env.Trip, nil
}
