package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type validateRequest struct {
	Moves    []string `json:"moves"`
	Notation string   `json:"notation"`
}

type terminalRequest struct {
	Moves []string `json:"moves"`
}

type terminalResponse struct {
	Status Terminal `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

const codeGameOver = "game_over"

// Remote consults a rules daemon over HTTP.
type Remote struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type RemoteOption func(*Remote)

func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

func WithRetry(max int) RemoteOption {
	return func(r *Remote) { r.retryMax = max }
}

// WithDial replaces the TCP dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) RemoteOption {
	return func(r *Remote) { r.http.Dial = dial }
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 2 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remote) Validate(ctx context.Context, pos Position, notation string) (Move, error) {
	var mv Move
	err := r.doJSON(ctx, "/validate", validateRequest{Moves: nonNil(pos.Moves), Notation: notation}, &mv)
	if err != nil {
		return Move{}, err
	}
	return mv, nil
}

func (r *Remote) TerminalStatus(ctx context.Context, pos Position) (Terminal, error) {
	var resp terminalResponse
	if err := r.doJSON(ctx, "/terminal", terminalRequest{Moves: nonNil(pos.Moves)}, &resp); err != nil {
		return None, err
	}
	switch resp.Status {
	case None, Checkmate, Stalemate, Draw:
		return resp.Status, nil
	default:
		return None, fmt.Errorf("%w: unknown terminal status %q", ErrUnavailable, resp.Status)
	}
}

// doJSON posts in and decodes a 2xx body into out. Transport errors and 5xx
// responses are retried; 422 maps to ErrIllegal.
func (r *Remote) doJSON(ctx context.Context, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(r.baseURL + path)
	req.Header.SetContentType("application/json")
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := r.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		err := r.http.DoDeadline(req, resp, r.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
		} else {
			status := resp.StatusCode()
			switch {
			case status >= 200 && status < 300:
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
				}
				return nil
			case status == fasthttp.StatusUnprocessableEntity:
				return illegalFrom(resp.Body())
			case !shouldRetryStatus(status):
				return fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, status, truncate(string(resp.Body()), 256))
			}
			lastErr = fmt.Errorf("%w: status=%d", ErrUnavailable, status)
		}
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (r *Remote) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(r.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 50 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func illegalFrom(body []byte) error {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Code == codeGameOver {
		return ErrGameOver
	}
	return fmt.Errorf("%w: %s", ErrIllegal, errorText(body))
}

func errorText(body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return truncate(string(body), 256)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nonNil(moves []string) []string {
	if moves == nil {
		return []string{}
	}
	return moves
}
