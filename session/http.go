package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// FloatT is the payload of a float property, {"f64": x}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is the payload of an int property, {"int": x}
type IntT struct {
	Int int `json:"int"`
}

// StrT is the payload of a string property, {"str": x}
type StrT struct {
	Str string `json:"str"`
}

// BoolT is the payload of a bool property, {"bool": x}
type BoolT struct {
	Bool bool `json:"bool"`
}

// Route is the URL path of a property on a device server
func Route(p Property) string {
	return "/" + p.Device + "/" + p.Name
}

// HTTP is a Session against a device server.  GET reads a property, POST
// writes it.  Commands are serialized and paced; a request that fails in
// transport is retried with exponential backoff, one the server rejects is
// not.
type HTTP struct {
	mu      sync.Mutex
	client  *resty.Client
	limiter *rate.Limiter

	// MaxElapsed bounds the retries of one command
	MaxElapsed time.Duration
}

// NewHTTP returns a session talking to the server at addr, e.g.
// "http://localhost:8000".  perSecond limits the command rate; zero or less
// means unlimited.
func NewHTTP(addr string, perSecond float64, timeout time.Duration) *HTTP {
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(addr, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	lim := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &HTTP{client: client, limiter: lim, MaxElapsed: 3 * time.Second}
}

func (h *HTTP) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      h.MaxElapsed,
		Clock:               backoff.SystemClock}, ctx)
}

// Trigger is true for the writes that start an action on the bench (an
// exposure, a save) rather than set a value.  A failed trigger is not
// resent, the first request may still be running.
func Trigger(p Property) bool {
	return p == SpectroRunning || p == SpectroSaved
}

// do sends one command.  body is sent as JSON when non nil, and the response
// is decoded into out when non nil.
func (h *HTTP) do(ctx context.Context, method string, p Property, body, out interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.limiter.Wait(ctx); err != nil {
		return err
	}
	op := func() error {
		req := h.client.R().SetContext(ctx)
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}
		resp, err := req.Execute(method, Route(p))
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if method != http.MethodGet && Trigger(p) {
				return backoff.Permanent(errors.Wrapf(err, "%s %s not retried", method, p))
			}
			return err
		}
		if resp.IsError() {
			return backoff.Permanent(errors.Errorf("%s %s: %s: %s",
				method, p, resp.Status(), strings.TrimSpace(resp.String())))
		}
		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return backoff.Permanent(errors.Wrapf(err, "decoding %s", p))
			}
		}
		return nil
	}
	return backoff.Retry(op, h.backOff(ctx))
}

// GetFloat reads a float property
func (h *HTTP) GetFloat(ctx context.Context, p Property) (float64, error) {
	v := FloatT{}
	err := h.do(ctx, http.MethodGet, p, nil, &v)
	return v.F64, err
}

// SetFloat writes a float property
func (h *HTTP) SetFloat(ctx context.Context, p Property, v float64) error {
	return h.do(ctx, http.MethodPost, p, FloatT{F64: v}, nil)
}

// GetInt reads an int property
func (h *HTTP) GetInt(ctx context.Context, p Property) (int, error) {
	v := IntT{}
	err := h.do(ctx, http.MethodGet, p, nil, &v)
	return v.Int, err
}

// SetInt writes an int property
func (h *HTTP) SetInt(ctx context.Context, p Property, v int) error {
	return h.do(ctx, http.MethodPost, p, IntT{Int: v}, nil)
}

// GetString reads a string property
func (h *HTTP) GetString(ctx context.Context, p Property) (string, error) {
	v := StrT{}
	err := h.do(ctx, http.MethodGet, p, nil, &v)
	return v.Str, err
}

// SetString writes a string property
func (h *HTTP) SetString(ctx context.Context, p Property, v string) error {
	return h.do(ctx, http.MethodPost, p, StrT{Str: v}, nil)
}

// GetBool reads a bool property
func (h *HTTP) GetBool(ctx context.Context, p Property) (bool, error) {
	v := BoolT{}
	err := h.do(ctx, http.MethodGet, p, nil, &v)
	return v.Bool, err
}

// SetBool writes a bool property
func (h *HTTP) SetBool(ctx context.Context, p Property, v bool) error {
	return h.do(ctx, http.MethodPost, p, BoolT{Bool: v}, nil)
}
