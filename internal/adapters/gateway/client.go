package gateway

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/adapters/observability"
	"github.com/afriestate-lab/afriestate-lab-v2-sub001/internal/domain"
)

// Client talks to the payment gateway's charge endpoint. Transient
// failures (429, 5xx, network) are retried with backoff; a decline is
// terminal and never retried. The request carries the settlement's
// idempotency key so gateway-side replays are safe too.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("gateway API key is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

var ErrDeclined = errors.New("gateway: capture declined")

type chargeRequest struct {
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Method         string `json:"method"`
	PayerName      string `json:"payer_name"`
	PayerEmail     string `json:"payer_email,omitempty"`
	PayerPhone     string `json:"payer_phone"`
	IdempotencyKey string `json:"idempotency_key"`
}

type chargeResponse struct {
	Success    bool   `json:"success"`
	Reference  string `json:"reference"`
	Reason     string `json:"reason"`
	CapturedAt string `json:"captured_at"`
}

func (c *Client) Capture(ctx context.Context, req domain.CaptureRequest) (domain.CaptureResult, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return domain.CaptureResult{}, err
	}

	body, err := json.Marshal(chargeRequest{
		Amount:         req.Amount.StringFixed(0),
		Currency:       req.Currency,
		Method:         req.Method,
		PayerName:      req.PayerName,
		PayerEmail:     req.PayerEmail,
		PayerPhone:     req.PayerPhone,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return domain.CaptureResult{}, err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		start := time.Now()
		resp, err := c.post(ctx, c.base+"/v1/charges", body)
		if err != nil {
			if ctx.Err() != nil {
				return domain.CaptureResult{}, ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			return domain.CaptureResult{}, lastErr
		}
		observability.ObserveExternal("gateway", "charges", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			var out chargeResponse
			err := json.NewDecoder(resp.Body).Decode(&out)
			resp.Body.Close()
			if err != nil {
				return domain.CaptureResult{}, err
			}
			return parseCharge(out)

		case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
			// decline: terminal, surface the gateway's reason
			var out chargeResponse
			_ = json.NewDecoder(resp.Body).Decode(&out)
			resp.Body.Close()
			if out.Reason != "" {
				return domain.CaptureResult{}, fmt.Errorf("%w: %s", ErrDeclined, out.Reason)
			}
			return domain.CaptureResult{}, ErrDeclined

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("gateway %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return domain.CaptureResult{}, ctx.Err()
			}
			return domain.CaptureResult{}, lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return domain.CaptureResult{}, fmt.Errorf("gateway bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return domain.CaptureResult{}, lastErr
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "afriestate/1.0")
	return c.hc.Do(req)
}

func parseCharge(out chargeResponse) (domain.CaptureResult, error) {
	if !out.Success {
		if out.Reason != "" {
			return domain.CaptureResult{}, fmt.Errorf("%w: %s", ErrDeclined, out.Reason)
		}
		return domain.CaptureResult{}, ErrDeclined
	}
	if out.Reference == "" {
		return domain.CaptureResult{}, errors.New("gateway: success without reference")
	}
	at := time.Now().UTC()
	if out.CapturedAt != "" {
		if t, err := time.Parse(time.RFC3339, out.CapturedAt); err == nil {
			at = t
		}
	}
	return domain.CaptureResult{Reference: out.Reference, CapturedAt: at}, nil
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After (seconds or HTTP-date). 0 if absent.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff doubles each attempt (200ms, 400ms, 800ms...) with up to +50%
// jitter from crypto/rand so concurrent retries spread out.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
