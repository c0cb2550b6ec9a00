package rest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vanityracer/sniper/internal/config"
)

// Outcome classifies a mutation response.
type Outcome int

const (
	// Applied means the server confirmed the candidate alias.
	Applied Outcome = iota
	// RateLimited means the server throttled the request; Result.RetryAfter
	// carries the server's hint.
	RateLimited
	// Rejected covers conflicts, already-taken aliases and every other
	// non-throttled failure.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case RateLimited:
		return "rate_limited"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Result is one decoded mutation response plus timing.
type Result struct {
	Outcome    Outcome
	Code       string
	RetryAfter time.Duration
	Message    string
	Status     int
	Latency    time.Duration
}

// Client issues the vanity-alias mutation against the REST API. One client
// per credential; the raw token is the authorization value.
type Client struct {
	http       *http.Client
	base       string
	token      string
	superProps string
}

func NewClient(base, token string, ident config.IdentifyConfig) *Client {
	props, _ := json.Marshal(map[string]string{
		"os":      ident.OS,
		"browser": ident.Browser,
		"device":  ident.Device,
	})
	return &Client{
		http:       &http.Client{Timeout: 15 * time.Second},
		base:       base,
		token:      token,
		superProps: base64.StdEncoding.EncodeToString(props),
	}
}

type mutationBody struct {
	Code string `json:"code"`
}

type mutationResponse struct {
	Code       string  `json:"code"`
	RetryAfter float64 `json:"retry_after"`
	Message    string  `json:"message"`
}

// SetAlias PATCHes the target guild's vanity URL to the candidate code and
// decodes the outcome. The returned Result always carries the round-trip
// latency; a non-nil error means the request never produced a decodable
// response (transport failure, unreadable body).
func (c *Client) SetAlias(ctx context.Context, guildID, code string) (*Result, error) {
	payload, err := json.Marshal(mutationBody{Code: code})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/guilds/%s/vanity-url", c.base, guildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)
	req.Header.Set("X-Super-Properties", c.superProps)

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("vanity mutation: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading mutation response: %w", err)
	}

	var body mutationResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, fmt.Errorf("decoding mutation response (status %d): %w", resp.StatusCode, err)
		}
	}

	res := &Result{
		Code:    body.Code,
		Message: body.Message,
		Status:  resp.StatusCode,
		Latency: latency,
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		res.Outcome = RateLimited
		res.RetryAfter = time.Duration(body.RetryAfter * float64(time.Millisecond))
	case resp.StatusCode >= 200 && resp.StatusCode < 300 && body.Code == code:
		res.Outcome = Applied
	default:
		res.Outcome = Rejected
	}

	return res, nil
}
