package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxContentLen is the per-message character ceiling of the webhook API.
// Longer content is chunked at a line or word boundary before sending.
const maxContentLen = 2000

// Webhook is a best-effort notification sink. Delivery failures are logged
// and swallowed, never propagated.
type Webhook struct {
	url  string
	http *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts content to the webhook, splitting it into chunks below the
// character ceiling. Transient failures are retried briefly with exponential
// backoff; anything still failing after that is logged and dropped.
func (w *Webhook) Send(ctx context.Context, content string) {
	if w.url == "" || strings.TrimSpace(content) == "" {
		return
	}

	for _, chunk := range splitContent(content, maxContentLen) {
		retry := backoff.NewExponentialBackOff()
		retry.InitialInterval = 500 * time.Millisecond
		retry.MaxInterval = 5 * time.Second

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, w.post(ctx, chunk)
		},
			backoff.WithBackOff(retry),
			backoff.WithMaxTries(3),
		)
		if err != nil {
			log.Printf("notify: webhook delivery failed, dropping chunk: %v", err)
		}
	}
}

func (w *Webhook) post(ctx context.Context, content string) error {
	payload, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	default:
		// Client errors won't improve on retry.
		return backoff.Permanent(fmt.Errorf("webhook status %d", resp.StatusCode))
	}
}

// splitContent breaks content into pieces no longer than limit, preferring a
// newline boundary, then a space, then a hard cut.
func splitContent(content string, limit int) []string {
	var chunks []string
	for len(content) > limit {
		cut := strings.LastIndexByte(content[:limit], '\n')
		if cut <= 0 {
			cut = strings.LastIndexByte(content[:limit], ' ')
		}
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, strings.TrimSpace(content[:cut]))
		content = strings.TrimSpace(content[cut:])
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}
