package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestSplitContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		limit   int
		want    []string
	}{
		{"short passes through", "hello", 10, []string{"hello"}},
		{"splits at newline", "aaa\nbbb", 5, []string{"aaa", "bbb"}},
		{"splits at space", "aaa bbb ccc", 8, []string{"aaa bbb", "ccc"}},
		{"hard cut without boundary", "aaaaaaaaaa", 4, []string{"aaaa", "aaaa", "aa"}},
		{"empty yields nothing", "", 10, nil},
	}

	for _, tt := range tests {
		got := splitContent(tt.content, tt.limit)
		if len(got) != len(tt.want) {
			t.Errorf("%s: splitContent = %q, want %q", tt.name, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("%s: chunk %d = %q, want %q", tt.name, i, got[i], tt.want[i])
			}
		}
		for i, chunk := range got {
			if len(chunk) > tt.limit {
				t.Errorf("%s: chunk %d exceeds limit: %d > %d", tt.name, i, len(chunk), tt.limit)
			}
		}
	}
}

func TestSendDelivers(t *testing.T) {
	var mu sync.Mutex
	var contents []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		contents = append(contents, body["content"])
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	w.Send(context.Background(), "claimed vanity `abc`")

	mu.Lock()
	defer mu.Unlock()
	if len(contents) != 1 || contents[0] != "claimed vanity `abc`" {
		t.Errorf("delivered = %q", contents)
	}
}

func TestSendChunksLongContent(t *testing.T) {
	var mu sync.Mutex
	var count int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	w.Send(context.Background(), strings.Repeat("word ", 900)) // ~4500 chars

	mu.Lock()
	defer mu.Unlock()
	if count < 2 {
		t.Errorf("long content delivered in %d request(s), want chunking", count)
	}
}

func TestSendSwallowsClientError(t *testing.T) {
	var mu sync.Mutex
	var count int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		count++
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	w.Send(context.Background(), "hello") // must not panic or block

	// 404 is permanent: no retries.
	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("client error retried %d time(s), want 1 attempt", count)
	}
}

func TestSendNoURL(t *testing.T) {
	w := NewWebhook("")
	w.Send(context.Background(), "hello") // no-op, must not panic
}
