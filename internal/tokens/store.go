package tokens

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// Store is the credential supply. Valid and invalidated tokens live in two
// newline-delimited files that are read once at startup and rewritten
// whenever the in-memory lists change.
type Store struct {
	mu          sync.Mutex
	validPath   string
	invalidPath string
	valid       []string
	invalid     []string
}

func NewStore(validPath, invalidPath string) *Store {
	return &Store{
		validPath:   validPath,
		invalidPath: invalidPath,
	}
}

// Load reads both files. A missing invalid-tokens file is not an error; a
// missing valid-tokens file is, because there is nothing to run with.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	valid, err := readLines(s.validPath)
	if err != nil {
		return fmt.Errorf("reading valid tokens: %w", err)
	}
	s.valid = valid

	invalid, err := readLines(s.invalidPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("reading invalidated tokens: %w", err)
		}
		invalid = nil
	}
	s.invalid = invalid

	return nil
}

// All returns a copy of the currently valid tokens.
func (s *Store) All() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.valid))
	copy(out, s.valid)
	return out
}

// Invalidate moves a token from the valid list to the invalidated list and
// rewrites both files. Unknown tokens are ignored. Invalidation does not
// touch any connection already open with the token; it only stops the token
// from being handed out again.
func (s *Store) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, t := range s.valid {
		if t == token {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	s.valid = append(s.valid[:idx], s.valid[idx+1:]...)
	s.invalid = append(s.invalid, token)

	if err := writeLines(s.validPath, s.valid); err != nil {
		log.Printf("tokens: rewriting %s: %v", s.validPath, err)
	}
	if err := writeLines(s.invalidPath, s.invalid); err != nil {
		log.Printf("tokens: rewriting %s: %v", s.invalidPath, err)
	}
}

// Count returns the number of valid tokens.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.valid)
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

func writeLines(path string, lines []string) error {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
