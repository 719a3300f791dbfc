// Package ulid issues the identifiers that pair bridge requests with their responses.
//
// IDs from one Source sort in issue order, even within a millisecond, so a bridge log
// can be read back in the order calls were made.
package ulid

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Source generates monotonic ULIDs. It is safe for concurrent use.
type Source struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// New creates a Source backed by crypto/rand.
func New() *Source {
	return &Source{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Next returns a new 26-character ULID in canonical upper case.
func (s *Source) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// IssuedAt returns the timestamp encoded in id.
func IssuedAt(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid request id %q: %w", id, err)
	}
	return ulid.Time(parsed.Time()), nil
}
