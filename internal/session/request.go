package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// pendingRequest tracks the single in-flight exchange. The timeout timer is
// stopped whenever the request resolves, is abandoned, or the session closes.
type pendingRequest struct {
	id     string
	sentAt time.Time
	timer  clockwork.Timer
}

// newRequestID mints an identifier unique for the connection's lifetime by
// combining the send time with a random suffix.
func newRequestID(now time.Time) (string, error) {
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return fmt.Sprintf("req-%d-%s", now.UnixMilli(), hex.EncodeToString(suffix[:])), nil
}
