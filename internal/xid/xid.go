// Package xid generates prefixed opaque identifiers for ledger entries,
// goods, and audit rows.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns an id of the form "<prefix>-<unix-nanos>-<random hex>". The
// timestamp component keeps ids roughly sortable by creation time; the random
// suffix makes collisions within a nanosecond a non-issue.
func New(prefix string) string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is effectively unreachable; fall back to the
		// timestamp alone rather than panic in the request path.
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}
