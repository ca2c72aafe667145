package broadcast

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/sparc-rpg/rollcast/internal/dice"
)

// computeETag fingerprints the visible state of a session's roll activity.
// The serialization is the session ID followed by every retained roll ID in
// insertion order, so the tag changes if and only if the visible content
// changes: roll IDs are unique per roll and the sequence is order-sensitive.
//
// A session with no rolls gets a stable, non-empty tag derived from its ID
// alone, so empty-state polls still carry a comparable ETag.
func computeETag(sessionID string, rolls []dice.RollResult) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails on a bad key; nil key never fails.
		panic("broadcast: blake2b init: " + err.Error())
	}
	h.Write([]byte(sessionID))
	for _, res := range rolls {
		h.Write([]byte{0})
		h.Write([]byte(res.ID))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
