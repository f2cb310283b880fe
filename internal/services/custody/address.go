package custody

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// escrowPrefix marks ledger-owned escrow addresses. Party addresses never
// carry it, so an escrow account cannot be impersonated by a caller.
const escrowPrefix = "esc1"

// EscrowAddress derives the deterministic escrow address for a stream from
// (streamID, sender, bump). The derivation holds no secret: any later
// operation can reproduce the address from the stream record alone and use
// it to authorize movements out of escrow.
func EscrowAddress(streamID, sender string, bump uint8) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s:%s:%d", streamID, sender, bump))
	return escrowPrefix + hex.EncodeToString(h[:20])
}

// IsEscrowAddress reports whether address is ledger-derived.
func IsEscrowAddress(address string) bool {
	return len(address) > len(escrowPrefix) && address[:len(escrowPrefix)] == escrowPrefix
}
