package lottery

import (
	crand "crypto/rand"
	"encoding/hex"
	"math/rand"
)

// randomToken returns n cryptographically random bytes hex encoded (2n
// characters).  On the unlikely failure of the system entropy source it
// falls back to math/rand so lock values and nonces are still usable.
func randomToken(n int) string {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		for i := range b {
			b[i] = byte(rand.Intn(256))
		}
	}
	return hex.EncodeToString(b)
}
