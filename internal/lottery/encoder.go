package lottery

import (
	"math/rand"
	"strings"
)

// base62Charset orders digits, lowercase, uppercase.  Both the payload
// encoding and the deterministic padding draw from this alphabet, so a
// public draw ID never contains characters outside it.
const base62Charset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// maxPayloadLen is the longest base62 rendering of a 32-bit value.
const maxPayloadLen = 6

// DrawIDEncoder maps sequential draw-record keys to opaque strings and
// back.  The database keeps the auto-increment key (best insert
// performance); clients only ever see the encoded form, so record IDs
// cannot be enumerated.  A 3-round keyed Feistel network over the 32-bit
// value makes the mapping a bijection, base62 makes it printable, and
// deterministic padding seeded by the original ID brings short outputs up
// to a configured minimum length without breaking "same input, same
// output".
type DrawIDEncoder struct {
	key       uint32
	minLength int
}

// DefaultEncoderKey is used when no key is configured.  Production
// deployments should set their own.
const DefaultEncoderKey uint32 = 0x12345678

// NewDrawIDEncoder builds an encoder.  A zero key selects
// DefaultEncoderKey; minLength below 1 falls back to 8.
func NewDrawIDEncoder(key uint32, minLength int) *DrawIDEncoder {
	if key == 0 {
		key = DefaultEncoderKey
	}
	if minLength < 1 {
		minLength = 8
	}
	return &DrawIDEncoder{key: key, minLength: minLength}
}

// Encode obfuscates a positive sequential ID into a printable string of at
// least minLength characters.  Encoding is deterministic.  Non-positive
// IDs yield the empty string.
func (e *DrawIDEncoder) Encode(id uint64) string {
	if id == 0 || id > 0xFFFFFFFF {
		return ""
	}
	obfuscated := e.feistelEncode(uint32(id))
	encoded := base62Encode(obfuscated)
	if len(encoded) < e.minLength {
		encoded = e.padding(e.minLength-len(encoded), id) + encoded
	}
	return encoded
}

// Decode reverses Encode.  It returns (0, false) for any input containing
// a character outside the base62 alphabet, for inputs that decode to a
// non-positive ID, and for strings that Encode could never have produced.
// The padding length is not stored in the output, so Decode tries each
// plausible payload suffix and accepts the one that round-trips.
func (e *DrawIDEncoder) Decode(encoded string) (uint64, bool) {
	if encoded == "" {
		return 0, false
	}
	for _, c := range encoded {
		if !strings.ContainsRune(base62Charset, c) {
			return 0, false
		}
	}
	limit := maxPayloadLen
	if len(encoded) < limit {
		limit = len(encoded)
	}
	for n := limit; n >= 1; n-- {
		val, ok := base62Decode(encoded[len(encoded)-n:])
		if !ok || val > 0xFFFFFFFF {
			continue
		}
		id := e.feistelDecode(uint32(val))
		if id == 0 {
			continue
		}
		if e.Encode(uint64(id)) == encoded {
			return uint64(id), true
		}
	}
	return 0, false
}

// feistelEncode splits the value into two 16-bit halves, runs three rounds
// of the keyed round function and swaps the halves once at the end.
func (e *DrawIDEncoder) feistelEncode(v uint32) uint32 {
	left := (v >> 16) & 0xFFFF
	right := v & 0xFFFF
	for i := 0; i < 3; i++ {
		left, right = right, left^e.round(right)
	}
	left, right = right, left
	return left<<16 | right
}

// feistelDecode undoes the final swap and runs the rounds in reverse.
func (e *DrawIDEncoder) feistelDecode(v uint32) uint32 {
	left := (v >> 16) & 0xFFFF
	right := v & 0xFFFF
	left, right = right, left
	for i := 0; i < 3; i++ {
		left, right = right^e.round(left), left
	}
	return left<<16 | right
}

// round mixes a 16-bit half with the key: XOR then rotate left by one.
// The same function is used for encode and decode; only the schedule of
// halves differs.
func (e *DrawIDEncoder) round(v uint32) uint32 {
	x := (v ^ e.key) & 0xFFFF
	return ((x << 1) | (x >> 15)) & 0xFFFF
}

// padding produces length pseudo-random charset characters seeded by the
// original ID, so the same ID always pads (and therefore encodes)
// identically.
func (e *DrawIDEncoder) padding(length int, seed uint64) string {
	rng := rand.New(rand.NewSource(int64(seed)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(base62Charset[rng.Intn(len(base62Charset))])
	}
	return b.String()
}

func base62Encode(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [maxPayloadLen]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Charset[n%62]
		n /= 62
	}
	return string(buf[i:])
}

func base62Decode(s string) (uint64, bool) {
	var n uint64
	for i := 0; i < len(s); i++ {
		pos := strings.IndexByte(base62Charset, s[i])
		if pos < 0 {
			return 0, false
		}
		n = n*62 + uint64(pos)
		if n > 0xFFFFFFFF*62 {
			return 0, false
		}
	}
	return n, true
}
