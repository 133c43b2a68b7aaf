// Package sessionid generates identifiers for sessions and connections:
// a UUIDv7 encoded as 26 characters of Crockford base32, so ids sort by
// creation time.
package sessionid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// New returns a fresh identifier.
func New() string {
	return encodeBase32(newUUIDv7(nowMillis()))
}

// newUUIDv7 builds a 128-bit UUIDv7: 48-bit millisecond timestamp, then
// random bits with the version and variant fields set.
func newUUIDv7(millis int64) [16]byte {
	var id [16]byte
	id[0] = byte(millis >> 40)
	id[1] = byte(millis >> 32)
	id[2] = byte(millis >> 24)
	id[3] = byte(millis >> 16)
	id[4] = byte(millis >> 8)
	id[5] = byte(millis)
	if _, err := rand.Read(id[6:]); err != nil {
		panic("sessionid: reading entropy: " + err.Error())
	}
	id[6] = (id[6] & 0x0f) | 0x70 // version 7
	id[8] = (id[8] & 0x3f) | 0x80 // variant 10
	return id
}

// encodeBase32 packs the 128 bits into 26 base32 characters, five bits per
// character, most significant bits first.
func encodeBase32(id [16]byte) string {
	var b strings.Builder
	b.Grow(26)
	for i := 0; i < 26; i++ {
		bitOffset := i * 5
		byteIndex := bitOffset / 8
		bitIndex := bitOffset % 8

		var v byte
		if bitIndex <= 3 {
			v = (id[byteIndex] >> (3 - bitIndex)) & 0x1f
		} else {
			v = (id[byteIndex] << (bitIndex - 3)) & 0x1f
			if byteIndex+1 < len(id) {
				v |= id[byteIndex+1] >> (11 - bitIndex)
			}
		}
		b.WriteByte(alphabet[v])
	}
	return b.String()
}

// Validate checks that an id is 26 characters of the base32 alphabet and
// does not overflow 128 bits.
func Validate(id string) error {
	if len(id) != 26 {
		return fmt.Errorf("sessionid: want 26 characters, got %d", len(id))
	}
	if id[0] > '7' {
		return fmt.Errorf("sessionid: first character must be 0-7, got %c", id[0])
	}
	for i := 0; i < len(id); i++ {
		if !strings.ContainsRune(alphabet, rune(id[i])) {
			return fmt.Errorf("sessionid: invalid character %c at position %d", id[i], i)
		}
	}
	return nil
}
