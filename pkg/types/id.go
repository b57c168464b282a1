package types

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"
)

// Entry IDs are ULIDs rendered as 26 Crockford base32 characters: a 48-bit
// millisecond timestamp followed by 80 random bits. They sort by creation time
// and never contain the '_' key separator.

const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// IDLength is the length of a generated entry ID.
const IDLength = 26

var (
	// ErrInvalidIDLength is returned when an ID string has the wrong length.
	ErrInvalidIDLength = errors.New("invalid entry id length")

	// ErrInvalidIDCharacter is returned when an ID string contains a non-base32 character.
	ErrInvalidIDCharacter = errors.New("invalid entry id character")
)

// IDGenerator produces entry IDs that increase monotonically within a millisecond.
type IDGenerator struct {
	mu            sync.Mutex
	lastTimestamp uint64
	lastRandom    [10]byte
}

// NewIDGenerator creates a new ID generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

var defaultIDs = NewIDGenerator()

// NewEntryID returns a fresh ID for an entry created at t.
func NewEntryID(t time.Time) string {
	id, err := defaultIDs.Next(t)
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return id
}

// Next returns the ID for timestamp t.
func (g *IDGenerator) Next(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := uint64(t.UnixMilli())

	var raw [16]byte
	for i := 0; i < 6; i++ {
		raw[i] = byte(ts >> (40 - 8*i))
	}

	if ts == g.lastTimestamp {
		g.incrementRandom()
	} else {
		if _, err := rand.Read(g.lastRandom[:]); err != nil {
			return "", err
		}
		g.lastTimestamp = ts
	}
	copy(raw[6:], g.lastRandom[:])

	return encodeID(raw), nil
}

func (g *IDGenerator) incrementRandom() {
	for i := len(g.lastRandom) - 1; i >= 0; i-- {
		g.lastRandom[i]++
		if g.lastRandom[i] != 0 {
			return
		}
	}
}

// encodeID writes 128 bits as 26 base32 digits, most significant first.
// The leading digit only carries 3 bits.
func encodeID(raw [16]byte) string {
	var buf [IDLength]byte
	for i := IDLength - 1; i >= 0; i-- {
		bit := 128 - 5*(IDLength-i)
		buf[i] = crockfordBase32[bitsAt(raw, bit)]
	}
	return string(buf[:])
}

// bitsAt reads 5 bits starting at bit offset off (may be negative for the top digit).
func bitsAt(raw [16]byte, off int) byte {
	var v byte
	for b := 0; b < 5; b++ {
		pos := off + b
		v <<= 1
		if pos < 0 {
			continue
		}
		if raw[pos/8]&(0x80>>(pos%8)) != 0 {
			v |= 1
		}
	}
	return v
}

// IDTime extracts the creation timestamp from an entry ID.
func IDTime(id string) (time.Time, error) {
	if len(id) != IDLength {
		return time.Time{}, ErrInvalidIDLength
	}
	var ms uint64
	for i := 0; i < 10; i++ {
		d := decodeBase32(id[i])
		if d == 0xFF {
			return time.Time{}, ErrInvalidIDCharacter
		}
		ms = ms<<5 | uint64(d)
	}
	// 10 digits hold 50 bits; the top two are always zero for a 48-bit timestamp.
	return time.UnixMilli(int64(ms)).UTC(), nil
}

func decodeBase32(c byte) byte {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	for i := 0; i < len(crockfordBase32); i++ {
		if crockfordBase32[i] == c {
			return byte(i)
		}
	}
	return 0xFF
}
