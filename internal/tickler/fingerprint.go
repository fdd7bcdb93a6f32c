package tickler

import (
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Fingerprint is the 64-character hex BLAKE3 digest of a snapshot's
// canonical encoding.
type Fingerprint string

// Short returns the first 12 characters, for display.
func (f Fingerprint) Short() string {
	if len(f) < 12 {
		return string(f)
	}
	return string(f[:12])
}

func (f Fingerprint) String() string { return string(f) }

// fingerprintDomainKey separates ticket fingerprints from any other BLAKE3
// keyed hash. Changing it invalidates every stored baseline.
var fingerprintDomainKey = [32]byte{
	't', 'i', 'c', 'k', 'l', 'e', 'r', '.', 't', 'i', 'c', 'k', 'e', 't', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't', 0, 0, 0, 0, 0, 0,
}

// encMode uses Core Deterministic Encoding, so the same snapshot always
// produces identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("tickler: CBOR encoder initialization failed: " + err.Error())
	}
}

// canonicalSnapshot fixes the field order of the encoding. Arrays, not maps:
// position is the field name.
type canonicalSnapshot struct {
	_           struct{} `cbor:",toarray"`
	ID          string
	Server      string
	Created     string
	Status      string
	Description string
	Comments    []canonicalComment
}

type canonicalComment struct {
	_       struct{} `cbor:",toarray"`
	Created string
	Updated string
	Author  string
	Body    string
}

// CanonicalBytes returns the deterministic serialization that
// BuildFingerprint digests.
func CanonicalBytes(s *TicketSnapshot) []byte {
	if s == nil {
		panic("tickler: CanonicalBytes called with nil snapshot")
	}

	c := canonicalSnapshot{
		ID:          s.ID,
		Server:      s.Server,
		Created:     s.Created,
		Status:      s.Status,
		Description: s.Description,
		Comments:    make([]canonicalComment, len(s.Comments)),
	}
	for i, cm := range s.Comments {
		c.Comments[i] = canonicalComment{
			Created: cm.Created,
			Updated: cm.Updated,
			Author:  cm.Author,
			Body:    cm.Body,
		}
	}

	data, err := encMode.Marshal(c)
	if err != nil {
		// Only strings and slices of strings are encoded.
		panic("tickler: encoding snapshot: " + err.Error())
	}
	return data
}

// BuildFingerprint computes the fingerprint of a fully fetched snapshot.
// It is pure: no I/O, no clock.
func BuildFingerprint(s *TicketSnapshot) Fingerprint {
	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		panic("tickler: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(CanonicalBytes(s))
	return Fingerprint(hex.EncodeToString(hasher.Sum(nil)))
}
