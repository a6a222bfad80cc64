package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// LogIDSize is the length in bytes of a log identifier.
const LogIDSize = 32

// LogID is the stable 32-byte key of an append-only log.
type LogID [LogIDSize]byte

// String returns the lower-case hex form of the id.
func (id LogID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, for log lines.
func (id LogID) Short() string {
	return id.String()[:8]
}

// IsZero reports whether the id is all zero bytes.
func (id LogID) IsZero() bool {
	return id == LogID{}
}

// LogIDFromBytes copies a 32-byte slice into a LogID.
func LogIDFromBytes(b []byte) (LogID, error) {
	var id LogID
	if len(b) != LogIDSize {
		return id, fmt.Errorf("invalid log id length: got %d, want %d", len(b), LogIDSize)
	}
	copy(id[:], b)
	return id, nil
}

// ParseLogID parses the hex form produced by String.
func ParseLogID(s string) (LogID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return LogID{}, fmt.Errorf("invalid log id %q: %w", s, err)
	}
	return LogIDFromBytes(b)
}

// LogIDFromName derives a deterministic id from a human-readable log name.
func LogIDFromName(name string) LogID {
	return LogID(sha256.Sum256([]byte(name)))
}

// NewLogID returns a fresh random id.
func NewLogID() LogID {
	u := uuid.New()
	return LogID(sha256.Sum256(u[:]))
}
