// Package checkpoint serializes the cursor set of an index together with the
// schema version it was built at.
//
// Wire format (little-endian):
//
//	u32 count N
//	N x (32 byte log id, u32 min, u32 max)
//	u32 version   (optional, absent in checkpoints that predate versioning)
//
// A checkpoint without the trailing version decodes as version 1.
package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vietddude/logindex/internal/core/cursor"
	"github.com/vietddude/logindex/internal/core/domain"
)

const (
	headerSize  = 4
	recordSize  = domain.LogIDSize + 4 + 4
	versionSize = 4

	// LegacyVersion is assumed for checkpoints written without a version.
	LegacyVersion uint32 = 1
)

// ErrCorruptCheckpoint is returned when persisted bytes cannot be decoded.
var ErrCorruptCheckpoint = errors.New("corrupt checkpoint")

// Checkpoint is the unit of persistence: every cursor plus the schema version.
type Checkpoint struct {
	Cursors *cursor.Set
	Version uint32
}

// Marshal encodes the checkpoint.
func (c Checkpoint) Marshal() []byte {
	return Encode(c.Cursors, c.Version)
}

// Unmarshal decodes b into c.
func (c *Checkpoint) Unmarshal(b []byte) error {
	set, version, err := Decode(b)
	if err != nil {
		return err
	}
	c.Cursors = set
	c.Version = version
	return nil
}

// Encode writes the cursors in set order followed by the version.
func Encode(set *cursor.Set, version uint32) []byte {
	cursors := set.Cursors()
	buf := make([]byte, 0, headerSize+len(cursors)*recordSize+versionSize)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(cursors)))
	for _, c := range cursors {
		buf = append(buf, c.LogID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, c.Min)
		buf = binary.LittleEndian.AppendUint32(buf, c.Max)
	}
	return binary.LittleEndian.AppendUint32(buf, version)
}

// Decode parses bytes produced by Encode, or by an encoder that did not write
// a version.
func Decode(b []byte) (*cursor.Set, uint32, error) {
	if len(b) < headerSize {
		return nil, 0, fmt.Errorf("%w: %d bytes, need at least %d", ErrCorruptCheckpoint, len(b), headerSize)
	}
	n := uint64(binary.LittleEndian.Uint32(b))
	end := headerSize + n*recordSize
	if uint64(len(b)) < end {
		return nil, 0, fmt.Errorf("%w: %d records need %d bytes, have %d", ErrCorruptCheckpoint, n, end, len(b))
	}

	// A log listed twice keeps its first position and its last record.
	cursors := make([]domain.Cursor, 0, n)
	seen := make(map[domain.LogID]int, n)
	for i := uint64(0); i < n; i++ {
		rec := b[headerSize+i*recordSize:]
		id, _ := domain.LogIDFromBytes(rec[:domain.LogIDSize])
		c := domain.Cursor{
			LogID: id,
			Min:   binary.LittleEndian.Uint32(rec[domain.LogIDSize:]),
			Max:   binary.LittleEndian.Uint32(rec[domain.LogIDSize+4:]),
		}
		if at, dup := seen[id]; dup {
			cursors[at] = c
			continue
		}
		seen[id] = len(cursors)
		cursors = append(cursors, c)
	}

	set := cursor.NewSet()
	for _, c := range cursors {
		_ = set.Put(c)
	}

	version := LegacyVersion
	if uint64(len(b)) >= end+versionSize {
		version = binary.LittleEndian.Uint32(b[end:])
	}
	return set, version, nil
}
