package pebblefeed

import (
	"encoding/binary"

	"github.com/vietddude/logindex/internal/core/domain"
)

// Keyspace, byte-wise ordered:
//   - feed/reg/{idx_be4}            -> log id (registration order)
//   - feed/log/{id}/m               -> length (be4)
//   - feed/log/{id}/e/{seq_be4}     -> record

var (
	regPrefix  = []byte("feed/reg/")
	logPrefix  = []byte("feed/log/")
	metaSuffix = []byte("/m")
	entrySeg   = []byte("/e/")
)

func appendBE4(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func keyReg(idx uint32) []byte {
	k := make([]byte, 0, len(regPrefix)+4)
	k = append(k, regPrefix...)
	return appendBE4(k, idx)
}

func keyMeta(id domain.LogID) []byte {
	k := make([]byte, 0, len(logPrefix)+domain.LogIDSize+len(metaSuffix))
	k = append(k, logPrefix...)
	k = append(k, id[:]...)
	return append(k, metaSuffix...)
}

func keyEntry(id domain.LogID, seq uint32) []byte {
	k := make([]byte, 0, len(logPrefix)+domain.LogIDSize+len(entrySeg)+4)
	k = append(k, logPrefix...)
	k = append(k, id[:]...)
	k = append(k, entrySeg...)
	return appendBE4(k, seq)
}

// regBounds returns the iteration bounds covering every registration key.
func regBounds() (lower, upper []byte) {
	lower = append([]byte(nil), regPrefix...)
	upper = append([]byte(nil), regPrefix...)
	upper[len(upper)-1]++
	return lower, upper
}
