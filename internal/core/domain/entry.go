package domain

import "fmt"

// Entry is the unit handed to a materializer: one log entry tagged with its
// origin. Entries are created per batch and never persisted by the engine.
type Entry struct {
	LogID LogID
	Seq   uint32
	Value []byte
}

// ID returns the "<hexkey>@<seq>" identifier of the entry.
func (e Entry) ID() string {
	return fmt.Sprintf("%s@%d", e.LogID, e.Seq)
}
