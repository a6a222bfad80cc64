package domain

// Cursor is the progress marker of a single log.
//
// Max is the exclusive upper bound of entries already delivered to the
// materializer, i.e. the next unread sequence number. Min is reserved for
// backward indexing and stays 0.
type Cursor struct {
	LogID LogID
	Min   uint32
	Max   uint32
}
