package cache

import "time"

// Entry is a memoized bugbug response.
type Entry struct {
	// Data is the translated schedules document.
	Data []byte `json:"data"`

	// CachedAt is when the entry was stored.
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry returns an entry holding a copy of data.
func NewEntry(data []byte) *Entry {
	return &Entry{
		Data:     append([]byte(nil), data...),
		CachedAt: time.Now(),
	}
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age() time.Duration {
	return time.Since(e.CachedAt)
}

func (e *Entry) clone() *Entry {
	return &Entry{
		Data:     append([]byte(nil), e.Data...),
		CachedAt: e.CachedAt,
	}
}
