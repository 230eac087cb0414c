package gateway

import (
	"time"
)

// Type selects which change log a request operates on.
type Type string

const (
	TypeMetadata Type = "metadata"
	TypeData     Type = "data"
)

// LogEntry is one entry of a metadata or data change log shard.
// For data logs Name is a bucket name; for metadata logs Section and Name
// identify a metadata entry.
type LogEntry struct {
	ID        string    `json:"id"`
	Section   string    `json:"section,omitempty"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// LogInfo is the current head of a log shard.
type LogInfo struct {
	Marker     string    `json:"marker"`
	LastUpdate time.Time `json:"last_update"`
}

// RetryItem is one in-progress item carried in a replica log bound.
type RetryItem struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// Bound is the replica log checkpoint of one shard: the last processed
// marker plus the items still in flight when it was written.
type Bound struct {
	Marker          string      `json:"marker"`
	OldestTime      time.Time   `json:"oldest_time"`
	DaemonID        string      `json:"daemon_id"`
	ItemsInProgress []RetryItem `json:"items_in_progress"`
}

// Retries returns the names of the carried in-progress items.
func (b *Bound) Retries() []string {
	if len(b.ItemsInProgress) == 0 {
		return nil
	}
	names := make([]string, 0, len(b.ItemsInProgress))
	for _, item := range b.ItemsInProgress {
		names = append(names, item.Name)
	}
	return names
}

// MetaKey identifies one metadata entry within a section.
type MetaKey struct {
	Section string `json:"section"`
	Key     string `json:"key"`
}

// String renders the key in the section:key form used for shard placement.
func (k MetaKey) String() string {
	return k.Section + ":" + k.Key
}

// ObjectList is one page of bucket object keys.
type ObjectList struct {
	Keys        []string `json:"keys"`
	IsTruncated bool     `json:"is_truncated"`
	NextMarker  string   `json:"next_marker,omitempty"`
}
