// Package cache persists corpus embeddings between process runs so a restart
// does not pay the provider embedding cost again.
package cache

// Snapshot is the persisted form of one full corpus vectorization. Only
// dense provider vectors are cached; fallback term vectors are cheap to
// recompute and are never persisted.
type Snapshot struct {
	// Backend names the backend that produced the vectors.
	Backend string `json:"backend"`
	// Vectors holds one embedding per corpus record, keyed by position.
	Vectors [][]float64 `json:"embeddings"`
}

// Store reads and writes snapshots. Load returns (nil, nil) on a clean cache
// miss; any read or parse failure is an error the caller treats as a miss.
type Store interface {
	Load() (*Snapshot, error)
	Save(snap *Snapshot) error
}
