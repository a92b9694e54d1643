package metrics

import "context"

// StaticSource returns a fixed slice of snapshots on every call. It
// exists for tests; the autoscaler binary always builds a RedisSource
// and never uses it.
type StaticSource struct {
	Snaps []Snapshot
}

// Snapshots implements Source.
func (s StaticSource) Snapshots(_ context.Context) ([]Snapshot, error) {
	return s.Snaps, nil
}
