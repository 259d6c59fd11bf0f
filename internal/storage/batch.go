package storage

import "github.com/cockroachdb/pebble"

// Batch groups writes that are applied atomically on Commit.
// A Batch must be closed after use, committed or not.
type Batch struct {
	b *pebble.Batch
}

// NewBatch starts an empty write batch.
func (s *Storage) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Set queues a key-value write.
func (b *Batch) Set(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

// Delete queues a key deletion.
func (b *Batch) Delete(key []byte) error {
	return b.b.Delete(key, nil)
}

// Len returns the number of queued operations.
func (b *Batch) Len() int {
	return int(b.b.Count())
}

// Commit applies all queued operations, or none on error.
func (b *Batch) Commit() error {
	return b.b.Commit(pebble.NoSync)
}

// Close releases the batch resources.
func (b *Batch) Close() error {
	return b.b.Close()
}
