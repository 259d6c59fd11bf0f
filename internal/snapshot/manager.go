package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"OracleVerifier/internal/logger"
	"OracleVerifier/internal/storage"
)

const (
	// DefaultInterval is the default interval between snapshots.
	DefaultInterval = time.Minute
)

// Manager takes periodic snapshots of the store and keeps the latest in memory.
// When a path is set, each new snapshot is also written there.
type Manager struct {
	db       *storage.Storage
	interval time.Duration
	path     string // path is the optional output file; empty keeps snapshots in memory only

	mu      sync.RWMutex
	current []byte   // current is the latest compressed snapshot
	sum     [32]byte // sum identifies current to skip unchanged snapshots
	taken   time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager creates a snapshot manager. A non-positive interval uses DefaultInterval.
func NewManager(db *storage.Storage, interval time.Duration, path string) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Manager{
		db:       db,
		interval: interval,
		path:     path,
		stop:     make(chan struct{}),
	}
}

// Start begins the periodic snapshot loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.loop()
}

// Stop stops the loop, takes a final snapshot and waits for it to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.wg.Wait()
	})
}

// Latest returns the most recent compressed snapshot and when it was taken.
// Returns nil if no snapshot has been taken yet.
func (m *Manager) Latest() ([]byte, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current, m.taken
}

// loop runs the periodic snapshot creation.
func (m *Manager) loop() {
	defer m.wg.Done()

	m.Take()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			m.Take()
			return
		case <-ticker.C:
			m.Take()
		}
	}
}

// Take creates a snapshot now. It reports whether the store changed since the previous one.
func (m *Manager) Take() bool {
	data, err := Export(m.db)
	if err != nil {
		logger.Error("create snapshot", "error", err)
		return false
	}

	sum := blake3.Sum256(data)

	m.mu.Lock()
	if m.current != nil && sum == m.sum {
		m.mu.Unlock()
		return false
	}
	m.current = data
	m.sum = sum
	m.taken = time.Now()
	m.mu.Unlock()

	if m.path != "" {
		if err := writeFileAtomic(m.path, data); err != nil {
			logger.Error("write snapshot", "path", m.path, "error", err)
		}
	}

	logger.Debug("snapshot created", "size", len(data), "path", m.path)

	return true
}

// writeFileAtomic writes data to a temporary file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file:\n%w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file:\n%w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file:\n%w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file:\n%w", err)
	}

	return os.Rename(tmp.Name(), path)
}
