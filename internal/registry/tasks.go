// Package registry implements the operator voting power ledger and the task registry.
package registry

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"OracleVerifier/internal/model"
	"OracleVerifier/internal/storage"
)

var (
	// taskKeyPrefix is the Pebble key prefix for task records.
	taskKeyPrefix = []byte("k:")

	// nextTaskIDKey holds the next task ID to assign.
	nextTaskIDKey = []byte("m:next_task_id")
)

var (
	// ErrTaskNotFound is returned for an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotOpen is returned when completing a task that is already completed.
	ErrTaskNotOpen = errors.New("task is not open")
)

// NewTask describes a task to create.
type NewTask struct {
	Description        string        // Description is free-form task metadata
	Timeout            time.Duration // Timeout is how long the task accepts votes
	RequiredPercentage uint8         // RequiredPercentage of TotalPower gates aggregation
	TotalPower         model.Power   // TotalPower is the eligible power at creation
}

// Tasks is the task registry.
// It is safe for concurrent access.
type Tasks struct {
	mu sync.Mutex       // mu serializes ID assignment and status updates
	db *storage.Storage // db is the underlying Pebble storage
}

// NewTasks creates a task registry backed by the given storage.
func NewTasks(db *storage.Storage) *Tasks {
	return &Tasks{db: db}
}

// Create registers an open task and assigns it the next ID.
func (r *Tasks) Create(nt NewTask, now time.Time) (*model.Task, error) {
	if nt.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %s", nt.Timeout)
	}
	if nt.RequiredPercentage > 100 {
		return nil, fmt.Errorf("required percentage must be <= 100, got %d", nt.RequiredPercentage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.nextID()
	if err != nil {
		return nil, err
	}

	task := &model.Task{
		ID:            id,
		Description:   nt.Description,
		Status:        model.TaskOpen,
		PowerRequired: nt.TotalPower.MulPercent(nt.RequiredPercentage),
		TotalPower:    nt.TotalPower,
		CreatedAt:     now,
		Deadline:      now.Add(nt.Timeout),
	}

	value, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task:\n%w", err)
	}

	var next [8]byte
	binary.BigEndian.PutUint64(next[:], uint64(id)+1)

	err = r.db.SetBatch([]storage.KeyValue{
		{Key: makeTaskKey(id), Value: value},
		{Key: nextTaskIDKey, Value: next[:]},
	})
	if err != nil {
		return nil, fmt.Errorf("store task:\n%w", err)
	}

	return task, nil
}

// Load returns the stored task record.
func (r *Tasks) Load(id model.TaskID) (*model.Task, error) {
	value, err := r.db.Get(makeTaskKey(id))
	if err != nil {
		return nil, fmt.Errorf("get task:\n%w", err)
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}

	return decodeTask(value)
}

// MarkCompleted records the accepted result. Completion is final.
func (r *Tasks) MarkCompleted(id model.TaskID, result string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, err := r.Load(id)
	if err != nil {
		return err
	}

	if task.Status != model.TaskOpen {
		return fmt.Errorf("%w: task %d is %s", ErrTaskNotOpen, id, task.Status)
	}

	task.Status = model.TaskCompleted
	task.Result = result
	task.CompletedAt = now

	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task:\n%w", err)
	}

	return r.db.Set(makeTaskKey(id), value)
}

// List returns every task in ID order.
func (r *Tasks) List() ([]*model.Task, error) {
	var tasks []*model.Task

	err := r.db.IteratePrefix(taskKeyPrefix, func(key, value []byte) error {
		task, err := decodeTask(value)
		if err != nil {
			return err
		}

		tasks = append(tasks, task)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tasks, nil
}

// nextID reads the next task ID. IDs start at 1.
func (r *Tasks) nextID() (model.TaskID, error) {
	value, err := r.db.Get(nextTaskIDKey)
	if err != nil {
		return 0, fmt.Errorf("get next task id:\n%w", err)
	}
	if len(value) != 8 {
		return 1, nil
	}

	return model.TaskID(binary.BigEndian.Uint64(value)), nil
}

// makeTaskKey builds "k:" + task ID (8 bytes big-endian).
func makeTaskKey(id model.TaskID) []byte {
	key := make([]byte, len(taskKeyPrefix)+8)
	copy(key, taskKeyPrefix)
	binary.BigEndian.PutUint64(key[len(taskKeyPrefix):], uint64(id))
	return key
}

// decodeTask decodes a stored task record.
func decodeTask(value []byte) (*model.Task, error) {
	var task model.Task
	if err := json.Unmarshal(value, &task); err != nil {
		return nil, fmt.Errorf("decode task:\n%w", err)
	}
	return &task, nil
}
