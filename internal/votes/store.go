// Package votes persists operator votes and the per-result power tallies.
package votes

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"OracleVerifier/internal/model"
	"OracleVerifier/internal/storage"
)

var (
	// voteKeyPrefix is the Pebble key prefix for votes.
	voteKeyPrefix = []byte("v:")

	// tallyKeyPrefix is the Pebble key prefix for per-result tallies.
	tallyKeyPrefix = []byte("y:")
)

// ErrDuplicateVote is returned when the operator already voted on the task.
var ErrDuplicateVote = errors.New("operator already voted on task")

// Store holds votes keyed by (task, operator) and power tallies keyed by (task, result).
// Callers serialize writes per task; Record is atomic but not a compare-and-swap.
type Store struct {
	db *storage.Storage // db is the underlying Pebble storage
}

// NewStore creates a vote store backed by the given storage.
func NewStore(db *storage.Storage) *Store {
	return &Store{db: db}
}

// Record stores a vote and adds its power to the tally of its result.
// Both writes are committed in one batch. Returns the updated tally.
func (s *Store) Record(task model.TaskID, vote model.Vote) (model.Power, error) {
	voteKey := makeVoteKey(task, vote.Operator)

	exists, err := s.db.Has(voteKey)
	if err != nil {
		return model.Power{}, fmt.Errorf("check vote:\n%w", err)
	}
	if exists {
		return model.Power{}, ErrDuplicateVote
	}

	tally, err := s.Tally(task, vote.Result)
	if err != nil {
		return model.Power{}, err
	}

	tally = tally.Add(vote.Power)

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Set(voteKey, encodeEntry(vote.Power, vote.Result)); err != nil {
		return model.Power{}, fmt.Errorf("queue vote:\n%w", err)
	}

	if err := b.Set(makeTallyKey(task, vote.Result), encodeEntry(tally, vote.Result)); err != nil {
		return model.Power{}, fmt.Errorf("queue tally:\n%w", err)
	}

	if err := b.Commit(); err != nil {
		return model.Power{}, fmt.Errorf("commit vote:\n%w", err)
	}

	return tally, nil
}

// HasVoted reports whether operator has a vote on task.
func (s *Store) HasVoted(task model.TaskID, operator model.OperatorID) (bool, error) {
	return s.db.Has(makeVoteKey(task, operator))
}

// Load returns every vote of a task, ordered by operator key.
func (s *Store) Load(task model.TaskID) ([]model.Vote, error) {
	prefix := taskPrefix(voteKeyPrefix, task)

	var votes []model.Vote

	err := s.db.IteratePrefix(prefix, func(key, value []byte) error {
		power, result, err := decodeEntry(value)
		if err != nil {
			return fmt.Errorf("decode vote %x:\n%w", key, err)
		}

		votes = append(votes, model.Vote{
			Operator: model.OperatorID(key[len(prefix):]),
			Result:   result,
			Power:    power,
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return votes, nil
}

// Tally returns the power accumulated behind result on task.
// Returns zero when nobody voted for result.
func (s *Store) Tally(task model.TaskID, result string) (model.Power, error) {
	value, err := s.db.Get(makeTallyKey(task, result))
	if err != nil {
		return model.Power{}, fmt.Errorf("get tally:\n%w", err)
	}
	if value == nil {
		return model.Power{}, nil
	}

	power, stored, err := decodeEntry(value)
	if err != nil {
		return model.Power{}, fmt.Errorf("decode tally:\n%w", err)
	}

	// Tally keys hash the result; guard against a collision.
	if stored != result {
		return model.Power{}, fmt.Errorf("tally key collision for result %q", result)
	}

	return power, nil
}

// Tallies returns every distinct result of a task with its accumulated power.
func (s *Store) Tallies(task model.TaskID) ([]model.Tally, error) {
	var tallies []model.Tally

	err := s.db.IteratePrefix(taskPrefix(tallyKeyPrefix, task), func(key, value []byte) error {
		power, result, err := decodeEntry(value)
		if err != nil {
			return fmt.Errorf("decode tally %x:\n%w", key, err)
		}

		tallies = append(tallies, model.Tally{Result: result, Power: power})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return tallies, nil
}

// TotalTally returns the power of all votes on a task.
func (s *Store) TotalTally(task model.TaskID) (model.Power, error) {
	tallies, err := s.Tallies(task)
	if err != nil {
		return model.Power{}, err
	}

	var total model.Power
	for _, t := range tallies {
		total = total.Add(t.Power)
	}

	return total, nil
}

// Prune deletes all votes and tallies of a task.
func (s *Store) Prune(task model.TaskID) error {
	if err := s.db.DeletePrefix(taskPrefix(voteKeyPrefix, task)); err != nil {
		return fmt.Errorf("prune votes:\n%w", err)
	}

	if err := s.db.DeletePrefix(taskPrefix(tallyKeyPrefix, task)); err != nil {
		return fmt.Errorf("prune tallies:\n%w", err)
	}

	return nil
}

// taskPrefix builds prefix + task ID (8 bytes big-endian, so scans follow ID order).
func taskPrefix(prefix []byte, task model.TaskID) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(task))
	return key
}

// makeVoteKey builds "v:" + task + operator.
func makeVoteKey(task model.TaskID, operator model.OperatorID) []byte {
	return append(taskPrefix(voteKeyPrefix, task), operator...)
}

// makeTallyKey builds "y:" + task + blake3(result).
func makeTallyKey(task model.TaskID, result string) []byte {
	sum := blake3.Sum256([]byte(result))
	return append(taskPrefix(tallyKeyPrefix, task), sum[:]...)
}

// encodeEntry encodes power (32 bytes) followed by the raw result.
func encodeEntry(power model.Power, result string) []byte {
	var buf bytes.Buffer
	buf.Grow(model.PowerSize + len(result))
	buf.Write(power.Bytes())
	buf.WriteString(result)
	return buf.Bytes()
}

// decodeEntry reverses encodeEntry.
func decodeEntry(value []byte) (model.Power, string, error) {
	if len(value) < model.PowerSize {
		return model.Power{}, "", fmt.Errorf("entry too short: %d bytes", len(value))
	}

	power, err := model.PowerFromBytes(value[:model.PowerSize])
	if err != nil {
		return model.Power{}, "", err
	}

	return power, string(value[model.PowerSize:]), nil
}
