// Package snapshot exports and restores the full verifier state.
//
// A snapshot is the zstd-compressed encoding of every stored key/value pair
// in key order, followed by a blake3 checksum of the encoding:
//
//	version (4) | count (4) | { keyLen (4) | key | valueLen (4) | value }* | checksum (32)
//
// All integers are big-endian.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"OracleVerifier/internal/storage"
)

const (
	// formatVersion is the current snapshot format version.
	formatVersion = 1

	// checksumSize is the size of the trailing blake3 checksum.
	checksumSize = 32

	// headerSize is version + entry count.
	headerSize = 8
)

var (
	// ErrChecksum is returned when a snapshot fails integrity verification.
	ErrChecksum = errors.New("snapshot checksum mismatch")

	// ErrMalformed is returned when a snapshot cannot be decoded.
	ErrMalformed = errors.New("malformed snapshot")
)

// entry is one stored key/value pair.
type entry struct {
	key   []byte
	value []byte
}

// Export dumps every key in db into a compressed snapshot.
func Export(db *storage.Storage) ([]byte, error) {
	entries, err := collect(db)
	if err != nil {
		return nil, fmt.Errorf("collect entries:\n%w", err)
	}

	compressed, err := compress(encode(entries))
	if err != nil {
		return nil, fmt.Errorf("compress snapshot:\n%w", err)
	}

	return compressed, nil
}

// Import verifies data and replaces the content of db with it in one batch.
// Returns the number of restored entries.
func Import(db *storage.Storage, data []byte) (int, error) {
	raw, err := decompress(data)
	if err != nil {
		return 0, fmt.Errorf("%w: decompress:\n%v", ErrMalformed, err)
	}

	entries, err := decode(raw)
	if err != nil {
		return 0, err
	}

	existing, err := collect(db)
	if err != nil {
		return 0, fmt.Errorf("collect existing entries:\n%w", err)
	}

	batch := db.NewBatch()
	defer batch.Close()

	for _, e := range existing {
		if err := batch.Delete(e.key); err != nil {
			return 0, fmt.Errorf("delete %q:\n%w", e.key, err)
		}
	}

	for _, e := range entries {
		if err := batch.Set(e.key, e.value); err != nil {
			return 0, fmt.Errorf("set %q:\n%w", e.key, err)
		}
	}

	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot:\n%w", err)
	}

	return len(entries), nil
}

// collect copies every stored pair. Iteration is already in key order.
func collect(db *storage.Storage) ([]entry, error) {
	var entries []entry

	err := db.Iterate(func(key, value []byte) error {
		entries = append(entries, entry{
			key:   bytes.Clone(key),
			value: bytes.Clone(value),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// encode serializes entries and appends their checksum.
func encode(entries []entry) []byte {
	var buf bytes.Buffer

	var u32 [4]byte
	writeU32 := func(n int) {
		binary.BigEndian.PutUint32(u32[:], uint32(n))
		buf.Write(u32[:])
	}

	writeU32(formatVersion)
	writeU32(len(entries))

	for _, e := range entries {
		writeU32(len(e.key))
		buf.Write(e.key)
		writeU32(len(e.value))
		buf.Write(e.value)
	}

	sum := blake3.Sum256(buf.Bytes())
	buf.Write(sum[:])

	return buf.Bytes()
}

// decode verifies the checksum and parses the entries of raw.
func decode(raw []byte) ([]entry, error) {
	if len(raw) < headerSize+checksumSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}

	body, stored := raw[:len(raw)-checksumSize], raw[len(raw)-checksumSize:]

	computed := blake3.Sum256(body)
	if !bytes.Equal(computed[:], stored) {
		return nil, ErrChecksum
	}

	if v := binary.BigEndian.Uint32(body[0:4]); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, v)
	}

	count := binary.BigEndian.Uint32(body[4:8])
	rest := body[headerSize:]

	// Each entry takes at least two length prefixes.
	if uint64(count)*8 > uint64(len(rest)) {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrMalformed, count, len(rest))
	}

	entries := make([]entry, 0, count)
	for i := range count {
		key, tail, err := readChunk(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d key: %v", ErrMalformed, i, err)
		}

		value, tail, err := readChunk(tail)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d value: %v", ErrMalformed, i, err)
		}

		entries = append(entries, entry{key: key, value: value})
		rest = tail
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}

	return entries, nil
}

// readChunk reads one length-prefixed chunk and returns it with the remainder.
func readChunk(b []byte) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, fmt.Errorf("truncated length")
	}

	n := binary.BigEndian.Uint32(b)
	b = b[4:]

	if uint64(n) > uint64(len(b)) {
		return nil, nil, fmt.Errorf("length %d exceeds %d remaining bytes", n, len(b))
	}

	return b[:n], b[n:], nil
}

// compress compresses data using zstd.
func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// decompress decompresses zstd data.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
