// Package persist keeps generated worlds across restarts: a journal of runtime
// mutations, compressed snapshots and an index of past generations.
package persist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"worldgen/internal/world"
)

var (
	metaBucket   = []byte("meta")
	blocksBucket = []byte("blocks")

	seedKey       = []byte("seed")
	generationKey = []byte("generation")
)

const blockKeyLen = 5 * 4

// ErrCorrupt reports a journal entry that cannot be decoded.
var ErrCorrupt = errors.New("corrupt journal entry")

// Meta identifies the world a journal belongs to.
type Meta struct {
	Seed         int64
	GenerationID uuid.UUID
}

// Journal records every block written after generation so the same world can
// be rebuilt by regenerating from its seed and replaying the journal.
type Journal struct {
	db  *bolt.DB
	log *slog.Logger
}

func OpenJournal(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(metaBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(blocksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	return &Journal{db: db, log: logger.With("component", "journal")}, nil
}

// Meta returns the world the journal was last reset for. ok is false for a
// journal that has never been reset.
func (j *Journal) Meta() (meta Meta, ok bool, err error) {
	err = j.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(metaBucket)
		seed := bkt.Get(seedKey)
		if seed == nil {
			return nil
		}
		if len(seed) != 8 {
			return fmt.Errorf("%w: seed length %d", ErrCorrupt, len(seed))
		}
		meta.Seed = int64(binary.BigEndian.Uint64(seed))
		if id := bkt.Get(generationKey); id != nil {
			parsed, err := uuid.FromBytes(id)
			if err != nil {
				return fmt.Errorf("%w: generation id: %v", ErrCorrupt, err)
			}
			meta.GenerationID = parsed
		}
		ok = true
		return nil
	})
	return meta, ok, err
}

// Reset drops every recorded block and binds the journal to a new world.
func (j *Journal) Reset(seed int64, id uuid.UUID) error {
	err := j.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(blocksBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		if _, err := tx.CreateBucket(blocksBucket); err != nil {
			return err
		}
		return putMeta(tx, seed, id)
	})
	if err != nil {
		return fmt.Errorf("reset journal: %w", err)
	}
	j.log.Info("journal reset", "seed", seed, "generation", id)
	return nil
}

// Bind rewrites the journal's world without touching recorded blocks. It is
// used after a replay onto a regenerated world of the same seed.
func (j *Journal) Bind(seed int64, id uuid.UUID) error {
	if err := j.db.Update(func(tx *bolt.Tx) error { return putMeta(tx, seed, id) }); err != nil {
		return fmt.Errorf("bind journal: %w", err)
	}
	j.log.Debug("journal bound", "seed", seed, "generation", id)
	return nil
}

func putMeta(tx *bolt.Tx, seed int64, id uuid.UUID) error {
	bkt := tx.Bucket(metaBucket)
	var seedBuf [8]byte
	binary.BigEndian.PutUint64(seedBuf[:], uint64(seed))
	if err := bkt.Put(seedKey, seedBuf[:]); err != nil {
		return err
	}
	return bkt.Put(generationKey, id[:])
}

// Record stores the latest type of a cell. Air is kept as an explicit entry
// because the regenerated world may hold a block there.
func (j *Journal) Record(key world.WorldBlockKey, t world.BlockType) error {
	return j.RecordBatch([]world.Entry{{Key: key, Type: t}})
}

// RecordBatch stores several cells in one transaction.
func (j *Journal) RecordBatch(entries []world.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	err := j.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(blocksBucket)
		for _, e := range entries {
			if err := bkt.Put(encodeBlockKey(e.Key), []byte{byte(e.Type)}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record blocks: %w", err)
	}
	return nil
}

// Replay calls fn for every recorded cell in key order.
func (j *Journal) Replay(fn func(key world.WorldBlockKey, t world.BlockType)) error {
	return j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(blocksBucket).ForEach(func(k, v []byte) error {
			key, err := decodeBlockKey(k)
			if err != nil {
				return err
			}
			if len(v) != 1 || !world.BlockType(v[0]).Valid() {
				return fmt.Errorf("%w: block value %v", ErrCorrupt, v)
			}
			fn(key, world.BlockType(v[0]))
			return nil
		})
	})
}

// Len is the number of recorded cells.
func (j *Journal) Len() (int, error) {
	var n int
	err := j.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(blocksBucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Keys are big-endian with the sign bit flipped, so byte order matches
// world.KeyLess.
func encodeBlockKey(key world.WorldBlockKey) []byte {
	buf := make([]byte, blockKeyLen)
	vals := [...]int{key.Chunk.X, key.Chunk.Y, key.Pos.X, key.Pos.Y, key.Pos.Z}
	for i, v := range vals {
		binary.BigEndian.PutUint32(buf[i*4:], uint32(int32(v))^0x80000000)
	}
	return buf
}

func decodeBlockKey(b []byte) (world.WorldBlockKey, error) {
	if len(b) != blockKeyLen {
		return world.WorldBlockKey{}, fmt.Errorf("%w: key length %d", ErrCorrupt, len(b))
	}
	var vals [5]int
	for i := range vals {
		vals[i] = int(int32(binary.BigEndian.Uint32(b[i*4:]) ^ 0x80000000))
	}
	return world.WorldBlockKey{
		Chunk: world.ChunkCoord{X: vals[0], Y: vals[1]},
		Pos:   world.LocalPos{X: vals[2], Y: vals[3], Z: vals[4]},
	}, nil
}
