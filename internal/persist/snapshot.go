package persist

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"worldgen/internal/mapgen"
	"worldgen/internal/world"
)

const SnapshotVersion = 1

// Header is written as a JSON line ahead of the gob body so tools can
// identify a snapshot without decoding it.
type Header struct {
	Version      int       `json:"version"`
	Seed         int64     `json:"seed"`
	GenerationID uuid.UUID `json:"generation_id"`
	Blocks       int       `json:"blocks"`
	CreatedAt    time.Time `json:"created_at"`
}

type Snapshot struct {
	Header Header
	Params mapgen.WorldParams
	Chunks []world.ChunkCoord
	Blocks []world.Entry
}

// Capture copies the current contents of w.
func Capture(w *mapgen.WorldState, now time.Time) Snapshot {
	params := w.Params()
	store := w.Store()
	blocks := store.Entries()
	return Snapshot{
		Header: Header{
			Version:      SnapshotVersion,
			Seed:         params.Seed,
			GenerationID: params.GenerationID,
			Blocks:       len(blocks),
			CreatedAt:    now.UTC(),
		},
		Params: params,
		Chunks: store.GeneratedChunks(),
		Blocks: blocks,
	}
}

// FileName is the conventional snapshot name for a generation.
func FileName(h Header) string {
	return fmt.Sprintf("world-%d-%s.snap.zst", h.Seed, h.GenerationID)
}

func WriteSnapshot(path string, snap Snapshot) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close snapshot: %w", cerr)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish snapshot: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	br, closeFn, err := openSnapshot(path)
	if err != nil {
		return snap, err
	}
	defer closeFn()

	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != SnapshotVersion {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	br, closeFn, err := openSnapshot(path)
	if err != nil {
		return h, err
	}
	defer closeFn()

	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func openSnapshot(path string) (*bufio.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot: %w", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("zstd reader: %w", err)
	}
	return bufio.NewReaderSize(dec, 256*1024), func() {
		dec.Close()
		f.Close()
	}, nil
}
