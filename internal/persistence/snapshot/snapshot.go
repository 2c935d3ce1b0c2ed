package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed       int64 `json:"seed"`
	TickRate   int   `json:"tick_rate_hz"`
	Height     int   `json:"height"`
	LoadRadius int   `json:"load_radius_chunks,omitempty"`

	Chunks   []ChunkV1   `json:"chunks"`
	Machines []MachineV1 `json:"machines"`

	// Loaded lists the chunk keys resident at capture time.
	Loaded [][3]int `json:"loaded,omitempty"`
}

// ChunkV1 is one 16^3 chunk; Blocks is RLE encoded palette ids (x fastest,
// then z, then y). Only chunks that differ from generated terrain are stored.
type ChunkV1 struct {
	CX     int    `json:"cx"`
	CY     int    `json:"cy"`
	CZ     int    `json:"cz"`
	Blocks []byte `json:"blocks"`
}

// MachineV1 is the persisted record of one plenisher.
type MachineV1 struct {
	Pos [3]int `json:"pos"`

	Finished bool         `json:"finished"`
	Fluid    *FluidStackV1 `json:"fluid,omitempty"`
	Energy   float64      `json:"energy"`

	// Frontier and Visited keep insertion order.
	Frontier [][3]int `json:"frontier,omitempty"`
	Visited  [][3]int `json:"visited,omitempty"`

	InputSlot  *ItemStackV1 `json:"input_slot,omitempty"`
	OutputSlot *ItemStackV1 `json:"output_slot,omitempty"`
}

type FluidStackV1 struct {
	Fluid  string `json:"fluid"`
	Amount int    `json:"amount"`
}

type ItemStackV1 struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write to a temp file first so a crash never leaves a truncated
	// snapshot under the final name.
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is for tooling; gob carries the header too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
