package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"plenisher.ai/internal/persistence/snapshot"
	simenc "plenisher.ai/internal/sim/encoding"
	"plenisher.ai/internal/sim/world"
)

// rollbackCmd reverts fluid placements recorded in the audit log onto a
// snapshot and writes the result as a new snapshot file.
func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	sinceTick := fs.Uint64("since_tick", 0, "rollback placements since tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "rollback placements up to tick (inclusive, optional; defaults to snapshot tick)")
	resetMachines := fs.Bool("reset_machines", false, "also clear every machine's fill calculation so it refills on resume")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	endTick := *toTick
	if endTick == 0 || endTick > snap.Header.Tick {
		endTick = snap.Header.Tick
	}

	recs, err := readPlacements(worldDir, *sinceTick, endTick, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching placements; nothing to rollback")
		return
	}

	applied, skipped, err := applyRollback(&snap, recs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rollback:", err)
		os.Exit(1)
	}
	if *resetMachines {
		for i := range snap.Machines {
			snap.Machines[i].Finished = false
			snap.Machines[i].Frontier = nil
			snap.Machines[i].Visited = nil
		}
	}

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Tick))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s tick=%d aabb=%s since=%d to=%d entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Tick, *aabb, *sinceTick, endTick, len(recs), applied, skipped, *outPath)
}

type auditRec struct {
	Seq   uint64
	Entry world.AuditEntry
}

// readPlacements collects PLACE_FLUID entries in the window, newest first.
func readPlacements(worldDir string, sinceTick, toTick uint64, min, max [3]int) ([]auditRec, error) {
	var out []auditRec
	var seq uint64
	err := forEachAudit(worldDir, func(e world.AuditEntry) error {
		seq++
		if e.Action != "PLACE_FLUID" {
			return nil
		}
		if e.Tick < sinceTick || e.Tick > toTick {
			return nil
		}
		if !withinAABB(e.Pos, min, max) {
			return nil
		}
		out = append(out, auditRec{Seq: seq, Entry: e})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reverse chronological apply: highest tick first; for same tick use reverse read order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.Tick != out[j].Entry.Tick {
			return out[i].Entry.Tick > out[j].Entry.Tick
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// applyRollback writes each record's From block back into the snapshot.
// Records outside the stored chunks are skipped: a placement always edits its
// chunk, so a missing chunk means the snapshot predates it.
func applyRollback(snap *snapshot.SnapshotV1, recs []auditRec) (applied, skipped int, err error) {
	if snap == nil || len(recs) == 0 {
		return 0, 0, nil
	}
	const volume = world.ChunkSize * world.ChunkSize * world.ChunkSize

	type decoded struct {
		idx    int
		blocks []uint16
	}
	chunks := map[world.ChunkKey]*decoded{}
	for i, ch := range snap.Chunks {
		chunks[world.ChunkKey{CX: ch.CX, CY: ch.CY, CZ: ch.CZ}] = &decoded{idx: i}
	}

	for _, r := range recs {
		p := r.Entry.Pos
		if p[1] < 0 || p[1] >= snap.Height {
			skipped++
			continue
		}
		k := world.ChunkKey{
			CX: floorDiv(p[0], world.ChunkSize),
			CY: floorDiv(p[1], world.ChunkSize),
			CZ: floorDiv(p[2], world.ChunkSize),
		}
		d := chunks[k]
		if d == nil {
			skipped++
			continue
		}
		if d.blocks == nil {
			d.blocks, err = simenc.DecodeRLE(snap.Chunks[d.idx].Blocks, volume)
			if err != nil {
				return applied, skipped, fmt.Errorf("chunk %v: %w", k, err)
			}
		}
		lx, ly, lz := mod(p[0], world.ChunkSize), mod(p[1], world.ChunkSize), mod(p[2], world.ChunkSize)
		d.blocks[lx+lz*world.ChunkSize+ly*world.ChunkSize*world.ChunkSize] = r.Entry.From
		applied++
	}

	for _, d := range chunks {
		if d.blocks != nil {
			snap.Chunks[d.idx].Blocks = simenc.EncodeRLE(d.blocks)
		}
	}
	return applied, skipped, nil
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
