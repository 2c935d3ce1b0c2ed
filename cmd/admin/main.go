package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "plenisher.ai/internal/persistence/log"
	"plenisher.ai/internal/persistence/snapshot"
	"plenisher.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "reset":
			resetCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "events":
			eventsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// inspectCmd prints a summary of a snapshot file without loading a world.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	headerOnly := fs.Bool("header", false, "print only the header")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" && strings.TrimSpace(*worldID) != "" {
		path = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or -world")
		os.Exit(2)
	}

	if *headerOnly {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read header:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(summarizeSnapshot(path, snap))
}

type snapshotSummary struct {
	Path     string           `json:"path"`
	Header   snapshot.Header  `json:"header"`
	Seed     int64            `json:"seed"`
	Height   int              `json:"height"`
	Chunks   int              `json:"chunks"`
	Machines []machineSummary `json:"machines"`
}

type machineSummary struct {
	Pos      [3]int `json:"pos"`
	Finished bool   `json:"finished"`
	Fluid    string `json:"fluid,omitempty"`
	Amount   int    `json:"amount"`
	Frontier int    `json:"frontier"`
	Visited  int    `json:"visited"`
}

func summarizeSnapshot(path string, snap snapshot.SnapshotV1) snapshotSummary {
	s := snapshotSummary{
		Path:     path,
		Header:   snap.Header,
		Seed:     snap.Seed,
		Height:   snap.Height,
		Chunks:   len(snap.Chunks),
		Machines: make([]machineSummary, 0, len(snap.Machines)),
	}
	for _, m := range snap.Machines {
		ms := machineSummary{
			Pos:      m.Pos,
			Finished: m.Finished,
			Frontier: len(m.Frontier),
			Visited:  len(m.Visited),
		}
		if m.Fluid != nil {
			ms.Fluid = m.Fluid.Fluid
			ms.Amount = m.Fluid.Amount
		}
		s.Machines = append(s.Machines, ms)
	}
	return s
}

// eventsCmd replays the audit log, optionally filtered by action and tick.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	action := fs.String("action", "", "action filter, e.g. PLACE_FLUID (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	err := forEachAudit(worldDir, func(e world.AuditEntry) error {
		if e.Tick < *sinceTick {
			return nil
		}
		if *action != "" && e.Action != *action {
			return nil
		}
		printJSON(e)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
}

// forEachAudit visits every audit entry of a world in write order.
func forEachAudit(worldDir string, fn func(world.AuditEntry) error) error {
	dir := filepath.Join(worldDir, "audit")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "audit-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	// Hourly file names sort chronologically.
	sort.Strings(names)

	for _, name := range names {
		err := persistlog.ReadJSONL(filepath.Join(dir, name), func(line []byte) error {
			var e world.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", name, err)
			}
			return fn(e)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
