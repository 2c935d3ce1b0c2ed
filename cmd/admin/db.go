package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"plenisher.ai/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}

	db, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()
	ctx := context.Background()

	switch q {
	case "summary":
		s, err := indexdb.ReadSummary(ctx, db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "summary:", err)
			os.Exit(1)
		}
		printJSON(s)

	case "placements":
		rows, err := indexdb.RecentPlacements(ctx, db, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "snapshots":
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := db.Query(`SELECT tick,path,seed,height,chunks,machines,finished FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     int64  `json:"tick"`
				Path     string `json:"path"`
				Seed     int64  `json:"seed"`
				Height   int    `json:"height"`
				Chunks   int    `json:"chunks"`
				Machines int    `json:"machines"`
				Finished int    `json:"finished"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Seed, &r.Height, &r.Chunks, &r.Machines, &r.Finished); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "resets":
		if *limit <= 0 {
			*limit = 20
		}
		rows, err := db.Query(`SELECT tick,actor,x,y,z,COALESCE(reason,'') FROM resets ORDER BY tick DESC, seq DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   int64  `json:"tick"`
				Actor  string `json:"actor"`
				Pos    [3]int `json:"pos"`
				Reason string `json:"reason,omitempty"`
			}
			if err := rows.Scan(&r.Tick, &r.Actor, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Reason); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "machines":
		// Latest mirrored state per machine.
		rows, err := db.Query(`SELECT s.x,s.y,s.z,s.tick,s.finished,COALESCE(s.fluid,''),s.amount,s.energy,s.frontier,s.visited
			FROM machine_states s
			JOIN (SELECT x,y,z,MAX(tick) AS tick FROM machine_states GROUP BY x,y,z) m
			ON s.x=m.x AND s.y=m.y AND s.z=m.z AND s.tick=m.tick
			ORDER BY s.x,s.y,s.z`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Pos      [3]int  `json:"pos"`
				Tick     int64   `json:"tick"`
				Finished bool    `json:"finished"`
				Fluid    string  `json:"fluid,omitempty"`
				Amount   int     `json:"amount"`
				Energy   float64 `json:"energy"`
				Frontier int     `json:"frontier"`
				Visited  int     `json:"visited"`
			}
			if err := rows.Scan(&r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Tick, &r.Finished, &r.Fluid, &r.Amount, &r.Energy, &r.Frontier, &r.Visited); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] summary|placements|snapshots|resets|machines")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
