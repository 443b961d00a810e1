package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"gardenperf.ai/internal/persistence/snapshot"
	"gardenperf.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "disable", "enable", "snapshot":
			toggleCmd(os.Args[1], os.Args[2:])
			return
		case "tail":
			tailCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// logCmd replays the compressed transition log, which stays complete even
// when the sqlite index dropped writes.
func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id")
	entityID := fs.Int64("entity", 0, "entity id filter (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick to print (inclusive)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	recs, err := readTransitions(filepath.Join(*dataDir, "worlds", *worldID), *sinceTick, *entityID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read transitions:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range recs {
		_ = enc.Encode(r)
	}
}

func readTransitions(worldDir string, sinceTick uint64, entityID int64) ([]world.TransitionRecord, error) {
	dir := filepath.Join(worldDir, "transitions")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "transitions-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []world.TransitionRecord
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := scanFile(path, func(line []byte) error {
			var r world.TransitionRecord
			if err := json.Unmarshal(line, &r); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", name, err)
			}
			if r.Tick < sinceTick {
				return nil
			}
			if entityID != 0 && r.EntityID != entityID {
				return nil
			}
			out = append(out, r)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanFile(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// inspectCmd prints the concealed grids held in a snapshot file.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "sector_1", "world id")
	path := fs.String("snapshot", "", "snapshot file (default: latest for -world)")
	_ = fs.Parse(args)

	p := *path
	if p == "" {
		p = snapshot.Latest(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if p == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found")
		os.Exit(1)
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	fmt.Printf("world=%s tick=%d concealed=%d disabled=%v\n", snap.Header.WorldID, snap.Header.Tick, len(snap.Concealed), snap.Settings.Disabled)
	sort.Slice(snap.Concealed, func(i, j int) bool { return snap.Concealed[i].ID < snap.Concealed[j].ID })
	for _, c := range snap.Concealed {
		fmt.Printf("%d\t%s\towner=%d\tpos=(%.1f,%.1f,%.1f)\tblocked=%v\n", c.ID, c.DisplayName, c.OwnerID, c.Pos[0], c.Pos[1], c.Pos[2], c.RevealBlocked)
	}
}
