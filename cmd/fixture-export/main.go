package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/logging"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/replay"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to pokebot.db")
	last := flag.Int("last", 20, "number of most recent journal entries to export")
	client := flag.String("client", "", "export only this client's entries")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/pokebot.db --out path/to/fixture.json [--last N] [--client id]")
		os.Exit(2)
	}

	if err := run(*dbPath, *last, *client, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath string, last int, clientID, outPath string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	current, err := st.Current()
	if err != nil {
		return fmt.Errorf("get active policy: %w", err)
	}

	entries, err := logging.ReadEntries(st.DB(), logging.Filter{ClientID: clientID})
	if err != nil {
		return err
	}
	if len(entries) > last {
		entries = entries[len(entries)-last:]
	}
	if len(entries) < 3 {
		return fmt.Errorf("need at least 3 journal entries to fill a reward window, found %d", len(entries))
	}

	// #endregion extract

	// #region build-fixture

	fixture := replay.Fixture{
		Description: fmt.Sprintf("exported from %s: %d journal entries, active policy %s", dbPath, len(entries), current.VersionID),
		StartLogits: current.Logits,
		Config:      replay.FixtureConfig{SaveEvery: 1},
	}
	for _, e := range entries {
		s := e.State
		fixture.Steps = append(fixture.Steps, replay.FixtureStep{
			ID:     e.ID,
			Scene:  e.Scene,
			State:  &s,
			Action: e.Action,
		})
	}
	// The first and last rows have no complete window around them.
	for _, e := range entries[1 : len(entries)-1] {
		r := e.Reward
		fixture.Expected = append(fixture.Expected, replay.FixtureExpectedResult{StepID: e.ID, Reward: &r})
	}

	// #endregion build-fixture

	// #region write

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	fmt.Printf("Exported %d steps (%d expected rewards) to %s\n", len(fixture.Steps), len(fixture.Expected), outPath)
	return nil
}

// #endregion write
