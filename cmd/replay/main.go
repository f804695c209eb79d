package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/logging"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/replay"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

const rewardTolerance = 1e-9

// #region main

func main() {
	dbPath := flag.String("db", "", "path to pokebot.db (journal mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	clientID := flag.String("client", "", "journal mode: replay only this client")
	saveEvery := flag.Int("save-every", 0, "journal mode: nudges per save (default 1)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/pokebot.db [--client id] [--save-every n]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *clientID, *saveEvery)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

func runDBMode(dbPath, clientID string, saveEvery int) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	var rootID string
	err = st.DB().QueryRow(
		`SELECT version_id FROM policy_versions WHERE parent_id IS NULL ORDER BY created_at ASC LIMIT 1`,
	).Scan(&rootID)
	start := store.PolicyRecord{VersionID: "zero"}
	if err == nil {
		if start, err = st.Version(rootID); err != nil {
			fmt.Fprintf(os.Stderr, "get root policy: %v\n", err)
			return 2
		}
	}

	entries, err := logging.ReadEntries(st.DB(), logging.Filter{ClientID: clientID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "read journal: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no experience_journal entries found")
		return 2
	}

	// Consecutive journal rows are consecutive learning frames, so every
	// replayed window matches the recorded one except the first two rows,
	// which only fill the window.
	cfg := replay.DefaultConfig()
	if saveEvery > 0 {
		cfg.SaveEvery = saveEvery
	}
	results, final := replay.Replay(start, replay.StepsFromJournal(entries), cfg)
	want := replay.ExpectedFromJournal(entries)

	code := printComparison(results, want)
	printSummary(replay.Summarize(results, final))
	return code
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results, final := replay.Replay(f.StartPolicy(), f.ToSteps(), f.Config.ToReplayConfig())

	want := make(map[string]float64)
	actions := make(map[string]string)
	for _, e := range f.Expected {
		actions[e.StepID] = e.Action
		if e.Reward != nil {
			want[e.StepID] = *e.Reward
		}
	}

	code := printComparison(results, want)
	for _, r := range results {
		exp, ok := actions[r.StepID]
		if !ok || exp == "" || !r.Rewarded {
			continue
		}
		if exp != r.Action {
			fmt.Printf("step %s: expected %s, replayed %s (%s)\n", r.StepID, exp, r.Action, r.Reason)
			code = 1
		}
	}
	printSummary(replay.Summarize(results, final))
	return code
}

// #endregion fixture-mode

// #region output

// printComparison outputs a reward table for rewarded steps and returns the
// exit code: 1 when any recorded reward diverges.
func printComparison(results []replay.Result, want map[string]float64) int {
	fmt.Printf("%-38s| %-8s| %-10s| %-10s| %-14s| %s\n", "Step", "Action", "Expected", "Replayed", "Outcome", "Match")
	fmt.Printf("%-38s+%-9s+%-11s+%-11s+%-15s+%s\n",
		"--------------------------------------", "---------", "-----------", "-----------", "---------------", "------")

	mismatched := make(map[string]bool)
	for _, m := range replay.CompareRewards(results, want, rewardTolerance) {
		mismatched[m.StepID] = true
	}

	matches, total := 0, 0
	for _, r := range results {
		if !r.Rewarded {
			continue
		}
		exp, ok := want[r.StepID]
		expStr, match := "-", "-"
		if ok {
			total++
			expStr = fmt.Sprintf("%.4f", exp)
			match = "OK"
			if mismatched[r.StepID] {
				match = "DIFF"
			} else {
				matches++
			}
		}
		fmt.Printf("%-38s| %-8s| %-10s| %-10.4f| %-14s| %s\n",
			r.StepID, r.RewardAction, expStr, r.Reward, r.Action, match)
	}

	diverge := total - matches
	fmt.Printf("\nRewards: %d compared, %d match, %d diverge\n", total, matches, diverge)
	if diverge > 0 {
		return 1
	}
	return 0
}

func printSummary(s replay.Summary) {
	fmt.Printf("Steps: %d, rewarded: %d, total reward %.4f\n", s.TotalSteps, s.Rewarded, s.TotalReward)
	fmt.Printf("Saves: %d commit, %d gate_reject, %d eval_rollback, %d no_op\n",
		s.Commits, s.GateRejects, s.EvalRollbacks, s.NoOps)
	fmt.Printf("Final policy %s (updates=%d, max |logit| %.4f)\n",
		s.FinalPolicy.VersionID, s.FinalPolicy.Updates, floats.Norm(s.FinalPolicy.Logits[:], math.Inf(1)))
}

// #endregion output
