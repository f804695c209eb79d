package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/logging"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/update"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to pokebot.db")
	last := flag.Int("last", 20, "show N most recent versions")
	version := flag.String("version", "", "show single version detail")
	action := flag.String("action", "", "add one action's probability column (e.g. A, START)")
	journal := flag.Int("journal", 0, "show N most recent journal entries instead of versions")
	client := flag.String("client", "", "journal: filter by client id")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/pokebot.db [--last N] [--version id] [--action A] [--journal N [--client id]] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch {
	case *journal > 0:
		err = runJournalMode(st, *journal, *client, *jsonOut)
	case *version != "":
		err = runDetailMode(st, *version, *jsonOut)
	default:
		err = runListMode(st, *last, game.Action(*action), *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID  string   `json:"version_id"`
	Updates    int      `json:"updates"`
	LogitNorm  float64  `json:"logit_norm"`
	Entropy    float64  `json:"entropy"`
	TopAction  string   `json:"top_action"`
	TopProb    float64  `json:"top_probability"`
	DeltaNorm  *float64 `json:"delta_norm,omitempty"`
	Decision   string   `json:"decision"`
	Reason     string   `json:"reason,omitempty"`
	Score      float64  `json:"score"`
	CreatedAt  string   `json:"created_at"`
	ActionProb *float64 `json:"action_probability,omitempty"`
}

func runListMode(st *store.Store, last int, action game.Action, jsonOut bool) error {
	versions, err := st.ListWithCommits(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	// store returns newest first; print chronologically
	rows := make([]listRow, len(versions))
	for i, v := range versions {
		probs := update.Softmax(v.Logits[:])
		top := floats.MaxIdx(probs)
		r := listRow{
			VersionID: v.VersionID,
			Updates:   v.Updates,
			LogitNorm: floats.Norm(v.Logits[:], 2),
			Entropy:   update.Entropy(probs),
			TopAction: actionName(top),
			TopProb:   probs[top],
			Decision:  v.Decision,
			Reason:    v.Reason,
			Score:     verifierScore(v.Decision),
			CreatedAt: v.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
		if sr := parseSaveRecord(v.DetailJSON); sr != nil {
			dn := sr.DeltaNorm
			r.DeltaNorm = &dn
		}
		if idx := action.Index(); idx >= 0 {
			p := probs[idx]
			r.ActionProb = &p
		}
		rows[len(versions)-1-i] = r
	}

	if jsonOut {
		return printJSON(rows)
	}
	printListTable(rows, action)
	return nil
}

func printListTable(rows []listRow, action game.Action) {
	extra := action.Index() >= 0
	fmt.Printf("%-10s  %7s  %9s  %7s  %-12s  %8s  %-10s  %5s", "Version", "Updates", "Logit Nrm", "Entropy", "Top", "Delta", "Decision", "Score")
	if extra {
		fmt.Printf("  %8s", "P("+string(action)+")")
	}
	fmt.Printf("  %s\n", "Time")

	for _, r := range rows {
		delta := "-"
		if r.DeltaNorm != nil {
			delta = fmt.Sprintf("%.4f", *r.DeltaNorm)
		}
		decision := r.Decision
		if decision == "" {
			decision = "root"
		}
		fmt.Printf("%-10s  %7d  %9.4f  %7.4f  %-12s  %8s  %-10s  %5.2f",
			shortID(r.VersionID), r.Updates, r.LogitNorm, r.Entropy,
			fmt.Sprintf("%s %.3f", r.TopAction, r.TopProb), delta, decision, r.Score)
		if extra && r.ActionProb != nil {
			fmt.Printf("  %8.4f", *r.ActionProb)
		}
		fmt.Printf("  %s\n", r.CreatedAt)
	}
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	VersionID  string              `json:"version_id"`
	ParentID   string              `json:"parent_id"`
	CreatedAt  string              `json:"created_at"`
	Updates    int                 `json:"updates"`
	Decision   string              `json:"decision"`
	Reason     string              `json:"reason"`
	Score      float64             `json:"score"`
	Actions    []actionDetail      `json:"actions"`
	SaveRecord *logging.SaveRecord `json:"save_record,omitempty"`
}

type actionDetail struct {
	Action      string  `json:"action"`
	Logit       float64 `json:"logit"`
	Probability float64 `json:"probability"`
}

func runDetailMode(st *store.Store, versionID string, jsonOut bool) error {
	rec, err := st.Version(versionID)
	if err != nil {
		return err
	}
	out := detailOutput{
		VersionID: rec.VersionID,
		ParentID:  rec.ParentID,
		CreatedAt: rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Updates:   rec.Updates,
	}
	// the latest commit row for this version, if any
	versions, err := st.ListWithCommits(math.MaxInt32)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.VersionID == versionID {
			out.Decision, out.Reason = v.Decision, v.Reason
			out.SaveRecord = parseSaveRecord(v.DetailJSON)
			break
		}
	}
	out.Score = verifierScore(out.Decision)

	probs := update.Softmax(rec.Logits[:])
	for i, l := range rec.Logits {
		out.Actions = append(out.Actions, actionDetail{Action: actionName(i), Logit: l, Probability: probs[i]})
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Version:  %s\n", out.VersionID)
	fmt.Printf("Parent:   %s\n", out.ParentID)
	fmt.Printf("Created:  %s\n", out.CreatedAt)
	fmt.Printf("Updates:  %d\n", out.Updates)
	fmt.Printf("Decision: %s\n", out.Decision)
	fmt.Printf("Reason:   %s\n", out.Reason)
	fmt.Printf("Score:    %.2f\n", out.Score)

	fmt.Printf("\nActions:\n")
	for _, a := range out.Actions {
		fmt.Printf("  %-8s logit %+.4f  p %.4f\n", a.Action, a.Logit, a.Probability)
	}

	if sr := out.SaveRecord; sr != nil {
		fmt.Printf("\nSave Record:\n")
		fmt.Printf("  Nudges:      %d\n", sr.Nudges)
		fmt.Printf("  Delta Norm:  %.4f\n", sr.DeltaNorm)
		fmt.Printf("  Entropy:     %.4f\n", sr.Entropy)
		fmt.Printf("  Vetoed:      %v\n", sr.GateVetoed)
		fmt.Printf("  Soft Score:  %.2f\n", sr.GateSoftScore)
		fmt.Printf("  Eval Passed: %v %s\n", sr.EvalPassed, sr.EvalReason)
	}
	return nil
}

// #endregion detail-mode

// #region journal-mode

func runJournalMode(st *store.Store, n int, clientID string, jsonOut bool) error {
	total, err := logging.CountEntries(st.DB())
	if err != nil {
		return err
	}
	entries, err := logging.ReadEntries(st.DB(), logging.Filter{ClientID: clientID})
	if err != nil {
		return err
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if jsonOut {
		return printJSON(entries)
	}

	fmt.Printf("%-10s  %-8s  %-8s  %-13s  %-13s  %8s  %6s  %6s  %6s  %8s\n",
		"Entry", "Client", "Action", "Scene", "Next", "Reward", "Nav", "Battle", "Story", "Total us")
	for _, e := range entries {
		fmt.Printf("%-10s  %-8s  %-8s  %-13s  %-13s  %8.4f  %6.2f  %6.2f  %6.2f  %8d\n",
			shortID(e.ID), shortID(e.ClientID), e.Action, e.Scene, e.NextScene, e.Reward,
			e.Objectives.Navigation, e.Objectives.Battle, e.Objectives.Story, e.Phases.TotalUs)
	}
	fmt.Printf("\n%d shown, %d in journal\n", len(entries), total)
	return nil
}

// #endregion journal-mode

// #region verifier

func verifierScore(decision string) float64 {
	switch decision {
	case "commit":
		return 1.0
	case "rollback":
		return -1.0
	case "no_op":
		return 0.5
	default:
		return 0.0
	}
}

// #endregion verifier

// #region output

func actionName(i int) string {
	if a, ok := game.ActionFromIndex(i); ok {
		return string(a)
	}
	return fmt.Sprintf("#%d", i)
}

func parseSaveRecord(detailJSON string) *logging.SaveRecord {
	if detailJSON == "" {
		return nil
	}
	var sr logging.SaveRecord
	if err := json.Unmarshal([]byte(detailJSON), &sr); err == nil && sr.ToVersion != "" {
		return &sr
	}
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
