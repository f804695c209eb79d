package policy

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/eval"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/gate"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/logging"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/monitoring"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/update"
)

// #endregion

// #region types

// Predictor produces an action distribution for a frame.
type Predictor interface {
	Predict(ctx context.Context, f *game.Frame) (game.Prediction, error)
}

// Config controls the local policy and its save cadence.
type Config struct {
	UpdateFrequency int           `yaml:"update_frequency"`
	Update          update.Config `yaml:"update"`
	Gate            gate.Config   `yaml:"gate"`
	Eval            eval.Config   `yaml:"eval"`
}

// DefaultConfig saves every 50 nudges.
func DefaultConfig() Config {
	return Config{
		UpdateFrequency: 50,
		Update:          update.DefaultConfig(),
		Gate:            gate.DefaultConfig(),
		Eval:            eval.DefaultConfig(),
	}
}

// SaveOutcome reports what a save attempt did.
type SaveOutcome struct {
	Action    string // "commit" | "gate_reject" | "eval_rollback" | "no_op"
	Reason    string
	VersionID string
	Metrics   update.Metrics
}

// #endregion types

// #region local

// Local is a softmax policy over NumLogits logits, nudged online by reward
// and persisted through gate, store and eval.
type Local struct {
	mu        sync.Mutex
	config    Config
	committed store.PolicyRecord
	logits    [store.NumLogits]float64
	pending   []update.Nudge
	actions   int

	store *store.Store
	gate  *gate.Gate
	eval  *eval.Harness
}

// NewLocal loads the active policy from st, creating a zero root when the
// database is empty. A nil store keeps versions in memory only.
func NewLocal(cfg Config, st *store.Store) (*Local, error) {
	l := &Local{
		config: cfg,
		store:  st,
		gate:   gate.NewGate(cfg.Gate),
		eval:   eval.NewHarness(cfg.Eval),
	}
	if st != nil {
		rec, err := st.CurrentOrInitial()
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		l.committed = rec
	}
	l.logits = l.committed.Logits
	return l, nil
}

// Predict returns the softmax of the live logits. The frame is not inspected.
func (l *Local) Predict(_ context.Context, _ *game.Frame) (game.Prediction, error) {
	l.mu.Lock()
	logits := l.logits
	l.mu.Unlock()

	probs := update.Softmax(logits[:])
	return game.Prediction{
		ActionProbabilities: probs,
		ValueEstimate:       0,
		Confidence:          floats.Max(probs),
	}, nil
}

// Logits returns a copy of the live logits.
func (l *Local) Logits() [store.NumLogits]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logits
}

// Committed returns the last version that passed gate and eval.
func (l *Local) Committed() store.PolicyRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed
}

// Pending is the number of nudges applied since the last save.
func (l *Local) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Observe nudges the logit of action by reward and saves every
// UpdateFrequency observed actions. saved is false when no save ran.
func (l *Local) Observe(action game.Action, reward float64) (out SaveOutcome, saved bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !update.Step(&l.logits, action.Index(), reward, l.config.Update) {
		return SaveOutcome{}, false, nil
	}
	l.pending = append(l.pending, update.Nudge{Action: action, Advantage: reward})
	l.actions++

	if l.config.UpdateFrequency <= 0 || l.actions%l.config.UpdateFrequency != 0 {
		return SaveOutcome{}, false, nil
	}
	out, err = l.save()
	return out, true, err
}

// Save folds pending nudges into a new version now.
func (l *Local) Save() (SaveOutcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save()
}

func (l *Local) save() (SaveOutcome, error) {
	res := update.Apply(l.committed, l.pending, l.config.Update)
	out := SaveOutcome{Metrics: res.Metrics, VersionID: l.committed.VersionID}
	l.pending = nil

	if res.Decision.Action == "no_op" {
		out.Action, out.Reason = "no_op", res.Decision.Reason
		l.logits = l.committed.Logits
		return out, nil
	}

	rec := logging.SaveRecord{
		FromVersion: l.committed.VersionID,
		ToVersion:   res.NewPolicy.VersionID,
		Nudges:      res.Metrics.Nudges,
		DeltaNorm:   res.Metrics.DeltaNorm,
		ActionsHit:  res.Metrics.ActionsHit,
		Thresholds: logging.SaveThresholds{
			MaxDeltaNorm:   l.config.Gate.MaxDeltaNorm,
			MaxLogit:       l.config.Gate.MaxLogit,
			MinEntropy:     l.config.Eval.MinEntropy,
			MaxProbability: l.config.Eval.MaxProbability,
			MaxLogitNorm:   l.config.Eval.MaxLogitNorm,
		},
	}

	decision := l.gate.Evaluate(l.committed, res.NewPolicy, res.Metrics)
	rec.GateAction, rec.GateSoftScore, rec.GateVetoed, rec.GateReason = decision.Action, decision.SoftScore, decision.Vetoed, decision.Reason
	rec.Entropy = decision.Entropy
	if decision.Action == "reject" {
		monitoring.Logf("[POLICY] gate reject: %s", decision.Reason)
		l.logits = l.committed.Logits
		out.Action, out.Reason = "gate_reject", decision.Reason
		return out, l.logCommit(res.NewPolicy.VersionID, "reject", decision.Reason, rec)
	}

	metricsJSON, _ := json.Marshal(res.Metrics)
	res.NewPolicy.MetricsJSON = string(metricsJSON)
	if l.store != nil {
		if err := l.store.Commit(res.NewPolicy); err != nil {
			l.logits = l.committed.Logits
			return out, fmt.Errorf("commit policy: %w", err)
		}
	}

	ev := l.eval.Run(res.NewPolicy)
	rec.EvalPassed, rec.EvalReason = ev.Passed, ev.Reason
	if !ev.Passed {
		monitoring.Logf("[POLICY] eval rollback: %s", ev.Reason)
		if l.store != nil {
			if err := l.store.Rollback(l.committed.VersionID); err != nil {
				return out, fmt.Errorf("rollback policy: %w", err)
			}
		}
		l.logits = l.committed.Logits
		out.Action, out.Reason = "eval_rollback", ev.Reason
		return out, l.logCommit(res.NewPolicy.VersionID, "rollback", ev.Reason, rec)
	}

	l.committed = res.NewPolicy
	out.Action, out.Reason, out.VersionID = "commit", decision.Reason, res.NewPolicy.VersionID
	monitoring.Logf("[POLICY] committed %s: %s", res.NewPolicy.VersionID, res.Decision.Reason)
	return out, l.logCommit(res.NewPolicy.VersionID, "commit", decision.Reason, rec)
}

func (l *Local) logCommit(versionID, decision, reason string, rec logging.SaveRecord) error {
	if l.store == nil {
		return nil
	}
	detail, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal save record: %w", err)
	}
	return logging.LogCommit(l.store.DB(), store.CommitEntry{
		VersionID:  versionID,
		Trigger:    "save",
		DetailJSON: string(detail),
		Decision:   decision,
		Reason:     reason,
	})
}

// #endregion local

// #region fallback

// Fallback asks Primary first and falls back to Secondary on error.
type Fallback struct {
	Primary   Predictor
	Secondary Predictor
}

func (f Fallback) Predict(ctx context.Context, fr *game.Frame) (game.Prediction, error) {
	if f.Primary != nil {
		p, err := f.Primary.Predict(ctx, fr)
		if err == nil {
			return p, nil
		}
		monitoring.Logf("[POLICY] remote predict failed, using local: %v", err)
	}
	return f.Secondary.Predict(ctx, fr)
}

// #endregion fallback
