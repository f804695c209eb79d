package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoNonFinite VetoType = "non_finite"
	VetoDeltaNorm VetoType = "delta_norm"
	VetoLogitCap  VetoType = "logit_cap"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region gate-config
// Config holds thresholds for gate decisions.
type Config struct {
	MaxDeltaNorm float64 `yaml:"max_delta_norm" json:"max_delta_norm"` // max L2 norm of the logit delta per save
	MaxLogit     float64 `yaml:"max_logit" json:"max_logit"`           // hard cap on any single |logit|
}

// DefaultConfig returns defaults sized for a save every 50 nudges.
func DefaultConfig() Config {
	return Config{
		MaxDeltaNorm: 1.0,
		MaxLogit:     5.0,
	}
}

// #endregion gate-config

// #region gate-decision
// Decision is the output of the gate evaluation.
type Decision struct {
	Action      string // "commit" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal
	SoftScore   float64 // 0-1 composite of soft signals, logged only
	Entropy     float64
}

// #endregion gate-decision
