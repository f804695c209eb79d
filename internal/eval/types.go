package eval

// #region eval-config
// Config holds thresholds for post-commit validation.
type Config struct {
	MinEntropy     float64 `yaml:"min_entropy" json:"min_entropy"`         // fail if the policy collapses below this many nats
	MaxProbability float64 `yaml:"max_probability" json:"max_probability"` // fail if one action dominates beyond this
	MaxLogitNorm   float64 `yaml:"max_logit_norm" json:"max_logit_norm"`   // fail if the L2 norm of the logits exceeds this
}

// DefaultConfig returns the post-commit thresholds.
func DefaultConfig() Config {
	return Config{
		MinEntropy:     1.0,
		MaxProbability: 0.9,
		MaxLogitNorm:   15.0,
	}
}

// #endregion eval-config

// #region eval-metric
// Metric captures a single validation check result.
type Metric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// Result is the output of post-commit validation.
type Result struct {
	Passed  bool
	Metrics []Metric
	Reason  string
}

// #endregion eval-result
