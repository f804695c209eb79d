package store

import "time"

// NumLogits is the width of the local policy: one logit per controller
// button plus one spare output kept for wire compatibility with the trainer.
const NumLogits = 12

// #region policy-record
// PolicyRecord is a versioned snapshot of the local policy logits.
type PolicyRecord struct {
	VersionID   string
	ParentID    string
	Logits      [NumLogits]float64
	Updates     int
	CreatedAt   time.Time
	MetricsJSON string
}

// #endregion policy-record

// #region commit-entry
// CommitEntry links a policy version to the save attempt that produced it.
type CommitEntry struct {
	VersionID  string
	Trigger    string
	DetailJSON string
	Decision   string // "commit" | "reject" | "rollback"
	Reason     string
	CreatedAt  time.Time
}

// #endregion commit-entry

// #region version-with-commit
// VersionWithCommit pairs a policy version with its commit log fields.
type VersionWithCommit struct {
	PolicyRecord
	Decision   string
	Reason     string
	DetailJSON string
}

// #endregion version-with-commit
