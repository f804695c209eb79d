package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/pokebot/go-controller/internal/experience"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/game"
	"github.com/danielpatrickdp/pokebot/go-controller/internal/store"
)

// #region log-commit
// LogCommit writes a save attempt to the commit_log table.
func LogCommit(db *sql.DB, entry store.CommitEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO commit_log (version_id, trigger_type, detail_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		entry.Trigger,
		nullIfEmpty(entry.DetailJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.UTC().Format(store.TimeLayout),
	)
	if err != nil {
		return fmt.Errorf("log commit: %w", err)
	}
	return nil
}

// #endregion log-commit

// #region journal
// FromExperience builds the journal row for e.
func FromExperience(e experience.Experience, phases PhaseDurations, meta map[string]any) JournalEntry {
	entry := JournalEntry{
		ID:                   e.ID,
		CreatedAt:            e.CreatedAt,
		ClientID:             e.ClientID,
		EpisodeID:            e.EpisodeID,
		Action:               e.Action,
		Reward:               e.Reward,
		Objectives:           e.Objectives,
		Scene:                e.State.Scene,
		State:                e.State,
		PredictionConfidence: e.Prediction.Confidence,
		Phases:               phases,
		Metadata:             meta,
	}
	if e.Frame != nil {
		entry.FrameID = e.Frame.ID
	}
	if e.NextState != nil {
		entry.NextScene = e.NextState.Scene
	}
	return entry
}

// WriteEntry inserts one journal row.
func WriteEntry(db *sql.DB, e JournalEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	stateJSON, err := json.Marshal(e.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	phasesJSON, err := json.Marshal(e.Phases)
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}
	var metaJSON any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = string(b)
	}

	_, err = db.Exec(
		`INSERT INTO experience_journal (id, created_at, client_id, frame_id, episode_id, action,
		     reward, reward_navigation, reward_battle, reward_story, scene, next_scene,
		     state_json, prediction_confidence, phase_durations_json, metadata_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC().Format(store.TimeLayout), e.ClientID, e.FrameID, e.EpisodeID, string(e.Action),
		e.Reward, e.Objectives.Navigation, e.Objectives.Battle, e.Objectives.Story,
		string(e.Scene), nullIfEmpty(string(e.NextScene)),
		string(stateJSON), e.PredictionConfidence, string(phasesJSON), metaJSON,
	)
	if err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	return nil
}

// Filter narrows ReadEntries. Zero values mean no restriction.
type Filter struct {
	ClientID  string
	EpisodeID string
	Limit     int
}

// ReadEntries returns journal rows oldest first.
func ReadEntries(db *sql.DB, f Filter) ([]JournalEntry, error) {
	q := `SELECT id, created_at, client_id, frame_id, episode_id, action, reward,
	             reward_navigation, reward_battle, reward_story, scene, next_scene,
	             state_json, prediction_confidence, phase_durations_json, metadata_json
	      FROM experience_journal WHERE 1=1`
	var args []any
	if f.ClientID != "" {
		q += ` AND client_id = ?`
		args = append(args, f.ClientID)
	}
	if f.EpisodeID != "" {
		q += ` AND episode_id = ?`
		args = append(args, f.EpisodeID)
	}
	q += ` ORDER BY created_at ASC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var created, action, scene string
		var nextScene, stateJSON, phasesJSON, metaJSON sql.NullString
		var conf sql.NullFloat64
		if err := rows.Scan(&e.ID, &created, &e.ClientID, &e.FrameID, &e.EpisodeID, &action, &e.Reward,
			&e.Objectives.Navigation, &e.Objectives.Battle, &e.Objectives.Story, &scene, &nextScene,
			&stateJSON, &conf, &phasesJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(store.TimeLayout, created)
		e.Action = game.Action(action)
		e.Scene = game.Scene(scene)
		e.NextScene = game.Scene(nextScene.String)
		e.PredictionConfidence = conf.Float64
		if stateJSON.Valid {
			if err := json.Unmarshal([]byte(stateJSON.String), &e.State); err != nil {
				return nil, fmt.Errorf("unmarshal state %s: %w", e.ID, err)
			}
		}
		if phasesJSON.Valid {
			if err := json.Unmarshal([]byte(phasesJSON.String), &e.Phases); err != nil {
				return nil, fmt.Errorf("unmarshal phases %s: %w", e.ID, err)
			}
		}
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountEntries returns the number of journal rows.
func CountEntries(db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM experience_journal`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

// #endregion journal

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
