package editor

import (
	"fmt"
	"strings"
)

// State is the position of a session in the editing pipeline.
//
//	Loaded ──remove──▶ Removing ──ok──▶ Removed ──edit──▶ Composed ──export──▶ Exported
//	   ▲                  │ fail                                                    │
//	   └──────────────────┘◀────────────────────── undo ────────────────────────────┘
type State int

const (
	// StateLoaded holds the original only.
	StateLoaded State = iota
	// StateRemoving has a background-removal call in flight.
	StateRemoving
	// StateRemoved has an isolated foreground and no applied background, shadow or tone edit.
	StateRemoved
	// StateComposed has background, shadow or tone edits applied over the foreground.
	StateComposed
	// StateExported has produced an export from the current edits.
	StateExported
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateRemoving:
		return "removing"
	case StateRemoved:
		return "removed"
	case StateComposed:
		return "composed"
	case StateExported:
		return "exported"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Plan is the set of pipeline stages a command requires to re-run.
type Plan uint8

const (
	StageComposite Plan = 1 << iota
	StageTone
	StageRotate
)

// Has reports whether every stage in stages is part of p.
func (p Plan) Has(stages Plan) bool {
	return p&stages == stages
}

func (p Plan) String() string {
	if p == 0 {
		return "none"
	}
	var parts []string
	if p.Has(StageComposite) {
		parts = append(parts, "composite")
	}
	if p.Has(StageTone) {
		parts = append(parts, "tone")
	}
	if p.Has(StageRotate) {
		parts = append(parts, "rotate")
	}
	return strings.Join(parts, "+")
}

// MarshalText renders the plan in JSON.
func (p Plan) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// planFor returns what an edit in state s must recompute. Without an
// isolated foreground, background and shadow mean nothing and only tone runs
// over the original. With one, everything is re-derived from scratch.
func planFor(s State, hasForeground bool) Plan {
	if !hasForeground || s == StateLoaded {
		return StageTone | StageRotate
	}
	return StageComposite | StageTone | StageRotate
}
