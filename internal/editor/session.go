package editor

import (
	"fmt"
	"image"

	"github.com/google/uuid"

	"github.com/ironsheep/photo-studio-mcp/internal/imaging"
)

// Session is one image and its edits. It is a value: every command returns
// a new Session and never modifies the surfaces it points to, so any Session
// can be rendered again from its fields alone.
type Session struct {
	ID     string
	Source imaging.SourceInfo

	Adjustments imaging.Adjustments
	Background  imaging.Background
	Shadow      imaging.ShadowKind
	// Rotation accumulates in degrees and is not normalized; four quarter
	// turns leave it at 360.
	Rotation int
	State    State

	original   *image.NRGBA
	foreground *image.NRGBA
}

// NewSession starts a session in StateLoaded around original. The session
// takes ownership of original, which must not be modified afterwards.
func NewSession(original *image.NRGBA, source imaging.SourceInfo) Session {
	b := original.Bounds()
	if source.Width == 0 && source.Height == 0 {
		source.Width, source.Height = b.Dx(), b.Dy()
	}
	return Session{
		ID:       uuid.NewString(),
		Source:   source,
		State:    StateLoaded,
		original: original,
	}
}

// Original returns the image as loaded. Callers must treat it as read-only.
func (s Session) Original() *image.NRGBA { return s.original }

// Foreground returns the isolated subject, if background removal has run.
// Callers must treat it as read-only.
func (s Session) Foreground() (*image.NRGBA, bool) {
	return s.foreground, s.foreground != nil
}

// Dirty reports whether the session differs from a freshly loaded one.
func (s Session) Dirty() bool {
	return !s.Adjustments.IsZero() ||
		s.Rotation != 0 ||
		s.Background != (imaging.Background{}) ||
		s.Shadow != imaging.ShadowNone ||
		s.State != StateLoaded
}

// Reset returns the session as it was right after loading: defaults for
// every edit, no foreground, and the same original.
func (s Session) Reset() Session {
	return Session{
		ID:       s.ID,
		Source:   s.Source,
		State:    StateLoaded,
		original: s.original,
	}
}

// WithAdjustments replaces the tone controls.
func (s Session) WithAdjustments(a imaging.Adjustments) (Session, Plan, error) {
	if err := a.Validate(); err != nil {
		return s, 0, err
	}
	return s.edit(func(n *Session) { n.Adjustments = a })
}

// WithBackground replaces the background selection.
func (s Session) WithBackground(bg imaging.Background) (Session, Plan, error) {
	return s.edit(func(n *Session) { n.Background = bg })
}

// WithShadow replaces the shadow selection.
func (s Session) WithShadow(kind imaging.ShadowKind) (Session, Plan, error) {
	if kind < imaging.ShadowNone || kind > imaging.ShadowAround {
		return s, 0, fmt.Errorf("unknown shadow kind: %v", kind)
	}
	return s.edit(func(n *Session) { n.Shadow = kind })
}

// WithRotation sets the stored rotation. degrees must be a multiple of 90.
func (s Session) WithRotation(degrees int) (Session, Plan, error) {
	if degrees%90 != 0 {
		return s, 0, fmt.Errorf("rotation of %d degrees is not a quarter turn", degrees)
	}
	return s.edit(func(n *Session) { n.Rotation = degrees })
}

// Rotated adds delta degrees to the stored rotation without normalizing.
func (s Session) Rotated(delta int) (Session, Plan, error) {
	return s.WithRotation(s.Rotation + delta)
}

// edit applies change to a copy of s and advances the state: sessions with
// a foreground become StateComposed, others stay (or return to) StateLoaded.
func (s Session) edit(change func(*Session)) (Session, Plan, error) {
	if s.State == StateRemoving {
		return s, 0, ErrBusy
	}
	next := s
	change(&next)
	if next.foreground != nil {
		next.State = StateComposed
	} else {
		next.State = StateLoaded
	}
	return next, planFor(next.State, next.foreground != nil), nil
}

// DisplaySize returns the width and height of the rendered view, which are
// swapped for quarter and three-quarter turns.
func (s Session) DisplaySize() (int, int) {
	b := s.original.Bounds()
	if n := imaging.NormalizeAngle(s.Rotation); n == 90 || n == 270 {
		return b.Dy(), b.Dx()
	}
	return b.Dx(), b.Dy()
}

// Snapshot is the JSON view of a session.
type Snapshot struct {
	ID              string              `json:"session_id"`
	State           State               `json:"state"`
	Dirty           bool                `json:"dirty"`
	CanExport       bool                `json:"can_export"`
	CanUndo         bool                `json:"can_undo"`
	HasForeground   bool                `json:"has_foreground"`
	Width           int                 `json:"width"`
	Height          int                 `json:"height"`
	Adjustments     imaging.Adjustments `json:"adjustments"`
	Background      string              `json:"background"`
	Shadow          string              `json:"shadow"`
	Rotation        int                 `json:"rotation"`
	DisplayRotation int                 `json:"display_rotation"`
	Source          imaging.SourceInfo  `json:"source"`
}

// Snapshot summarizes s.
func (s Session) Snapshot() Snapshot {
	w, h := s.DisplaySize()
	dirty := s.Dirty()
	idle := s.State != StateRemoving
	return Snapshot{
		ID:              s.ID,
		State:           s.State,
		Dirty:           dirty,
		CanExport:       dirty && idle,
		CanUndo:         dirty && idle,
		HasForeground:   s.foreground != nil,
		Width:           w,
		Height:          h,
		Adjustments:     s.Adjustments,
		Background:      s.Background.String(),
		Shadow:          s.Shadow.String(),
		Rotation:        s.Rotation,
		DisplayRotation: imaging.NormalizeAngle(s.Rotation),
		Source:          s.Source,
	}
}
