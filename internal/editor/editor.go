package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ironsheep/photo-studio-mcp/internal/imaging"
	"github.com/ironsheep/photo-studio-mcp/internal/removal"
)

// Loader resolves an image source into a surface. *imaging.Loader implements it.
type Loader interface {
	Load(ctx context.Context, source string) (*image.NRGBA, *imaging.SourceInfo, error)
}

// Options configures an Editor.
type Options struct {
	// Remover isolates the foreground. RemoveBackground fails without one.
	Remover removal.Remover

	// RemovalTimeout bounds a removal call. Zero means no limit.
	RemovalTimeout time.Duration

	// Progress maps collaborator progress into the overall indicator.
	// The zero value selects DefaultProgressRange.
	Progress ProgressRange

	// NewRand returns the random source for one render of the marble and
	// light-noise backgrounds. Nil selects a freshly seeded generator per
	// render, so those patterns differ between renders.
	NewRand func() imaging.Rand

	Logger *slog.Logger
}

// SeededRand returns a NewRand function whose renders are reproducible.
func SeededRand(seed uint64) func() imaging.Rand {
	return func() imaging.Rand {
		return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

func randomRand() imaging.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Editor owns one edit session and serializes the commands applied to it.
//
// Every command either fails and leaves the session as it was, or replaces
// the session with a new value. While a background removal is in flight
// every other command fails with ErrBusy; the removal itself cannot be
// cancelled once started.
type Editor struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	session  Session
	lastPlan Plan
	preview  *image.NRGBA
}

// New wraps an existing session.
func New(s Session, opts Options) *Editor {
	if opts.Progress == (ProgressRange{}) {
		opts.Progress = DefaultProgressRange
	}
	if opts.NewRand == nil {
		opts.NewRand = randomRand
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Editor{
		opts:     opts,
		log:      opts.Logger.With("session", s.ID),
		session:  s,
		lastPlan: StageTone | StageRotate,
	}
}

// Open loads source and starts a session on it. Any failure to fetch or
// decode is returned as a *LoadError.
func Open(ctx context.Context, loader Loader, source string, opts Options) (*Editor, error) {
	img, info, err := loader.Load(ctx, source)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}
	e := New(NewSession(img, *info), opts)
	e.log.Info("session opened", "width", info.Width, "height", info.Height, "format", info.Format)
	return e, nil
}

// Session returns the current session value.
func (e *Editor) Session() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// LastPlan returns the stages the most recent command required.
func (e *Editor) LastPlan() Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPlan
}

// SetAdjustments replaces the tone controls.
func (e *Editor) SetAdjustments(a imaging.Adjustments) (Session, Plan, error) {
	return e.apply("adjustments", func(s Session) (Session, Plan, error) { return s.WithAdjustments(a) })
}

// UpdateAdjustments applies change to the current tone controls under the
// session lock, so concurrent partial updates do not overwrite each other.
func (e *Editor) UpdateAdjustments(change func(imaging.Adjustments) imaging.Adjustments) (Session, Plan, error) {
	return e.apply("adjustments", func(s Session) (Session, Plan, error) {
		return s.WithAdjustments(change(s.Adjustments))
	})
}

// SetBackground replaces the background selection.
func (e *Editor) SetBackground(bg imaging.Background) (Session, Plan, error) {
	return e.apply("background", func(s Session) (Session, Plan, error) { return s.WithBackground(bg) })
}

// SetShadow replaces the shadow selection.
func (e *Editor) SetShadow(kind imaging.ShadowKind) (Session, Plan, error) {
	return e.apply("shadow", func(s Session) (Session, Plan, error) { return s.WithShadow(kind) })
}

// Rotate adds delta degrees (a multiple of 90) to the rotation.
func (e *Editor) Rotate(delta int) (Session, Plan, error) {
	return e.apply("rotate", func(s Session) (Session, Plan, error) { return s.Rotated(delta) })
}

// SetRotation sets the rotation to degrees (a multiple of 90).
func (e *Editor) SetRotation(degrees int) (Session, Plan, error) {
	return e.apply("rotation", func(s Session) (Session, Plan, error) { return s.WithRotation(degrees) })
}

// Undo discards every edit and derived surface, keeping the original.
func (e *Editor) Undo() (Session, Plan, error) {
	return e.apply("undo", func(s Session) (Session, Plan, error) {
		if s.State == StateRemoving {
			return s, 0, ErrBusy
		}
		if !s.Dirty() {
			return s, 0, ErrNotDirty
		}
		return s.Reset(), StageTone | StageRotate, nil
	})
}

func (e *Editor) apply(name string, cmd func(Session) (Session, Plan, error)) (Session, Plan, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, plan, err := cmd(e.session)
	if err != nil {
		return e.session, 0, err
	}
	e.log.Debug("command applied", "command", name, "from", e.session.State, "to", next.State, "plan", plan)
	e.session = next
	e.lastPlan = plan
	e.preview = nil
	return next, plan, nil
}

// RemoveBackground calls the removal collaborator on the original image and
// stores the isolated foreground.
//
// Removal is accepted whenever the session has no foreground yet, which
// includes a session exported before removal. The session is in
// StateRemoving for the duration of the call. On success it moves to
// StateRemoved; on any failure it returns to the exact session it had before
// and a *RemovalError is returned.
//
// progress, if non-nil, receives the overall completion in [0, 1]. The
// caller's ctx is not used for cancellation; only Options.RemovalTimeout
// bounds the call.
func (e *Editor) RemoveBackground(ctx context.Context, progress func(float64)) (Session, error) {
	notify := func(v float64) {
		if progress != nil {
			progress(v)
		}
	}

	e.mu.Lock()
	prev := e.session
	switch {
	case prev.State == StateRemoving:
		e.mu.Unlock()
		return prev, ErrBusy
	case prev.foreground != nil:
		e.mu.Unlock()
		return prev, fmt.Errorf("remove background in state %s: %w", prev.State, ErrInvalidState)
	case e.opts.Remover == nil:
		e.mu.Unlock()
		return prev, &RemovalError{Err: errors.New("no background remover configured")}
	}
	pending := prev
	pending.State = StateRemoving
	e.session = pending
	e.mu.Unlock()

	notify(0)
	started := time.Now()
	fg, err := e.isolate(ctx, prev.original, notify)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.session = prev
		e.log.Warn("background removal failed", "error", err, "elapsed", time.Since(started))
		return prev, &RemovalError{Err: err}
	}

	next := prev
	next.foreground = fg
	next.State = StateRemoved
	e.session = next
	e.lastPlan = planFor(next.State, true)
	e.preview = nil
	notify(1)
	e.log.Info("background removed", "elapsed", time.Since(started))
	return next, nil
}

// isolate runs the collaborator on a private copy of the original and
// converts its output into a new surface of the same size. Neither the copy
// nor the collaborator's image outlives the call.
func (e *Editor) isolate(ctx context.Context, original *image.NRGBA, notify func(float64)) (fg *image.NRGBA, err error) {
	ctx = context.WithoutCancel(ctx)
	if e.opts.RemovalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RemovalTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			fg, err = nil, fmt.Errorf("remover panicked: %v", r)
		}
	}()

	input := imaging.ToSurface(original)
	notify(e.opts.Progress.Start)
	out, err := e.opts.Remover.Remove(ctx, input, func(f float64) {
		notify(e.opts.Progress.Map(f))
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("remover returned no image")
	}
	notify(e.opts.Progress.End)

	ob, want := out.Bounds(), original.Bounds()
	if ob.Dx() != want.Dx() || ob.Dy() != want.Dy() {
		return nil, fmt.Errorf("remover returned %dx%d for a %dx%d image", ob.Dx(), ob.Dy(), want.Dx(), want.Dy())
	}
	if !removal.HasAlpha(out) {
		return nil, removal.ErrNoAlpha
	}
	return imaging.ToSurface(out), nil
}

// Preview renders the on-screen view: the full pipeline in preview mode
// (transparent backgrounds show a checkerboard) followed by rotation. The
// render is cached until the next command. The returned surface is a copy.
func (e *Editor) Preview() (*image.NRGBA, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.State == StateRemoving {
		return nil, ErrBusy
	}
	if e.preview == nil {
		view, err := View(e.session, imaging.ModePreview, e.opts.NewRand())
		if err != nil {
			return nil, err
		}
		e.preview = view
	}
	return imaging.ToSurface(e.preview), nil
}

// Output is an exported image.
type Output struct {
	PNG    []byte
	Width  int
	Height int
}

// Export re-runs the whole pipeline in export mode against the current
// session, rotates and encodes the result as PNG, and moves the session to
// StateExported. Nothing rendered earlier is reused.
func (e *Editor) Export() (*Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s.State == StateRemoving {
		return nil, ErrBusy
	}
	if !s.Dirty() {
		return nil, ErrNotDirty
	}

	view, err := View(s, imaging.ModeExport, e.opts.NewRand())
	if err != nil {
		return nil, err
	}
	png, err := imaging.EncodePNG(view)
	if err != nil {
		return nil, err
	}

	s.State = StateExported
	e.session = s
	e.log.Info("session exported", "width", view.Bounds().Dx(), "height", view.Bounds().Dy(), "bytes", len(png))
	return &Output{PNG: png, Width: view.Bounds().Dx(), Height: view.Bounds().Dy()}, nil
}
