// Package editor is the product photo editor's pipeline orchestrator.
//
// A Session is one loaded image plus its edits: tone adjustments, background,
// shadow and rotation. Sessions are values and every command returns a new
// one together with a Plan naming the stages that must re-run. Surfaces held
// by a session are never modified, so Composed and View can always rebuild
// the picture from the session alone.
//
// Editor serializes commands on a single session and owns the one
// asynchronous step, background removal, during which it rejects all other
// commands with ErrBusy.
package editor
