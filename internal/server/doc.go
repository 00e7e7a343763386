// Package server implements the MCP (Model Context Protocol) server for the
// product photo editor.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Session lifecycle:
//   - editor_open: Load a product photo and start a session
//   - editor_state: Report state, edits and output size
//   - editor_close: Drop a session
//
// Edits:
//   - editor_set_adjustments: Exposure, contrast, highlights, shadows, whites, blacks
//   - editor_set_background: Original, transparent, solid, procedural or auto-contrast
//   - editor_set_shadow: None, base or around
//   - editor_rotate: Quarter-turn rotation
//   - editor_remove_background: Isolate the product (long running, reports progress)
//   - editor_undo: Return to the photo as opened
//
// Output:
//   - editor_preview: Checkerboard preview PNG
//   - editor_export: Final PNG
//   - editor_sample_color: Color at a pixel
//
// # Sessions
//
// Each editor_open creates an editor.Editor keyed by a random UUID. Sessions
// live until editor_close or process exit. Commands on one session are
// serialized; tools/call requests for different sessions run concurrently.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	srv := server.New(server.Options{Editor: editor.Options{Remover: remover}})
//	if err := srv.Run(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package server
