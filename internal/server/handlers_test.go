package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ironsheep/photo-studio-mcp/internal/editor"
	"github.com/ironsheep/photo-studio-mcp/internal/imaging"
	"github.com/ironsheep/photo-studio-mcp/internal/removal"
)

// createTestImageFile writes a solid PNG into the test's temp dir and
// returns its path.
func createTestImageFile(t *testing.T, width, height int, c color.Color) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}

	path := filepath.Join(t.TempDir(), "product.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

// keepCentre is a remover that reports half-way progress and clears every
// pixel except the centre one.
var keepCentre = removal.Func(func(ctx context.Context, src image.Image, progress removal.ProgressFunc) (image.Image, error) {
	progress(0.5)
	out := imaging.ToSurface(src)
	b := out.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if x != b.Dx()/2 || y != b.Dy()/2 {
				out.SetNRGBA(x, y, color.NRGBA{})
			}
		}
	}
	return out, nil
})

func newTestServer(opts Options) *Server {
	if opts.Editor.NewRand == nil {
		opts.Editor.NewRand = editor.SeededRand(1)
	}
	return New(opts)
}

// callTool sends a tools/call request straight to the handler.
func callTool(t *testing.T, s *Server, name string, args map[string]interface{}, meta map[string]interface{}) *MCPResponse {
	t.Helper()
	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	if meta != nil {
		params["_meta"] = meta
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}

	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// mustCall calls a tool, fails on an error response, and decodes the text
// content block into a map.
func mustCall(t *testing.T, s *Server, name string, args map[string]interface{}) map[string]interface{} {
	t.Helper()
	resp := callTool(t, s, name, args, nil)
	if resp.Error != nil {
		t.Fatalf("%s: unexpected error: %v (%v)", name, resp.Error.Message, resp.Error.Data)
	}
	return textContent(t, resp)
}

func textContent(t *testing.T, resp *MCPResponse) map[string]interface{} {
	t.Helper()
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) == 0 {
		t.Fatal("Result should contain content blocks")
	}
	if content[0]["type"] != "text" {
		t.Fatalf("first block type: got %v, want text", content[0]["type"])
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), &out); err != nil {
		t.Fatalf("failed to decode text content: %v", err)
	}
	return out
}

// expectToolError asserts a -32000 response whose data mentions want.
func expectToolError(t *testing.T, resp *MCPResponse, want string) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error containing %q", want)
	}
	if resp.Error.Code != -32000 {
		t.Errorf("error code: got %d, want -32000", resp.Error.Code)
	}
	if data, _ := resp.Error.Data.(string); !strings.Contains(data, want) {
		t.Errorf("error data: got %q, want it to contain %q", data, want)
	}
}

// openSession opens a width x height red product shot and returns its id.
func openSession(t *testing.T, s *Server, width, height int) string {
	t.Helper()
	path := createTestImageFile(t, width, height, color.NRGBA{255, 0, 0, 255})
	snap := mustCall(t, s, "editor_open", map[string]interface{}{"source": path})
	id, _ := snap["session_id"].(string)
	if id == "" {
		t.Fatal("editor_open returned no session_id")
	}
	return id
}

func TestHandleOpen(t *testing.T) {
	s := newTestServer(Options{})
	path := createTestImageFile(t, 100, 80, color.NRGBA{255, 0, 0, 255})

	snap := mustCall(t, s, "editor_open", map[string]interface{}{"source": path})

	if snap["state"] != "loaded" {
		t.Errorf("state: got %v, want loaded", snap["state"])
	}
	if snap["width"] != float64(100) || snap["height"] != float64(80) {
		t.Errorf("size: got %vx%v, want 100x80", snap["width"], snap["height"])
	}
	if snap["dirty"] != false || snap["can_export"] != false {
		t.Errorf("fresh session should be clean: %v", snap)
	}
	if len(s.sessions) != 1 {
		t.Errorf("sessions: got %d, want 1", len(s.sessions))
	}
}

func TestHandleOpen_Errors(t *testing.T) {
	s := newTestServer(Options{})

	expectToolError(t, callTool(t, s, "editor_open", map[string]interface{}{}, nil), "source is required")
	expectToolError(t, callTool(t, s, "editor_open", map[string]interface{}{
		"source": "/nonexistent/image.png",
	}, nil), "nonexistent")

	if len(s.sessions) != 0 {
		t.Errorf("failed opens left %d sessions", len(s.sessions))
	}
}

func TestHandleOpen_InlineSource(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	s := newTestServer(Options{})

	snap := mustCall(t, s, "editor_open", map[string]interface{}{
		"source": "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if snap["width"] != float64(3) || snap["height"] != float64(2) {
		t.Errorf("size: got %vx%v, want 3x2", snap["width"], snap["height"])
	}
}

func TestHandleOpen_SessionLimit(t *testing.T) {
	s := newTestServer(Options{MaxSessions: 1})
	id := openSession(t, s, 4, 4)

	path := createTestImageFile(t, 4, 4, color.NRGBA{0, 0, 255, 255})
	expectToolError(t, callTool(t, s, "editor_open", map[string]interface{}{"source": path}, nil), "too many open sessions")

	mustCall(t, s, "editor_close", map[string]interface{}{"session_id": id})
	mustCall(t, s, "editor_open", map[string]interface{}{"source": path})
}

func TestHandleClose(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 4, 4)

	res := mustCall(t, s, "editor_close", map[string]interface{}{"session_id": id})
	if res["closed"] != true {
		t.Errorf("closed: got %v, want true", res["closed"])
	}

	expectToolError(t, callTool(t, s, "editor_state", map[string]interface{}{"session_id": id}, nil), "unknown session")
}

func TestHandleClose_EvictsUnsharedSource(t *testing.T) {
	loader := imaging.NewLoader(imaging.LoaderOptions{})
	s := newTestServer(Options{Loader: loader})
	path := createTestImageFile(t, 4, 4, color.NRGBA{0, 255, 0, 255})

	first := mustCall(t, s, "editor_open", map[string]interface{}{"source": path})["session_id"]
	second := mustCall(t, s, "editor_open", map[string]interface{}{"source": path})["session_id"]
	if loader.Len() != 1 {
		t.Fatalf("cached sources: got %d, want 1", loader.Len())
	}

	mustCall(t, s, "editor_close", map[string]interface{}{"session_id": first})
	if loader.Len() != 1 {
		t.Errorf("source still open in another session was evicted")
	}

	mustCall(t, s, "editor_close", map[string]interface{}{"session_id": second})
	if loader.Len() != 0 {
		t.Errorf("cached sources after last close: got %d, want 0", loader.Len())
	}
	if len(s.sources) != 0 {
		t.Errorf("sources left after close: %v", s.sources)
	}
}

func TestHandleSession_Errors(t *testing.T) {
	s := newTestServer(Options{})

	tools := []string{
		"editor_state",
		"editor_close",
		"editor_set_adjustments",
		"editor_set_background",
		"editor_set_shadow",
		"editor_rotate",
		"editor_remove_background",
		"editor_undo",
		"editor_preview",
		"editor_export",
		"editor_sample_color",
	}

	for _, name := range tools {
		t.Run(name, func(t *testing.T) {
			expectToolError(t, callTool(t, s, name, map[string]interface{}{}, nil), "session_id is required")
			expectToolError(t, callTool(t, s, name, map[string]interface{}{"session_id": "nope"}, nil), "unknown session")
		})
	}
}

func TestHandleSetAdjustments_Merges(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 4, 4)

	mustCall(t, s, "editor_set_adjustments", map[string]interface{}{"session_id": id, "exposure": 20})
	res := mustCall(t, s, "editor_set_adjustments", map[string]interface{}{"session_id": id, "contrast": -10})

	adj, ok := res["adjustments"].(map[string]interface{})
	if !ok {
		t.Fatalf("adjustments missing: %v", res)
	}
	if adj["exposure"] != float64(20) || adj["contrast"] != float64(-10) {
		t.Errorf("adjustments: got %v, want exposure 20 contrast -10", adj)
	}
	if res["plan"] != "tone+rotate" {
		t.Errorf("plan: got %v, want tone+rotate", res["plan"])
	}
	if res["dirty"] != true {
		t.Error("session should be dirty after an adjustment")
	}
}

func TestHandleSetAdjustments_ConcurrentPartialUpdates(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 4, 4)

	controls := []string{"exposure", "contrast", "highlights", "shadows", "whites", "blacks"}
	var wg sync.WaitGroup
	for i, name := range controls {
		wg.Add(1)
		go func(name string, v int) {
			defer wg.Done()
			resp := callTool(t, s, "editor_set_adjustments", map[string]interface{}{"session_id": id, name: v}, nil)
			if resp.Error != nil {
				t.Errorf("%s: unexpected error: %v", name, resp.Error.Data)
			}
		}(name, i+1)
	}
	wg.Wait()

	adj := mustCall(t, s, "editor_state", map[string]interface{}{"session_id": id})["adjustments"].(map[string]interface{})
	for i, name := range controls {
		if adj[name] != float64(i+1) {
			t.Errorf("%s: got %v, want %d", name, adj[name], i+1)
		}
	}
}

func TestHandleSetAdjustments_OutOfRange(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 4, 4)

	resp := callTool(t, s, "editor_set_adjustments", map[string]interface{}{"session_id": id, "whites": 150}, nil)
	if resp.Error == nil {
		t.Fatal("expected error for whites=150")
	}

	snap := mustCall(t, s, "editor_state", map[string]interface{}{"session_id": id})
	if snap["dirty"] != false {
		t.Error("rejected edit changed the session")
	}
}

func TestHandleSetBackgroundAndShadow(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 4, 4)

	res := mustCall(t, s, "editor_set_background", map[string]interface{}{
		"session_id": id,
		"kind":       "solid",
		"color":      "#336699",
	})
	if res["background"] != "solid(#336699)" {
		t.Errorf("background: got %v", res["background"])
	}

	res = mustCall(t, s, "editor_set_shadow", map[string]interface{}{"session_id": id, "shadow": "base"})
	if res["shadow"] != "base" {
		t.Errorf("shadow: got %v, want base", res["shadow"])
	}

	resp := callTool(t, s, "editor_set_background", map[string]interface{}{
		"session_id": id,
		"kind":       "procedural",
		"pattern":    "granite",
	}, nil)
	if resp.Error == nil {
		t.Error("expected error for unknown pattern")
	}
}

func TestHandleRotate(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 10, 6)

	res := mustCall(t, s, "editor_rotate", map[string]interface{}{"session_id": id})
	if res["display_rotation"] != float64(90) {
		t.Errorf("display_rotation: got %v, want 90", res["display_rotation"])
	}
	if res["width"] != float64(6) || res["height"] != float64(10) {
		t.Errorf("size: got %vx%v, want 6x10", res["width"], res["height"])
	}

	res = mustCall(t, s, "editor_rotate", map[string]interface{}{"session_id": id, "degrees": -90})
	if res["display_rotation"] != float64(0) {
		t.Errorf("display_rotation: got %v, want 0", res["display_rotation"])
	}

	res = mustCall(t, s, "editor_rotate", map[string]interface{}{"session_id": id, "degrees": 180, "absolute": true})
	if res["rotation"] != float64(180) {
		t.Errorf("rotation: got %v, want 180", res["rotation"])
	}

	resp := callTool(t, s, "editor_rotate", map[string]interface{}{"session_id": id, "degrees": 45}, nil)
	if resp.Error == nil {
		t.Error("expected error for 45 degrees")
	}
}

func TestHandleRemoveBackground_Progress(t *testing.T) {
	s := newTestServer(Options{Editor: editor.Options{Remover: keepCentre}})
	id := openSession(t, s, 5, 5)

	var out bytes.Buffer
	s.setOutput(&out)

	resp := callTool(t, s, "editor_remove_background",
		map[string]interface{}{"session_id": id},
		map[string]interface{}{"progressToken": "tok-1"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v (%v)", resp.Error.Message, resp.Error.Data)
	}
	res := textContent(t, resp)
	if res["state"] != "removed" || res["has_foreground"] != true {
		t.Errorf("after removal: state %v, has_foreground %v", res["state"], res["has_foreground"])
	}

	var progress []float64
	dec := json.NewDecoder(&out)
	for dec.More() {
		var n struct {
			Method string         `json:"method"`
			Params ProgressParams `json:"params"`
		}
		if err := dec.Decode(&n); err != nil {
			t.Fatalf("failed to decode notification: %v", err)
		}
		if n.Method != "notifications/progress" {
			t.Errorf("method: got %s", n.Method)
		}
		if n.Params.ProgressToken != "tok-1" {
			t.Errorf("progressToken: got %v, want tok-1", n.Params.ProgressToken)
		}
		progress = append(progress, n.Params.Progress)
	}

	if len(progress) < 3 {
		t.Fatalf("got %d progress notifications, want at least 3", len(progress))
	}
	if progress[0] != 0 || progress[len(progress)-1] != 1 {
		t.Errorf("progress should run from 0 to 1: %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress went backwards: %v", progress)
		}
	}

	// A second removal is rejected: the session is no longer Loaded.
	if resp := callTool(t, s, "editor_remove_background", map[string]interface{}{"session_id": id}, nil); resp.Error == nil {
		t.Error("expected error removing twice")
	}
}

func TestHandleRemoveBackground_NoProgressToken(t *testing.T) {
	s := newTestServer(Options{Editor: editor.Options{Remover: keepCentre}})
	id := openSession(t, s, 3, 3)

	var out bytes.Buffer
	s.setOutput(&out)
	mustCall(t, s, "editor_remove_background", map[string]interface{}{"session_id": id})

	if out.Len() != 0 {
		t.Errorf("notifications sent without a progress token: %s", out.String())
	}
}

func TestHandleRemoveBackground_NoRemover(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 3, 3)

	resp := callTool(t, s, "editor_remove_background", map[string]interface{}{"session_id": id}, nil)
	if resp.Error == nil {
		t.Fatal("expected error without a remover")
	}
	snap := mustCall(t, s, "editor_state", map[string]interface{}{"session_id": id})
	if snap["state"] != "loaded" {
		t.Errorf("state after failure: got %v, want loaded", snap["state"])
	}
}

func TestHandleUndo(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 4, 4)

	expectToolError(t, callTool(t, s, "editor_undo", map[string]interface{}{"session_id": id}, nil), "no edits")

	mustCall(t, s, "editor_set_adjustments", map[string]interface{}{"session_id": id, "exposure": 40})
	mustCall(t, s, "editor_rotate", map[string]interface{}{"session_id": id})
	res := mustCall(t, s, "editor_undo", map[string]interface{}{"session_id": id})

	if res["dirty"] != false || res["rotation"] != float64(0) {
		t.Errorf("undo did not restore the session: %v", res)
	}
}

func TestHandlePreview(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 100, 80)

	resp := callTool(t, s, "editor_preview", map[string]interface{}{"session_id": id, "max_size": 50}, nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v (%v)", resp.Error.Message, resp.Error.Data)
	}
	res := textContent(t, resp)
	if res["width"] != float64(50) || res["height"] != float64(40) {
		t.Errorf("preview size: got %vx%v, want 50x40", res["width"], res["height"])
	}
	orig, ok := res["original_size"].(map[string]interface{})
	if !ok || orig["width"] != float64(100) || orig["height"] != float64(80) {
		t.Errorf("original_size: got %v, want 100x80", res["original_size"])
	}

	content := resp.Result.(map[string]interface{})["content"].([]map[string]interface{})
	if len(content) != 2 {
		t.Fatalf("content blocks: got %d, want 2", len(content))
	}
	if content[1]["type"] != "image" || content[1]["mimeType"] != "image/png" {
		t.Errorf("image block: got %v / %v", content[1]["type"], content[1]["mimeType"])
	}

	res = mustCall(t, s, "editor_preview", map[string]interface{}{"session_id": id})
	if _, scaled := res["original_size"]; scaled {
		t.Error("full-size preview should not report original_size")
	}
}

func TestHandleExport(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 10, 6)

	expectToolError(t, callTool(t, s, "editor_export", map[string]interface{}{"session_id": id}, nil), "no edits")

	mustCall(t, s, "editor_rotate", map[string]interface{}{"session_id": id})
	res := mustCall(t, s, "editor_export", map[string]interface{}{"session_id": id})

	if res["state"] != "exported" {
		t.Errorf("state: got %v, want exported", res["state"])
	}
	data, err := base64.StdEncoding.DecodeString(res["image_base64"].(string))
	if err != nil {
		t.Fatalf("failed to decode base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("export is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 6 || img.Bounds().Dy() != 10 {
		t.Errorf("export size: got %v, want 6x10", img.Bounds())
	}
}

func TestHandleSampleColor(t *testing.T) {
	s := newTestServer(Options{})
	id := openSession(t, s, 8, 8)
	mustCall(t, s, "editor_set_adjustments", map[string]interface{}{"session_id": id, "exposure": -100})

	tests := []struct {
		source string
		want   string
	}{
		{"", "#800000"},
		{"preview", "#800000"},
		{"original", "#FF0000"},
	}

	for _, tt := range tests {
		t.Run("source="+tt.source, func(t *testing.T) {
			res := mustCall(t, s, "editor_sample_color", map[string]interface{}{
				"session_id": id,
				"x":          3,
				"y":          4,
				"source":     tt.source,
			})
			if res["hex"] != tt.want {
				t.Errorf("hex: got %v, want %s", res["hex"], tt.want)
			}
		})
	}

	expectToolError(t, callTool(t, s, "editor_sample_color", map[string]interface{}{
		"session_id": id, "x": 50, "y": 0,
	}, nil), "outside image bounds")
	expectToolError(t, callTool(t, s, "editor_sample_color", map[string]interface{}{
		"session_id": id, "source": "export",
	}, nil), "unknown sample source")
}

func TestHandleToolsCall_InvalidTool(t *testing.T) {
	s := newTestServer(Options{})
	expectToolError(t, callTool(t, s, "nonexistent_tool", map[string]interface{}{}, nil), "unknown tool")
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(Options{})
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      7,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})

	if resp.Error == nil {
		t.Fatal("expected error for malformed params")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("error code: got %d, want -32602", resp.Error.Code)
	}
	if resp.ID != 7 {
		t.Errorf("ID: got %v, want 7", resp.ID)
	}
}
