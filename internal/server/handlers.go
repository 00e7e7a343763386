package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ironsheep/photo-studio-mcp/internal/editor"
	"github.com/ironsheep/photo-studio-mcp/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "editor_open", "editor_export").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`

	// Meta carries the optional progress token.
	Meta *RequestMeta `json:"_meta,omitempty"`
}

// RequestMeta is the _meta object of a request.
type RequestMeta struct {
	// ProgressToken, when set, asks for notifications/progress messages.
	ProgressToken interface{} `json:"progressToken,omitempty"`
}

// ProgressParams is the payload of a notifications/progress message.
type ProgressParams struct {
	ProgressToken interface{} `json:"progressToken"`
	Progress      float64     `json:"progress"`
	Total         float64     `json:"total"`
}

// sourceEvicter is implemented by loaders that cache decoded sources.
type sourceEvicter interface {
	Evict(source string)
}

// errSessionLimit is returned by editor_open when MaxSessions are open.
var errSessionLimit = errors.New("too many open sessions; close one with editor_close")

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Image-producing tools add an image content block after the text block.
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, &params)
	if err != nil {
		s.log.Debug("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	content := []map[string]interface{}{
		{
			"type": "text",
			"text": mustMarshalJSON(result),
		},
	}
	if img, ok := result.(*imageResult); ok {
		content = append(content, map[string]interface{}{
			"type":     "image",
			"data":     img.ImageBase64,
			"mimeType": img.MimeType,
		})
	}
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": content,
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, params *ToolCallParams) (interface{}, error) {
	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch params.Name {
	// Session lifecycle
	case "editor_open":
		return s.handleOpen(ctx, args)
	case "editor_state":
		return s.handleState(args)
	case "editor_close":
		return s.handleClose(args)

	// Edits
	case "editor_set_adjustments":
		return s.handleSetAdjustments(args)
	case "editor_set_background":
		return s.handleSetBackground(args)
	case "editor_set_shadow":
		return s.handleSetShadow(args)
	case "editor_rotate":
		return s.handleRotate(args)
	case "editor_remove_background":
		return s.handleRemoveBackground(ctx, args, params.Meta)
	case "editor_undo":
		return s.handleUndo(args)

	// Output
	case "editor_preview":
		return s.handlePreview(args)
	case "editor_export":
		return s.handleExport(args)
	case "editor_sample_color":
		return s.handleSampleColor(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", params.Name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Session registry ===

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

func (s *Server) session(id string) (*editor.Editor, error) {
	if id == "" {
		return nil, errors.New("session_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", id)
	}
	return e, nil
}

// sessionFor decodes args into dst and resolves its session_id.
func (s *Server) sessionFor(args json.RawMessage, dst interface{}) (*editor.Editor, error) {
	if err := json.Unmarshal(args, dst); err != nil {
		return nil, err
	}
	var id sessionArgs
	if err := json.Unmarshal(args, &id); err != nil {
		return nil, err
	}
	return s.session(id.SessionID)
}

// editResult is returned by every edit command.
type editResult struct {
	editor.Snapshot
	Plan editor.Plan `json:"plan"`
}

func editResponse(sess editor.Session, plan editor.Plan, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return &editResult{Snapshot: sess.Snapshot(), Plan: plan}, nil
}

// === Session lifecycle handlers ===

type openArgs struct {
	Source string `json:"source"`
}

func (s *Server) handleOpen(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a openArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Source == "" {
		return nil, errors.New("source is required")
	}

	s.mu.Lock()
	full := len(s.sessions) >= s.opts.MaxSessions
	s.mu.Unlock()
	if full {
		return nil, errSessionLimit
	}

	e, err := editor.Open(ctx, s.opts.Loader, a.Source, s.opts.Editor)
	if err != nil {
		return nil, err
	}
	sess := e.Session()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) >= s.opts.MaxSessions {
		return nil, errSessionLimit
	}
	s.sessions[sess.ID] = e
	s.sources[sess.ID] = a.Source
	return sess.Snapshot(), nil
}

func (s *Server) handleState(args json.RawMessage) (interface{}, error) {
	var a sessionArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	sess := e.Session()
	return &editResult{Snapshot: sess.Snapshot(), Plan: e.LastPlan()}, nil
}

type closeResult struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}

func (s *Server) handleClose(args json.RawMessage) (interface{}, error) {
	var a sessionArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	if e.Session().State == editor.StateRemoving {
		return nil, editor.ErrBusy
	}

	s.mu.Lock()
	source := s.sources[a.SessionID]
	delete(s.sessions, a.SessionID)
	delete(s.sources, a.SessionID)
	shared := false
	for _, other := range s.sources {
		if other == source {
			shared = true
			break
		}
	}
	s.mu.Unlock()

	if c, ok := s.opts.Loader.(sourceEvicter); ok && !shared {
		c.Evict(source)
	}
	s.log.Info("session closed", "session", a.SessionID)
	return &closeResult{SessionID: a.SessionID, Closed: true}, nil
}

// === Edit handlers ===

// adjustmentsArgs leaves unspecified controls at their current value.
type adjustmentsArgs struct {
	SessionID  string `json:"session_id"`
	Exposure   *int   `json:"exposure"`
	Contrast   *int   `json:"contrast"`
	Highlights *int   `json:"highlights"`
	Shadows    *int   `json:"shadows"`
	Whites     *int   `json:"whites"`
	Blacks     *int   `json:"blacks"`
}

func (a adjustmentsArgs) merge(cur imaging.Adjustments) imaging.Adjustments {
	set := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cur.Exposure, a.Exposure)
	set(&cur.Contrast, a.Contrast)
	set(&cur.Highlights, a.Highlights)
	set(&cur.Shadows, a.Shadows)
	set(&cur.Whites, a.Whites)
	set(&cur.Blacks, a.Blacks)
	return cur
}

func (s *Server) handleSetAdjustments(args json.RawMessage) (interface{}, error) {
	var a adjustmentsArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	return editResponse(e.UpdateAdjustments(a.merge))
}

type backgroundArgs struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Color     string `json:"color"`
	Pattern   string `json:"pattern"`
}

func (s *Server) handleSetBackground(args json.RawMessage) (interface{}, error) {
	var a backgroundArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	bg, err := imaging.ParseBackground(a.Kind, a.Color, a.Pattern)
	if err != nil {
		return nil, err
	}
	return editResponse(e.SetBackground(bg))
}

type shadowArgs struct {
	SessionID string `json:"session_id"`
	Shadow    string `json:"shadow"`
}

func (s *Server) handleSetShadow(args json.RawMessage) (interface{}, error) {
	var a shadowArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	kind, err := imaging.ParseShadow(a.Shadow)
	if err != nil {
		return nil, err
	}
	return editResponse(e.SetShadow(kind))
}

type rotateArgs struct {
	SessionID string `json:"session_id"`
	Degrees   *int   `json:"degrees"`
	Absolute  bool   `json:"absolute"`
}

func (s *Server) handleRotate(args json.RawMessage) (interface{}, error) {
	var a rotateArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	degrees := 90
	if a.Degrees != nil {
		degrees = *a.Degrees
	}
	if a.Absolute {
		return editResponse(e.SetRotation(degrees))
	}
	return editResponse(e.Rotate(degrees))
}

func (s *Server) handleRemoveBackground(ctx context.Context, args json.RawMessage, meta *RequestMeta) (interface{}, error) {
	var a sessionArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}

	var progress func(float64)
	if meta != nil && meta.ProgressToken != nil {
		token := meta.ProgressToken
		progress = func(v float64) {
			s.notify("notifications/progress", &ProgressParams{
				ProgressToken: token,
				Progress:      v,
				Total:         1,
			})
		}
	}

	sess, err := e.RemoveBackground(ctx, progress)
	if err != nil {
		return nil, err
	}
	return &editResult{Snapshot: sess.Snapshot(), Plan: e.LastPlan()}, nil
}

func (s *Server) handleUndo(args json.RawMessage) (interface{}, error) {
	var a sessionArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	return editResponse(e.Undo())
}

// === Output handlers ===

// imageResult is an encoded image plus the session it came from.
type imageResult struct {
	SessionID string       `json:"session_id"`
	State     editor.State `json:"state"`
	Rotation  int          `json:"display_rotation"`
	Original  *imageSize   `json:"original_size,omitempty"`
	*imaging.EncodedImage
}

type imageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type previewArgs struct {
	SessionID string `json:"session_id"`
	MaxSize   int    `json:"max_size"`
}

func (s *Server) handlePreview(args json.RawMessage) (interface{}, error) {
	var a previewArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	view, err := e.Preview()
	if err != nil {
		return nil, err
	}
	full := view.Bounds()
	thumb := imaging.Thumbnail(view, a.MaxSize)
	png, err := imaging.EncodePNG(thumb)
	if err != nil {
		return nil, err
	}

	sess := e.Session()
	res := &imageResult{
		SessionID:    sess.ID,
		State:        sess.State,
		Rotation:     imaging.NormalizeAngle(sess.Rotation),
		EncodedImage: imaging.NewEncodedImage(png, thumb.Bounds().Dx(), thumb.Bounds().Dy()),
	}
	if thumb != view {
		res.Original = &imageSize{Width: full.Dx(), Height: full.Dy()}
	}
	return res, nil
}

func (s *Server) handleExport(args json.RawMessage) (interface{}, error) {
	var a sessionArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	out, err := e.Export()
	if err != nil {
		return nil, err
	}
	sess := e.Session()
	return &imageResult{
		SessionID:    sess.ID,
		State:        sess.State,
		Rotation:     imaging.NormalizeAngle(sess.Rotation),
		EncodedImage: imaging.NewEncodedImage(out.PNG, out.Width, out.Height),
	}, nil
}

type sampleColorArgs struct {
	SessionID string `json:"session_id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	// Source is "preview" (default) or "original".
	Source string `json:"source"`
}

func (s *Server) handleSampleColor(args json.RawMessage) (interface{}, error) {
	var a sampleColorArgs
	e, err := s.sessionFor(args, &a)
	if err != nil {
		return nil, err
	}
	switch a.Source {
	case "", "preview":
		view, err := e.Preview()
		if err != nil {
			return nil, err
		}
		return imaging.SampleColor(view, a.X, a.Y)
	case "original":
		return imaging.SampleColor(e.Session().Original(), a.X, a.Y)
	default:
		return nil, fmt.Errorf("unknown sample source %q: want preview or original", a.Source)
	}
}
