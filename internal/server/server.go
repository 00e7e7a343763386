package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ironsheep/photo-studio-mcp/internal/editor"
	"github.com/ironsheep/photo-studio-mcp/internal/imaging"
)

// maxRequestBytes bounds one JSON-RPC line. Requests may carry a base64
// product photo inline.
const maxRequestBytes = 64 << 20

// DefaultMaxSessions is used when Options.MaxSessions is zero.
const DefaultMaxSessions = 16

// Options configures a Server.
type Options struct {
	// Loader resolves editor_open sources. Nil selects an imaging.Loader
	// with default limits.
	Loader editor.Loader

	// Editor is applied to every session the server opens.
	Editor editor.Options

	// MaxSessions bounds the number of open sessions.
	MaxSessions int

	Logger  *slog.Logger
	Version string
}

// Server handles MCP protocol communication
type Server struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*editor.Editor
	sources  map[string]string // session id to the source it was opened from

	outMu sync.Mutex
	enc   *json.Encoder
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(opts Options) *Server {
	if opts.Loader == nil {
		opts.Loader = imaging.NewLoader(imaging.LoaderOptions{})
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Editor.Logger == nil {
		opts.Editor.Logger = opts.Logger
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		opts:     opts,
		log:      opts.Logger,
		sessions: make(map[string]*editor.Editor),
		sources:  make(map[string]string),
	}
}

// Run reads JSON-RPC requests from in, one per line, and writes responses
// and notifications to out until in is exhausted.
//
// tools/call requests run concurrently so that a long background removal
// does not hold up other sessions. Every other method is answered in order.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.setOutput(out)

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxRequestBytes)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("failed to parse request", "error", err)
			s.write(s.errorResponse(nil, -32700, "Parse error", err.Error()))
			continue
		}

		if req.Method == "tools/call" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.write(s.handleRequest(ctx, &req))
			}()
			continue
		}
		s.write(s.handleRequest(ctx, &req))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (s *Server) setOutput(w io.Writer) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	s.enc = json.NewEncoder(w)
}

// write sends one message. Messages are dropped when no output is attached.
func (s *Server) write(msg interface{}) {
	if msg == nil {
		return
	}
	if resp, ok := msg.(*MCPResponse); ok && resp == nil {
		return
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.enc == nil {
		return
	}
	if err := s.enc.Encode(msg); err != nil {
		s.log.Error("failed to encode message", "error", err)
	}
}

// notify sends a JSON-RPC notification.
func (s *Server) notify(method string, params interface{}) {
	s.write(&MCPNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized", "notifications/cancelled":
		// Client notifications, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "photo-studio-mcp",
				"version": s.opts.Version,
			},
		},
	}
}

// handleToolsList returns the available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
