// Package mcp exposes the workspace as a Model Context Protocol tool
// server speaking JSON-RPC over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"go.lsp.dev/jsonrpc2"

	"worktrack/internal/workspace"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "worktrack"
	serverVersion   = "0.1.0"
)

// Server handles MCP requests against one workspace.
type Server struct {
	ws *workspace.Workspace
}

// NewServer returns an MCP server over ws.
func NewServer(ws *workspace.Workspace) *Server {
	return &Server{ws: ws}
}

// Serve runs the JSON-RPC loop over rwc until the peer disconnects.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	stream := jsonrpc2.NewRawStream(rwc)
	conn := jsonrpc2.NewConn(stream)
	conn.Go(ctx, s.handle)
	<-conn.Done()
	if err := conn.Err(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Stdio returns the standard input/output pair as a stream for Serve.
func Stdio() io.ReadWriteCloser {
	return &stdioReadWriteCloser{read: os.Stdin, write: os.Stdout}
}

type stdioReadWriteCloser struct {
	read  io.Reader
	write io.Writer
}

func (s *stdioReadWriteCloser) Read(p []byte) (int, error)  { return s.read.Read(p) }
func (s *stdioReadWriteCloser) Write(p []byte) (int, error) { return s.write.Write(p) }
func (s *stdioReadWriteCloser) Close() error                { return nil }

func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case "initialize":
		return reply(ctx, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
		}, nil)
	case "ping":
		return reply(ctx, map[string]any{}, nil)
	case "notifications/initialized", "notifications/cancelled":
		return reply(ctx, nil, nil)
	case "tools/list":
		return reply(ctx, map[string]any{"tools": toolDefinitions()}, nil)
	case "tools/call":
		var params struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params(), &params); err != nil {
			return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.InvalidParams, "invalid tools/call params: %v", err))
		}
		return reply(ctx, s.callTool(params.Name, params.Arguments), nil)
	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

// toolResult is the MCP tool call envelope. Tool failures are reported
// in-band with isError rather than as JSON-RPC errors.
type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) toolResult {
	return toolResult{Content: []toolContent{{Type: "text", Text: text}}}
}

func errorResult(err error) toolResult {
	return toolResult{
		Content: []toolContent{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
}
