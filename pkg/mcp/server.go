// Package mcp serves performance stats and cache maintenance to MCP clients
// over stdio using JSON-RPC 2.0.
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/pario-ai/adcache/pkg/cache"
	"github.com/pario-ai/adcache/pkg/models"
	"github.com/pario-ai/adcache/pkg/sweeper"
)

// StatsSource computes windowed performance stats.
type StatsSource interface {
	PerformanceStats(ctx context.Context, windowHours int) (models.PerformanceStats, error)
	UnitCost() float64
}

// CacheInspector reads partition sizes and raw entries.
type CacheInspector interface {
	Sizes(ctx context.Context) ([]models.PartitionSize, error)
	Raw(name models.Partition) (*cache.Typed[json.RawMessage], error)
}

// Maintainer runs an on-demand sweep.
type Maintainer interface {
	Sweep(ctx context.Context) (sweeper.Result, error)
}

// Server is a minimal MCP server.
type Server struct {
	stats   StatsSource
	cache   CacheInspector
	sweeper Maintainer
	log     zerolog.Logger
	version string
}

// New creates a Server. sw may be nil, in which case the sweep tool reports
// that maintenance is unavailable.
func New(stats StatsSource, c CacheInspector, sw Maintainer, log zerolog.Logger, version string) *Server {
	return &Server{
		stats:   stats,
		cache:   c,
		sweeper: sw,
		log:     log.With().Str("component", "mcp").Logger(),
		version: version,
	}
}

// Run reads requests from r line by line and writes responses to w. It
// blocks until r is exhausted or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeParseError, Message: "parse error"},
			})
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	s.log.Debug().Str("method", req.Method).Msg("request")
	switch req.Method {
	case "initialize":
		return reply(req, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "adcache", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return reply(req, toolsListResult{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid params"},
		}
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return reply(req, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	return reply(req, handler(ctx, s, params.Arguments))
}

func reply(req *Request, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("write response")
	}
}
