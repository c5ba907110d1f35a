// Package mcptools exposes meeting parsing, attendee resolution and
// scheduling as MCP tools.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/njt/schedule365/internal/intent"
	"github.com/njt/schedule365/internal/logging"
	"github.com/njt/schedule365/internal/metrics"
	"github.com/njt/schedule365/internal/output"
	"github.com/njt/schedule365/internal/resolver"
	"github.com/njt/schedule365/internal/scheduler"
)

// GraphFunc signs in on first use and returns the Graph client.
type GraphFunc func(ctx context.Context) (scheduler.Graph, error)

// Config configures the tool set.
type Config struct {
	Parser   intent.Parser
	Graph    GraphFunc
	TimeZone string
	Now      func() time.Time
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Tools holds the shared state behind the MCP handlers.
type Tools struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	graph scheduler.Graph
}

// New creates the tool set.
func New(cfg Config) *Tools {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Tools{cfg: cfg, logger: cfg.Logger}
}

// NewServer returns an MCP server with all tools registered.
func NewServer(version string, t *Tools) *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("schedule365", version,
		mcpserver.WithToolCapabilities(true),
	)
	t.Register(s)
	return s
}

// Register adds the tools to s.
func (t *Tools) Register(s *mcpserver.MCPServer) {
	parseTool := mcp.NewTool("parse_meeting_request",
		mcp.WithDescription("Parse a natural-language meeting request into subject, times, time zones, attendee names, location and description"),
		mcp.WithString("request",
			mcp.Required(),
			mcp.Description("The request, e.g. 'Tutoring with Alice Thursday at noon for 30 minutes'"),
		),
	)
	s.AddTool(parseTool, t.handleParse)

	resolveTool := mcp.NewTool("resolve_attendees",
		mcp.WithDescription("Look up attendee names in the organization directory and return their email addresses. Names without a match are reported separately"),
		mcp.WithArray("names",
			mcp.Required(),
			mcp.Description("Attendee given names"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
	s.AddTool(resolveTool, t.handleResolve)

	scheduleTool := mcp.NewTool("schedule_meeting",
		mcp.WithDescription("Create a Microsoft Teams meeting in the signed-in user's Outlook calendar. Give either a natural-language request or subject and start"),
		mcp.WithString("request",
			mcp.Description("Natural-language request; when set, the other fields are ignored"),
		),
		mcp.WithString("subject",
			mcp.Description("Meeting subject"),
		),
		mcp.WithString("start",
			mcp.Description("Start, ISO 8601 local time (YYYY-MM-DDThh:mm:ss) or natural language such as 'tomorrow 2pm'"),
		),
		mcp.WithString("end",
			mcp.Description("End, same formats as start (default: 30 minutes after start)"),
		),
		mcp.WithString("time_zone",
			mcp.Description("Windows time zone name, e.g. 'Pacific Standard Time'"),
		),
		mcp.WithArray("attendees",
			mcp.Description("Attendee given names"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("location",
			mcp.Description("Meeting location"),
		),
		mcp.WithString("description",
			mcp.Description("Meeting body text"),
		),
	)
	s.AddTool(scheduleTool, t.handleSchedule)
}

func (t *Tools) handleParse(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	text, _ := args["request"].(string)
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("request is required"), nil
	}
	if t.cfg.Parser == nil {
		return mcp.NewToolResultError("intent parsing is not configured (set OPENAI_KEY)"), nil
	}

	m, err := t.cfg.Parser.Parse(ctx, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse request: %v", err)), nil
	}
	return jsonResult(m)
}

func (t *Tools) handleResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := stringSlice(request.GetArguments(), "names")
	if len(names) == 0 {
		return mcp.NewToolResultError("names is required"), nil
	}

	graph, err := t.graphClient(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := resolver.New(graph, t.cfg.Metrics, t.logger).Resolve(ctx, names)
	return jsonResult(res)
}

func (t *Tools) handleSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := t.intentFromArgs(ctx, request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	graph, err := t.graphClient(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event, res, err := scheduler.New(graph, t.cfg.Metrics, t.logger).Schedule(ctx, m)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to schedule meeting: %v", err)), nil
	}

	body, err := output.WriteJSONString(&output.ScheduleResult{Event: event, Resolution: res})
	if err != nil {
		return nil, err
	}

	text := "Meeting scheduled:\n" + body
	if len(res.Unresolved) > 0 {
		text += fmt.Sprintf("\nNot invited (no directory match): %s\n", strings.Join(res.UnresolvedNames(), ", "))
	}
	return mcp.NewToolResultText(text), nil
}

func (t *Tools) intentFromArgs(ctx context.Context, args map[string]any) (*intent.MeetingIntent, error) {
	if text, _ := args["request"].(string); strings.TrimSpace(text) != "" {
		if t.cfg.Parser == nil {
			return nil, errors.New("intent parsing is not configured (set OPENAI_KEY)")
		}
		m, err := t.cfg.Parser.Parse(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
		return m, nil
	}

	subject, _ := args["subject"].(string)
	start, _ := args["start"].(string)
	if subject == "" || start == "" {
		return nil, errors.New("either request or subject and start are required")
	}

	f := intent.Fields{
		Subject:   subject,
		Start:     start,
		TimeZone:  t.cfg.TimeZone,
		Attendees: stringSlice(args, "attendees"),
	}
	f.End, _ = args["end"].(string)
	f.Location, _ = args["location"].(string)
	f.Description, _ = args["description"].(string)
	if tz, _ := args["time_zone"].(string); tz != "" {
		f.TimeZone = tz
	}

	return intent.FromFields(f, t.cfg.Now())
}

// graphClient signs in once and reuses the client for later calls.
func (t *Tools) graphClient(ctx context.Context) (scheduler.Graph, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.graph != nil {
		return t.graph, nil
	}
	if t.cfg.Graph == nil {
		return nil, errors.New("graph access is not configured")
	}

	graph, err := t.cfg.Graph(ctx)
	if err != nil {
		t.logger.Error("sign-in failed", logging.Err(err))
		return nil, fmt.Errorf("failed to sign in to Microsoft 365: %w", err)
	}
	t.graph = graph
	return graph, nil
}

// stringSlice accepts a JSON array or a comma-separated string.
func stringSlice(args map[string]any, key string) []string {
	var out []string
	switch v := args[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := output.WriteJSONString(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(body), nil
}

// ServeStdio serves s on stdin/stdout until the client disconnects.
func ServeStdio(s *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(s); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
