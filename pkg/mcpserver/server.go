// Package mcpserver exposes the manager's operations as MCP tools.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/rail/pkg/manager"
)

// NewServer creates an MCP server with the rail tools registered against m.
func NewServer(version string, m *manager.Manager) *server.MCPServer {
	s := server.NewMCPServer(
		"rail",
		version,
		server.WithToolCapabilities(true),
	)
	h := &Handlers{Manager: m}

	s.AddTool(
		mcp.NewTool("engine_start",
			mcp.WithDescription("Start the agent engine in a working directory and complete its handshake"),
			mcp.WithString("cwd", mcp.Required(), mcp.Description("Working directory for the engine")),
		),
		h.EngineStart,
	)
	s.AddTool(
		mcp.NewTool("engine_stop",
			mcp.WithDescription("Stop the agent engine and the web worker"),
		),
		h.EngineStop,
	)
	s.AddTool(
		mcp.NewTool("engine_request",
			mcp.WithDescription("Send a JSON-RPC request to the engine and return its result"),
			mcp.WithString("method", mcp.Required(), mcp.Description("JSON-RPC method name")),
			mcp.WithObject("params", mcp.Description("Request parameters")),
		),
		h.EngineRequest,
	)
	s.AddTool(
		mcp.NewTool("engine_notify",
			mcp.WithDescription("Send a JSON-RPC notification to the engine"),
			mcp.WithString("method", mcp.Required(), mcp.Description("JSON-RPC method name")),
			mcp.WithObject("params", mcp.Description("Notification parameters")),
		),
		h.EngineNotify,
	)
	s.AddTool(
		mcp.NewTool("approvals_list",
			mcp.WithDescription("List approval requests the engine is waiting on"),
		),
		h.ApprovalsList,
	)
	s.AddTool(
		mcp.NewTool("approval_respond",
			mcp.WithDescription("Answer a pending engine approval request"),
			mcp.WithNumber("requestId", mcp.Required(), mcp.Description("Id of the approval request")),
			mcp.WithString("decision", mcp.Description("Shorthand for result {\"decision\": <decision>}, e.g. accept or decline")),
			mcp.WithObject("result", mcp.Description("Full response result; overrides decision")),
		),
		h.ApprovalRespond,
	)
	s.AddTool(
		mcp.NewTool("worker_request",
			mcp.WithDescription("Send a JSON-RPC request to the web worker, restarting it once on transient failure"),
			mcp.WithString("method", mcp.Required(), mcp.Description("JSON-RPC method name")),
			mcp.WithObject("params", mcp.Description("Request parameters")),
		),
		h.WorkerRequest,
	)
	s.AddTool(
		mcp.NewTool("worker_health",
			mcp.WithDescription("Report web worker health without starting it"),
		),
		h.WorkerHealth,
	)
	s.AddTool(
		mcp.NewTool("provider_run",
			mcp.WithDescription("Run a prompt against a web provider"),
			mcp.WithString("provider", mcp.Required(), mcp.Description("Provider name")),
			mcp.WithString("prompt", mcp.Required(), mcp.Description("Prompt text")),
			mcp.WithNumber("timeoutMs", mcp.Description("Run timeout in milliseconds (default 90000)")),
			mcp.WithString("mode", mcp.Description("Run mode (default auto)")),
		),
		h.ProviderRun,
	)

	return s
}
