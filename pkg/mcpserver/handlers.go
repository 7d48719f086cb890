package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/rail/pkg/manager"
)

// Handlers implements the rail tools.
type Handlers struct {
	Manager *manager.Manager
}

func (h *Handlers) EngineStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cwd, _ := req.GetArguments()["cwd"].(string)
	if cwd == "" {
		return errorResult("cwd argument is required"), nil
	}
	if err := h.Manager.StartEngine(ctx, cwd); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult("engine started"), nil
}

// EngineStop stops both children.
func (h *Handlers) EngineStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.Manager.Shutdown(); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult("engine stopped"), nil
}

func (h *Handlers) EngineRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method, params, res := methodAndParams(req)
	if res != nil {
		return res, nil
	}
	raw, err := h.Manager.EngineRequest(ctx, method, params)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return rawResult(raw), nil
}

func (h *Handlers) EngineNotify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method, params, res := methodAndParams(req)
	if res != nil {
		return res, nil
	}
	if err := h.Manager.EngineNotify(ctx, method, params); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult("sent " + method), nil
}

func (h *Handlers) ApprovalsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.Manager.PendingApprovals())
}

func (h *Handlers) ApprovalRespond(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, ok := requestID(args["requestId"])
	if !ok {
		return errorResult("requestId must be a non-negative integer"), nil
	}
	var result any
	if r, ok := args["result"]; ok && r != nil {
		result = r
	} else if d, _ := args["decision"].(string); d != "" {
		result = map[string]string{"decision": d}
	} else {
		return errorResult("either result or decision is required"), nil
	}
	if err := h.Manager.RespondApproval(ctx, id, result); err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("responded to approval %d", id)), nil
}

func (h *Handlers) WorkerRequest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method, params, res := methodAndParams(req)
	if res != nil {
		return res, nil
	}
	raw, err := h.Manager.WorkerRequest(ctx, method, params)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return rawResult(raw), nil
}

func (h *Handlers) WorkerHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health, err := h.Manager.WorkerHealth(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(health)
}

func (h *Handlers) ProviderRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	provider, _ := args["provider"].(string)
	prompt, _ := args["prompt"].(string)
	if provider == "" || prompt == "" {
		return errorResult("provider and prompt arguments are required"), nil
	}
	var timeoutMs uint64
	if v, ok := args["timeoutMs"]; ok {
		n, ok := requestID(v)
		if !ok {
			return errorResult("timeoutMs must be a non-negative integer"), nil
		}
		timeoutMs = n
	}
	mode, _ := args["mode"].(string)

	out, err := h.Manager.ProviderRun(ctx, provider, prompt, timeoutMs, mode)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	res, err := jsonResult(out)
	if res != nil {
		res.IsError = !out.OK
	}
	return res, err
}

func methodAndParams(req mcp.CallToolRequest) (string, any, *mcp.CallToolResult) {
	args := req.GetArguments()
	method, _ := args["method"].(string)
	if method == "" {
		return "", nil, errorResult("method argument is required")
	}
	return method, args["params"], nil
}

// requestID accepts the float64 that JSON numbers decode to.
func requestID(v any) (uint64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 || n != math.Trunc(n) || n > math.MaxUint64 {
			return 0, false
		}
		return uint64(n), true
	case int:
		return uint64(n), n >= 0
	case json.Number:
		i, err := n.Int64()
		return uint64(i), err == nil && i >= 0
	}
	return 0, false
}

func rawResult(raw json.RawMessage) *mcp.CallToolResult {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	return textResult(string(raw))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
