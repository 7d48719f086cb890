// mock-app-server is a test helper binary that speaks line-delimited
// JSON-RPC 2.0 on stdio the way the engine and the web worker do.
//
//go:build ignore

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

type message struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

var out = bufio.NewWriter(os.Stdout)

func send(v map[string]any) {
	v["jsonrpc"] = "2.0"
	data, _ := json.Marshal(v)
	out.Write(data)
	out.WriteByte('\n')
	out.Flush()
}

func reply(id int64, result any) {
	send(map[string]any{"id": id, "result": result})
}

func fail(id int64, code int, msg string) {
	send(map[string]any{"id": id, "error": map[string]any{"code": code, "message": msg}})
}

func main() {
	fmt.Fprintln(os.Stderr, "mock-app-server: listening")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		if msg.ID == nil {
			continue // notification
		}
		id := *msg.ID

		if msg.Method == "" {
			// Our own approval request was answered.
			send(map[string]any{"method": "test/approved", "params": map[string]any{"requestId": id, "result": msg.Result}})
			continue
		}

		switch msg.Method {
		case "initialize":
			reply(id, map[string]any{"userAgent": "mock-app-server"})
		case "health":
			reply(id, map[string]any{"running": true, "providers": map[string]any{}})
		case "test/echo":
			reply(id, msg.Params)
		case "test/env":
			reply(id, map[string]any{
				"codexHome":   os.Getenv("CODEX_HOME"),
				"profileRoot": os.Getenv("RAIL_WEB_PROFILE_ROOT"),
				"logPath":     os.Getenv("RAIL_WEB_LOG_PATH"),
			})
		case "test/approve":
			send(map[string]any{"id": 100, "method": "item/commandExecution/requestApproval", "params": map[string]any{"command": "ls"}})
			reply(id, map[string]any{"requested": true})
		case "test/crashOnce":
			marker := os.Getenv("MOCK_CRASH_MARKER")
			if _, err := os.Stat(marker); err != nil {
				os.WriteFile(marker, nil, 0o600)
				os.Exit(3)
			}
			reply(id, map[string]any{"recovered": true})
		case "test/error":
			fail(id, -32000, "test error from mock server")
		default:
			fail(id, -32601, fmt.Sprintf("method %q not found", msg.Method))
		}
	}
}
