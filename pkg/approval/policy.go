// Package approval decides engine approval requests from configured rules
// and answers them on the host's behalf.
package approval

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/logger"
)

type rule struct {
	name     string
	when     string
	decision string
	program  *vm.Program
}

// Policy evaluates rules in order; the first rule whose condition holds
// decides. Requests no rule matches get the default decision.
type Policy struct {
	rules    []rule
	fallback string
	log      *slog.Logger
}

// Verdict is the outcome of a policy evaluation.
type Verdict struct {
	Decision string
	// Rule is empty when the default applied.
	Rule string
}

// NewPolicy compiles every rule in cfg.
func NewPolicy(cfg config.ApprovalConfig) (*Policy, error) {
	p := &Policy{fallback: cfg.Default, log: logger.WithComponent("approval")}
	if p.fallback == "" {
		p.fallback = config.DecisionPrompt
	}
	env := buildEnv(events.ApprovalRequest{}, "")
	for _, r := range cfg.Rules {
		program, err := expr.Compile(strings.TrimSpace(r.When), expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		p.rules = append(p.rules, rule{name: r.Name, when: r.When, decision: r.Decision, program: program})
	}
	return p, nil
}

// Decide evaluates req. A rule whose condition fails to evaluate is skipped.
func (p *Policy) Decide(req events.ApprovalRequest, cwd string) Verdict {
	env := buildEnv(req, cwd)
	for _, r := range p.rules {
		out, err := expr.Run(r.program, env)
		if err != nil {
			p.log.Debug("rule evaluation failed", "rule", r.name, "requestId", req.RequestID, "error", err)
			continue
		}
		if ok, _ := out.(bool); ok {
			return Verdict{Decision: r.decision, Rule: r.name}
		}
	}
	return Verdict{Decision: p.fallback}
}

// Rules returns the rule names in evaluation order.
func (p *Policy) Rules() []string {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.name
	}
	return names
}

func buildEnv(req events.ApprovalRequest, cwd string) map[string]any {
	params := map[string]any{}
	if len(req.Params) > 0 {
		var decoded any
		if err := json.Unmarshal(req.Params, &decoded); err == nil {
			if m, ok := decoded.(map[string]any); ok {
				params = m
			}
		}
	}
	return map[string]any{
		"requestId": req.RequestID,
		"method":    req.Method,
		"params":    params,
		"cwd":       cwd,
	}
}

// Result builds the response payload for a decision.
func Result(decision string) map[string]any {
	return map[string]any{"decision": decision}
}
