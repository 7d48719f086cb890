package approval

import (
	"context"
	"log/slog"

	"github.com/ormasoftchile/rail/pkg/config"
	"github.com/ormasoftchile/rail/pkg/events"
	"github.com/ormasoftchile/rail/pkg/logger"
)

// RespondFunc answers an approval request.
type RespondFunc func(ctx context.Context, requestID uint64, result any) error

// Responder applies a Policy to approval events as they arrive.
type Responder struct {
	Policy  *Policy
	Respond RespondFunc
	Cwd     string
	// OnPrompt receives requests the policy leaves to a human. Optional.
	OnPrompt func(req events.ApprovalRequest)
	// OnDecided is called after an automatic answer. Optional.
	OnDecided func(req events.ApprovalRequest, v Verdict, err error)

	log *slog.Logger
}

// Run consumes events until ctx is done or the channel closes.
func (r *Responder) Run(ctx context.Context, in <-chan events.Event) {
	if r.log == nil {
		r.log = logger.WithComponent("approval")
	}
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			req, isApproval := e.Payload.(events.ApprovalRequest)
			if !isApproval {
				continue
			}
			r.Handle(ctx, req)
		}
	}
}

// Handle decides one request and responds if the decision is automatic.
func (r *Responder) Handle(ctx context.Context, req events.ApprovalRequest) {
	if r.log == nil {
		r.log = logger.WithComponent("approval")
	}
	v := r.Policy.Decide(req, r.Cwd)
	if v.Decision == config.DecisionPrompt {
		if r.OnPrompt != nil {
			r.OnPrompt(req)
		}
		return
	}

	err := r.Respond(ctx, req.RequestID, Result(v.Decision))
	if err != nil {
		r.log.Warn("automatic approval response failed", "requestId", req.RequestID, "decision", v.Decision, "error", err)
	} else {
		r.log.Info("approval answered by policy", "requestId", req.RequestID, "method", req.Method, "decision", v.Decision, "rule", v.Rule)
	}
	if r.OnDecided != nil {
		r.OnDecided(req, v, err)
	}
}
