// Package gateway isolates the admission pipeline from any concrete agent
// provider behind a single opaque seam.
package gateway

import "context"

// AgentGateway executes an agent run and returns its output text. Real
// provider SDK calls belong behind an implementation of this interface so
// callers stay provider-agnostic.
type AgentGateway interface {
	Execute(ctx context.Context, tenantID, agentID, message string) (outputText string, err error)
}
