package gateway

import (
	"context"
	"fmt"
)

const messagePreviewLen = 120

// PlaceholderGateway is the provider adapter seam used until a real agent
// provider SDK is wired in.
type PlaceholderGateway struct{}

// NewPlaceholderGateway creates a gateway that returns a deterministic
// placeholder string describing the call it received.
func NewPlaceholderGateway() *PlaceholderGateway {
	return &PlaceholderGateway{}
}

func (g *PlaceholderGateway) Execute(_ context.Context, tenantID, agentID, message string) (string, error) {
	preview := message
	if len(preview) > messagePreviewLen {
		preview = preview[:messagePreviewLen]
	}
	return fmt.Sprintf("[tenant=%s] [agent=%s] placeholder agent output for: %s", tenantID, agentID, preview), nil
}
