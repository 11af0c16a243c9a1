package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/vouchnet/internal/ledger"
	"github.com/louisbranch/vouchnet/internal/reputation"
)

// DisputeResult represents a dispute record in MCP tool output.
type DisputeResult struct {
	DisputeID   string `json:"dispute_id"`
	VouchID     string `json:"vouch_id"`
	Challenger  string `json:"challenger"`
	EvidenceURI string `json:"evidence_uri,omitempty"`
	Escrow      uint64 `json:"escrow"`
	Status      string `json:"status"`
	Ruling      string `json:"ruling,omitempty"`
	CreatedAt   string `json:"created_at"`
	ResolvedAt  string `json:"resolved_at,omitempty"`
}

func disputeResult(dispute reputation.Dispute) DisputeResult {
	result := DisputeResult{
		DisputeID:   dispute.ID,
		VouchID:     dispute.VouchID,
		Challenger:  dispute.Challenger,
		EvidenceURI: dispute.EvidenceURI,
		Escrow:      dispute.Escrow,
		Status:      dispute.Status.String(),
		CreatedAt:   dispute.CreatedAt.UTC().Format(time.RFC3339),
	}
	if dispute.Ruling != reputation.RulingUnspecified {
		result.Ruling = dispute.Ruling.String()
	}
	if dispute.ResolvedAt != nil {
		result.ResolvedAt = dispute.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return result
}

// DisputeOpenInput represents the MCP tool input for opening a dispute.
type DisputeOpenInput struct {
	Challenger  string `json:"challenger" jsonschema:"agent challenging the vouch; posts the dispute bond"`
	VouchID     string `json:"vouch_id" jsonschema:"active vouch being challenged"`
	EvidenceURI string `json:"evidence_uri,omitempty" jsonschema:"optional off-chain evidence uri"`
}

// DisputeOpenTool defines the MCP tool schema for opening disputes.
func DisputeOpenTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "dispute_open",
		Description: "Challenges an active vouch, escrowing the challenger's dispute bond",
	}
}

// DisputeOpenHandler executes a dispute open request.
func DisputeOpenHandler(svc *ledger.Service) mcp.ToolHandlerFor[DisputeOpenInput, DisputeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DisputeOpenInput) (*mcp.CallToolResult, DisputeResult, error) {
		dispute, err := svc.OpenDispute(ctx, input.Challenger, input.VouchID, input.EvidenceURI)
		if err != nil {
			return nil, DisputeResult{}, fmt.Errorf("dispute open failed: %w", err)
		}
		return nil, disputeResult(dispute), nil
	}
}

// DisputeResolveInput represents the MCP tool input for resolving a dispute.
type DisputeResolveInput struct {
	Caller    string `json:"caller" jsonschema:"calling agent; must be the ledger authority"`
	DisputeID string `json:"dispute_id" jsonschema:"open dispute to resolve"`
	Ruling    string `json:"ruling" jsonschema:"either slash_voucher or vindicate"`
}

// DisputeResolveTool defines the MCP tool schema for resolving disputes.
func DisputeResolveTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "dispute_resolve",
		Description: "Applies a ruling to an open dispute; authority only",
	}
}

// DisputeResolveHandler executes a dispute resolution request.
func DisputeResolveHandler(svc *ledger.Service) mcp.ToolHandlerFor[DisputeResolveInput, DisputeResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DisputeResolveInput) (*mcp.CallToolResult, DisputeResult, error) {
		ruling := reputation.ParseRuling(input.Ruling)
		dispute, err := svc.ResolveDispute(ctx, input.Caller, input.DisputeID, ruling)
		if err != nil {
			return nil, DisputeResult{}, fmt.Errorf("dispute resolve failed: %w", err)
		}
		return nil, disputeResult(dispute), nil
	}
}
