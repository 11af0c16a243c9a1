package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/vouchnet/internal/ledger"
	"github.com/louisbranch/vouchnet/internal/reputation"
)

// VouchResult represents a vouch record in MCP tool output.
type VouchResult struct {
	VouchID           string `json:"vouch_id"`
	Voucher           string `json:"voucher"`
	Vouchee           string `json:"vouchee"`
	StakeAmount       uint64 `json:"stake_amount"`
	Escrow            uint64 `json:"escrow"`
	CumulativeRevenue uint64 `json:"cumulative_revenue"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
	LastPayoutAt      string `json:"last_payout_at,omitempty"`
	StakeReleaseAt    string `json:"stake_release_at,omitempty"`
}

func vouchResult(vouch reputation.Vouch) VouchResult {
	result := VouchResult{
		VouchID:           vouch.ID,
		Voucher:           vouch.Voucher,
		Vouchee:           vouch.Vouchee,
		StakeAmount:       vouch.StakeAmount,
		Escrow:            vouch.Escrow,
		CumulativeRevenue: vouch.CumulativeRevenue,
		Status:            vouch.Status.String(),
		CreatedAt:         vouch.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !vouch.LastPayoutAt.IsZero() {
		result.LastPayoutAt = vouch.LastPayoutAt.UTC().Format(time.RFC3339)
	}
	if vouch.StakeReleaseAt != nil {
		result.StakeReleaseAt = vouch.StakeReleaseAt.UTC().Format(time.RFC3339)
	}
	return result
}

// VouchCreateInput represents the MCP tool input for staking a vouch.
type VouchCreateInput struct {
	Voucher string `json:"voucher" jsonschema:"agent staking on the vouchee"`
	Vouchee string `json:"vouchee" jsonschema:"agent being vouched for"`
	Stake   uint64 `json:"stake" jsonschema:"value to lock behind the vouch"`
}

// VouchCreateTool defines the MCP tool schema for creating vouches.
func VouchCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vouch_create",
		Description: "Stakes value behind another agent, creating an active vouch",
	}
}

// VouchCreateHandler executes a vouch creation request.
func VouchCreateHandler(svc *ledger.Service) mcp.ToolHandlerFor[VouchCreateInput, VouchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input VouchCreateInput) (*mcp.CallToolResult, VouchResult, error) {
		vouch, err := svc.CreateVouch(ctx, input.Voucher, input.Vouchee, input.Stake)
		if err != nil {
			return nil, VouchResult{}, fmt.Errorf("vouch create failed: %w", err)
		}
		return nil, vouchResult(vouch), nil
	}
}

// VouchRevokeInput represents the MCP tool input for revoking a vouch.
type VouchRevokeInput struct {
	Caller  string `json:"caller" jsonschema:"calling agent; must be the voucher"`
	VouchID string `json:"vouch_id" jsonschema:"vouch to revoke"`
}

// VouchRevokeTool defines the MCP tool schema for revoking vouches.
func VouchRevokeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vouch_revoke",
		Description: "Revokes an active vouch; the stake releases immediately or after the cooldown",
	}
}

// VouchRevokeHandler executes a vouch revocation request.
func VouchRevokeHandler(svc *ledger.Service) mcp.ToolHandlerFor[VouchRevokeInput, VouchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input VouchRevokeInput) (*mcp.CallToolResult, VouchResult, error) {
		vouch, err := svc.RevokeVouch(ctx, input.Caller, input.VouchID)
		if err != nil {
			return nil, VouchResult{}, fmt.Errorf("vouch revoke failed: %w", err)
		}
		return nil, vouchResult(vouch), nil
	}
}

// VouchClaimStakeInput represents the MCP tool input for claiming a held stake.
type VouchClaimStakeInput struct {
	Caller  string `json:"caller" jsonschema:"calling agent; must be the voucher"`
	VouchID string `json:"vouch_id" jsonschema:"revoked vouch whose cooldown has elapsed"`
}

// VouchClaimStakeTool defines the MCP tool schema for claiming held stakes.
func VouchClaimStakeTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vouch_claim_stake",
		Description: "Releases the stake of a revoked vouch once its cooldown has elapsed",
	}
}

// VouchClaimStakeHandler executes a stake claim request.
func VouchClaimStakeHandler(svc *ledger.Service) mcp.ToolHandlerFor[VouchClaimStakeInput, VouchResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input VouchClaimStakeInput) (*mcp.CallToolResult, VouchResult, error) {
		vouch, err := svc.ClaimRevokedStake(ctx, input.Caller, input.VouchID)
		if err != nil {
			return nil, VouchResult{}, fmt.Errorf("vouch claim stake failed: %w", err)
		}
		return nil, vouchResult(vouch), nil
	}
}

// VouchListInput represents the MCP tool input for listing an agent's vouches.
type VouchListInput struct {
	AgentID   string `json:"agent_id" jsonschema:"agent whose vouches to list, as voucher or vouchee"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"maximum vouches per page"`
	PageToken string `json:"page_token,omitempty" jsonschema:"token from a previous page"`
}

// VouchListResult represents one page of vouches in MCP tool output.
type VouchListResult struct {
	Vouches       []VouchResult `json:"vouches"`
	NextPageToken string        `json:"next_page_token,omitempty"`
}

// VouchListTool defines the MCP tool schema for listing vouches.
func VouchListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "vouch_list",
		Description: "Lists vouches naming an agent as voucher or vouchee, paged by vouch ID",
	}
}

// VouchListHandler executes a vouch listing request.
func VouchListHandler(svc *ledger.Service) mcp.ToolHandlerFor[VouchListInput, VouchListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input VouchListInput) (*mcp.CallToolResult, VouchListResult, error) {
		page, err := svc.ListVouchesFor(ctx, input.AgentID, input.PageSize, input.PageToken)
		if err != nil {
			return nil, VouchListResult{}, fmt.Errorf("vouch list failed: %w", err)
		}
		result := VouchListResult{
			Vouches:       make([]VouchResult, 0, len(page.Vouches)),
			NextPageToken: page.NextPageToken,
		}
		for _, vouch := range page.Vouches {
			result.Vouches = append(result.Vouches, vouchResult(vouch))
		}
		return nil, result, nil
	}
}
