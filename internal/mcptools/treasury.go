package mcptools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/vouchnet/internal/ledger"
)

// TreasuryGetInput carries no fields; the treasury is a singleton account.
type TreasuryGetInput struct{}

// TreasuryGetResult represents the treasury balance in MCP tool output.
type TreasuryGetResult struct {
	Balance uint64 `json:"balance"`
}

// TreasuryGetTool defines the MCP tool schema for reading the treasury.
func TreasuryGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "treasury_get",
		Description: "Returns the balance accumulated from slashes and forfeited bonds",
	}
}

// TreasuryGetHandler executes a treasury balance request.
func TreasuryGetHandler(svc *ledger.Service) mcp.ToolHandlerFor[TreasuryGetInput, TreasuryGetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ TreasuryGetInput) (*mcp.CallToolResult, TreasuryGetResult, error) {
		balance, err := svc.TreasuryBalance(ctx)
		if err != nil {
			return nil, TreasuryGetResult{}, fmt.Errorf("treasury get failed: %w", err)
		}
		return nil, TreasuryGetResult{Balance: balance}, nil
	}
}
