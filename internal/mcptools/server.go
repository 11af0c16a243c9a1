// Package mcptools exposes the ledger as an MCP tool surface.
//
// Callers identify themselves per call with explicit agent IDs; the ledger
// enforces the relationship checks (voucher-only revoke, authority-only
// resolution, author-only listing changes).
package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/vouchnet/internal/ledger"
)

const (
	// serverName identifies this MCP server to clients.
	serverName = "VouchNet MCP"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// New creates an MCP server with every ledger tool registered.
func New(svc *ledger.Service) *mcp.Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	registerAgentTools(mcpServer, svc)
	registerVouchTools(mcpServer, svc)
	registerDisputeTools(mcpServer, svc)
	registerSkillTools(mcpServer, svc)
	registerTreasuryTools(mcpServer, svc)
	registerAuditResources(mcpServer, svc)
	return mcpServer
}

// Run serves the MCP server over stdio until the context ends.
func Run(ctx context.Context, svc *ledger.Service) error {
	return New(svc).Run(ctx, &mcp.StdioTransport{})
}

func registerAgentTools(mcpServer *mcp.Server, svc *ledger.Service) {
	mcp.AddTool(mcpServer, AgentRegisterTool(), AgentRegisterHandler(svc))
	mcp.AddTool(mcpServer, AgentCreditTool(), AgentCreditHandler(svc))
	mcp.AddTool(mcpServer, AgentGetTool(), AgentGetHandler(svc))
	mcp.AddTool(mcpServer, ParamsUpdateTool(), ParamsUpdateHandler(svc))
}

func registerVouchTools(mcpServer *mcp.Server, svc *ledger.Service) {
	mcp.AddTool(mcpServer, VouchCreateTool(), VouchCreateHandler(svc))
	mcp.AddTool(mcpServer, VouchRevokeTool(), VouchRevokeHandler(svc))
	mcp.AddTool(mcpServer, VouchClaimStakeTool(), VouchClaimStakeHandler(svc))
	mcp.AddTool(mcpServer, VouchListTool(), VouchListHandler(svc))
}

func registerDisputeTools(mcpServer *mcp.Server, svc *ledger.Service) {
	mcp.AddTool(mcpServer, DisputeOpenTool(), DisputeOpenHandler(svc))
	mcp.AddTool(mcpServer, DisputeResolveTool(), DisputeResolveHandler(svc))
}

func registerSkillTools(mcpServer *mcp.Server, svc *ledger.Service) {
	mcp.AddTool(mcpServer, SkillCreateTool(), SkillCreateHandler(svc))
	mcp.AddTool(mcpServer, SkillSetStatusTool(), SkillSetStatusHandler(svc))
	mcp.AddTool(mcpServer, SkillPurchaseTool(), SkillPurchaseHandler(svc))
}

func registerTreasuryTools(mcpServer *mcp.Server, svc *ledger.Service) {
	mcp.AddTool(mcpServer, TreasuryGetTool(), TreasuryGetHandler(svc))
}

// registerAuditResources registers the readable audit journal.
func registerAuditResources(mcpServer *mcp.Server, svc *ledger.Service) {
	mcpServer.AddResource(AuditEventsResource(), AuditEventsResourceHandler(svc))
}
