package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/vouchnet/internal/ledger"
	"github.com/louisbranch/vouchnet/internal/reputation"
)

// AgentRegisterInput represents the MCP tool input for agent registration.
type AgentRegisterInput struct {
	AgentID     string `json:"agent_id" jsonschema:"unique agent identifier"`
	MetadataURI string `json:"metadata_uri,omitempty" jsonschema:"optional off-chain metadata uri"`
}

// AgentResult represents an agent record in MCP tool output.
type AgentResult struct {
	AgentID              string `json:"agent_id"`
	MetadataURI          string `json:"metadata_uri,omitempty"`
	Balance              uint64 `json:"balance"`
	ReputationScore      uint64 `json:"reputation_score"`
	TotalVouchesReceived uint32 `json:"total_vouches_received"`
	TotalVouchesGiven    uint32 `json:"total_vouches_given"`
	TotalStakedFor       uint64 `json:"total_staked_for"`
	DisputesWon          uint32 `json:"disputes_won"`
	DisputesLost         uint32 `json:"disputes_lost"`
	RegisteredAt         string `json:"registered_at"`
}

func agentResult(agent reputation.Agent) AgentResult {
	return AgentResult{
		AgentID:              agent.ID,
		MetadataURI:          agent.MetadataURI,
		Balance:              agent.Balance,
		ReputationScore:      agent.ReputationScore,
		TotalVouchesReceived: agent.TotalVouchesReceived,
		TotalVouchesGiven:    agent.TotalVouchesGiven,
		TotalStakedFor:       agent.TotalStakedFor,
		DisputesWon:          agent.DisputesWon,
		DisputesLost:         agent.DisputesLost,
		RegisteredAt:         agent.RegisteredAt.UTC().Format(time.RFC3339),
	}
}

// AgentRegisterTool defines the MCP tool schema for registering agents.
func AgentRegisterTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "agent_register",
		Description: "Registers a new agent identity in the reputation ledger",
	}
}

// AgentRegisterHandler executes an agent registration request.
func AgentRegisterHandler(svc *ledger.Service) mcp.ToolHandlerFor[AgentRegisterInput, AgentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AgentRegisterInput) (*mcp.CallToolResult, AgentResult, error) {
		agent, err := svc.RegisterAgent(ctx, input.AgentID, input.MetadataURI)
		if err != nil {
			return nil, AgentResult{}, fmt.Errorf("agent register failed: %w", err)
		}
		return nil, agentResult(agent), nil
	}
}

// AgentCreditInput represents the MCP tool input for crediting an agent.
type AgentCreditInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent to credit"`
	Amount  uint64 `json:"amount" jsonschema:"value to add to the available balance"`
}

// AgentCreditTool defines the MCP tool schema for crediting balances.
func AgentCreditTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "agent_credit",
		Description: "Credits external value to an agent's available balance",
	}
}

// AgentCreditHandler executes a balance credit request.
func AgentCreditHandler(svc *ledger.Service) mcp.ToolHandlerFor[AgentCreditInput, AgentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AgentCreditInput) (*mcp.CallToolResult, AgentResult, error) {
		agent, err := svc.CreditAgent(ctx, input.AgentID, input.Amount)
		if err != nil {
			return nil, AgentResult{}, fmt.Errorf("agent credit failed: %w", err)
		}
		return nil, agentResult(agent), nil
	}
}

// AgentGetInput represents the MCP tool input for reading an agent.
type AgentGetInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent to look up"`
}

// AgentGetTool defines the MCP tool schema for reading agent records.
func AgentGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "agent_get",
		Description: "Returns an agent record with its current reputation score",
	}
}

// AgentGetHandler executes an agent lookup request.
func AgentGetHandler(svc *ledger.Service) mcp.ToolHandlerFor[AgentGetInput, AgentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AgentGetInput) (*mcp.CallToolResult, AgentResult, error) {
		agent, err := svc.GetAgent(ctx, input.AgentID)
		if err != nil {
			return nil, AgentResult{}, fmt.Errorf("agent get failed: %w", err)
		}
		return nil, agentResult(agent), nil
	}
}

// ParamsUpdateInput represents the MCP tool input for parameter changes.
type ParamsUpdateInput struct {
	Caller         string `json:"caller" jsonschema:"calling agent; must be the ledger authority"`
	Authority      string `json:"authority" jsonschema:"agent allowed to resolve disputes and change parameters"`
	MinStake       uint64 `json:"min_stake" jsonschema:"minimum vouch stake"`
	DisputeBond    uint64 `json:"dispute_bond" jsonschema:"bond escrowed when opening a dispute"`
	SlashPercent   uint8  `json:"slash_percent" jsonschema:"stake percentage forfeited on an adverse ruling (0-100)"`
	CooldownHours  uint32 `json:"cooldown_hours" jsonschema:"revocation hold before stake release, in hours"`
	StakeWeight    uint32 `json:"stake_weight" jsonschema:"score weight per staked unit"`
	VouchWeight    uint32 `json:"vouch_weight" jsonschema:"score weight per received vouch"`
	DisputePenalty uint32 `json:"dispute_penalty" jsonschema:"score penalty per lost dispute"`
	LongevityBonus uint32 `json:"longevity_bonus" jsonschema:"score bonus per day of registration age"`
}

// ParamsResult represents ledger parameters in MCP tool output.
type ParamsResult struct {
	Authority      string `json:"authority"`
	MinStake       uint64 `json:"min_stake"`
	DisputeBond    uint64 `json:"dispute_bond"`
	SlashPercent   uint8  `json:"slash_percent"`
	CooldownHours  uint32 `json:"cooldown_hours"`
	StakeWeight    uint32 `json:"stake_weight"`
	VouchWeight    uint32 `json:"vouch_weight"`
	DisputePenalty uint32 `json:"dispute_penalty"`
	LongevityBonus uint32 `json:"longevity_bonus"`
}

// ParamsUpdateTool defines the MCP tool schema for parameter changes.
func ParamsUpdateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "params_update",
		Description: "Bootstraps or updates the ledger parameters; authority only",
	}
}

// ParamsUpdateHandler executes a parameter change request.
func ParamsUpdateHandler(svc *ledger.Service) mcp.ToolHandlerFor[ParamsUpdateInput, ParamsResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ParamsUpdateInput) (*mcp.CallToolResult, ParamsResult, error) {
		params := reputation.Params{
			Authority:      input.Authority,
			MinStake:       input.MinStake,
			DisputeBond:    input.DisputeBond,
			SlashPercent:   input.SlashPercent,
			Cooldown:       time.Duration(input.CooldownHours) * time.Hour,
			StakeWeight:    input.StakeWeight,
			VouchWeight:    input.VouchWeight,
			DisputePenalty: input.DisputePenalty,
			LongevityBonus: input.LongevityBonus,
		}
		updated, err := svc.UpdateParams(ctx, input.Caller, params)
		if err != nil {
			return nil, ParamsResult{}, fmt.Errorf("params update failed: %w", err)
		}
		return nil, ParamsResult{
			Authority:      updated.Authority,
			MinStake:       updated.MinStake,
			DisputeBond:    updated.DisputeBond,
			SlashPercent:   updated.SlashPercent,
			CooldownHours:  uint32(updated.Cooldown / time.Hour),
			StakeWeight:    updated.StakeWeight,
			VouchWeight:    updated.VouchWeight,
			DisputePenalty: updated.DisputePenalty,
			LongevityBonus: updated.LongevityBonus,
		}, nil
	}
}
