package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/vouchnet/internal/ledger"
	"github.com/louisbranch/vouchnet/internal/marketplace"
)

// SkillListingResult represents a skill listing in MCP tool output.
type SkillListingResult struct {
	ListingID      string `json:"listing_id"`
	Author         string `json:"author"`
	SkillURI       string `json:"skill_uri"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	Price          uint64 `json:"price"`
	TotalDownloads uint64 `json:"total_downloads"`
	TotalRevenue   uint64 `json:"total_revenue"`
	Status         string `json:"status"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func skillListingResult(listing marketplace.SkillListing) SkillListingResult {
	return SkillListingResult{
		ListingID:      listing.ID,
		Author:         listing.Author,
		SkillURI:       listing.SkillURI,
		Name:           listing.Name,
		Description:    listing.Description,
		Price:          listing.Price,
		TotalDownloads: listing.TotalDownloads,
		TotalRevenue:   listing.TotalRevenue,
		Status:         listing.Status.String(),
		CreatedAt:      listing.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      listing.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// SkillCreateInput represents the MCP tool input for listing a skill.
type SkillCreateInput struct {
	Author      string `json:"author" jsonschema:"agent publishing the skill"`
	SkillURI    string `json:"skill_uri" jsonschema:"uri of the skill artifact"`
	Name        string `json:"name" jsonschema:"display name"`
	Description string `json:"description,omitempty" jsonschema:"optional description"`
	Price       uint64 `json:"price" jsonschema:"purchase price; must be positive"`
}

// SkillCreateTool defines the MCP tool schema for creating skill listings.
func SkillCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "skill_create",
		Description: "Publishes a priced skill listing on the marketplace",
	}
}

// SkillCreateHandler executes a skill listing request.
func SkillCreateHandler(svc *ledger.Service) mcp.ToolHandlerFor[SkillCreateInput, SkillListingResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SkillCreateInput) (*mcp.CallToolResult, SkillListingResult, error) {
		listing, err := svc.CreateSkillListing(ctx, input.Author, input.SkillURI, input.Name, input.Description, input.Price)
		if err != nil {
			return nil, SkillListingResult{}, fmt.Errorf("skill create failed: %w", err)
		}
		return nil, skillListingResult(listing), nil
	}
}

// SkillSetStatusInput represents the MCP tool input for changing a listing
// status.
type SkillSetStatusInput struct {
	Caller    string `json:"caller" jsonschema:"calling agent; must be the listing author"`
	ListingID string `json:"listing_id" jsonschema:"listing to update"`
	Status    string `json:"status" jsonschema:"target status: active, suspended, or removed"`
}

// SkillSetStatusTool defines the MCP tool schema for listing status changes.
func SkillSetStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "skill_set_status",
		Description: "Activates, suspends, or permanently removes a skill listing; author only",
	}
}

// SkillSetStatusHandler executes a listing status change request.
func SkillSetStatusHandler(svc *ledger.Service) mcp.ToolHandlerFor[SkillSetStatusInput, SkillListingResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SkillSetStatusInput) (*mcp.CallToolResult, SkillListingResult, error) {
		target := marketplace.ParseSkillStatus(input.Status)
		listing, err := svc.SetListingStatus(ctx, input.Caller, input.ListingID, target)
		if err != nil {
			return nil, SkillListingResult{}, fmt.Errorf("skill set status failed: %w", err)
		}
		return nil, skillListingResult(listing), nil
	}
}

// SkillPurchaseInput represents the MCP tool input for buying a skill.
type SkillPurchaseInput struct {
	Buyer     string `json:"buyer" jsonschema:"agent paying for the skill"`
	ListingID string `json:"listing_id" jsonschema:"active listing to purchase"`
}

// SkillPurchaseResult represents a purchase receipt in MCP tool output.
type SkillPurchaseResult struct {
	PurchaseID  string `json:"purchase_id"`
	ListingID   string `json:"listing_id"`
	Buyer       string `json:"buyer"`
	PricePaid   uint64 `json:"price_paid"`
	PurchasedAt string `json:"purchased_at"`
}

// SkillPurchaseTool defines the MCP tool schema for skill purchases.
func SkillPurchaseTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "skill_purchase",
		Description: "Buys a skill, splitting revenue between the author and their active vouchers",
	}
}

// SkillPurchaseHandler executes a skill purchase request.
func SkillPurchaseHandler(svc *ledger.Service) mcp.ToolHandlerFor[SkillPurchaseInput, SkillPurchaseResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SkillPurchaseInput) (*mcp.CallToolResult, SkillPurchaseResult, error) {
		receipt, err := svc.PurchaseSkill(ctx, input.Buyer, input.ListingID)
		if err != nil {
			return nil, SkillPurchaseResult{}, fmt.Errorf("skill purchase failed: %w", err)
		}
		return nil, SkillPurchaseResult{
			PurchaseID:  receipt.ID,
			ListingID:   receipt.ListingID,
			Buyer:       receipt.Buyer,
			PricePaid:   receipt.PricePaid,
			PurchasedAt: receipt.PurchasedAt.UTC().Format(time.RFC3339),
		}, nil
	}
}
