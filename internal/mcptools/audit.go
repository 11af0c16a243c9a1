package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/vouchnet/internal/ledger"
)

const auditPageSize = 100

// AuditEventEntry represents one audit event in the resource payload.
type AuditEventEntry struct {
	ID         string            `json:"id"`
	Operation  string            `json:"operation"`
	Actor      string            `json:"actor,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	OccurredAt string            `json:"occurred_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditEventsPayload is the JSON body served by the audit events resource.
type AuditEventsPayload struct {
	Events        []AuditEventEntry `json:"events"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

// AuditEventsResource defines the MCP resource for the audit journal.
func AuditEventsResource() *mcp.Resource {
	return &mcp.Resource{
		Name:        "audit_events",
		Title:       "Audit Events",
		Description: "Readable journal of ledger operations in insertion order",
		MIMEType:    "application/json",
		URI:         "audit://events",
	}
}

// AuditEventsResourceHandler returns a readable audit journal resource.
func AuditEventsResourceHandler(svc *ledger.Service) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := AuditEventsResource().URI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}

		page, err := svc.ListAuditEvents(ctx, auditPageSize, "")
		if err != nil {
			return nil, fmt.Errorf("audit events list failed: %w", err)
		}

		payload := AuditEventsPayload{NextPageToken: page.NextPageToken}
		for _, event := range page.Events {
			payload.Events = append(payload.Events, AuditEventEntry{
				ID:         event.ID,
				Operation:  event.Operation,
				Actor:      event.Actor,
				EntityID:   event.EntityID,
				OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339),
				Metadata:   event.Metadata,
			})
		}

		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal audit events: %w", err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(data),
				},
			},
		}, nil
	}
}
