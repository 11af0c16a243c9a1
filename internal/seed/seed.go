// Package seed populates a local ledger database with demo data: a funded
// cohort of agents, vouches between them, a skill listing with one purchase,
// and a resolved dispute. It exists so a fresh checkout has something to
// inspect over MCP.
package seed

import (
	"context"
	"fmt"
	"io"

	"github.com/louisbranch/vouchnet/internal/ledger"
	"github.com/louisbranch/vouchnet/internal/reputation"
)

// Config holds seed runner configuration.
type Config struct {
	Authority string
	Verbose   bool
	Out       io.Writer
}

type agentFixture struct {
	id          string
	metadataURI string
	balance     uint64
}

var demoAgents = []agentFixture{
	{id: "agent-atlas", metadataURI: "ipfs://agents/atlas", balance: 10_000},
	{id: "agent-beacon", metadataURI: "ipfs://agents/beacon", balance: 8_000},
	{id: "agent-cipher", metadataURI: "ipfs://agents/cipher", balance: 6_000},
	{id: "agent-drift", metadataURI: "ipfs://agents/drift", balance: 4_000},
}

// Run seeds the ledger behind svc. It is not idempotent: running it against
// a non-empty database fails on the first duplicate agent.
func Run(ctx context.Context, svc *ledger.Service, cfg Config) error {
	if svc == nil {
		return fmt.Errorf("ledger service is required")
	}
	if cfg.Authority == "" {
		cfg.Authority = "agent-atlas"
	}

	params := reputation.DefaultParams(cfg.Authority)
	if _, err := svc.UpdateParams(ctx, cfg.Authority, params); err != nil {
		return fmt.Errorf("bootstrap params: %w", err)
	}
	cfg.logf("params bootstrapped with authority %s", cfg.Authority)

	for _, fixture := range demoAgents {
		if _, err := svc.RegisterAgent(ctx, fixture.id, fixture.metadataURI); err != nil {
			return fmt.Errorf("register %s: %w", fixture.id, err)
		}
		if _, err := svc.CreditAgent(ctx, fixture.id, fixture.balance); err != nil {
			return fmt.Errorf("credit %s: %w", fixture.id, err)
		}
		cfg.logf("registered %s with balance %d", fixture.id, fixture.balance)
	}

	backing, err := svc.CreateVouch(ctx, "agent-atlas", "agent-beacon", 1_000)
	if err != nil {
		return fmt.Errorf("vouch atlas->beacon: %w", err)
	}
	if _, err := svc.CreateVouch(ctx, "agent-cipher", "agent-beacon", 500); err != nil {
		return fmt.Errorf("vouch cipher->beacon: %w", err)
	}
	contested, err := svc.CreateVouch(ctx, "agent-beacon", "agent-drift", 800)
	if err != nil {
		return fmt.Errorf("vouch beacon->drift: %w", err)
	}
	cfg.logf("created vouches %s and %s", backing.ID, contested.ID)

	listing, err := svc.CreateSkillListing(ctx, "agent-beacon",
		"ipfs://skills/summarizer", "Summarizer",
		"Condenses long documents into briefs", 200)
	if err != nil {
		return fmt.Errorf("create listing: %w", err)
	}
	if _, err := svc.PurchaseSkill(ctx, "agent-drift", listing.ID); err != nil {
		return fmt.Errorf("purchase %s: %w", listing.ID, err)
	}
	cfg.logf("listed and sold skill %s", listing.ID)

	dispute, err := svc.OpenDispute(ctx, "agent-cipher", contested.ID, "ipfs://evidence/drift-failure")
	if err != nil {
		return fmt.Errorf("open dispute: %w", err)
	}
	if _, err := svc.ResolveDispute(ctx, cfg.Authority, dispute.ID, reputation.RulingSlashVoucher); err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	cfg.logf("resolved dispute %s against the voucher", dispute.ID)

	return nil
}

func (c Config) logf(format string, args ...any) {
	if !c.Verbose || c.Out == nil {
		return
	}
	fmt.Fprintf(c.Out, format+"\n", args...)
}
