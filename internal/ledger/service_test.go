package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/marketplace"
	"github.com/louisbranch/vouchnet/internal/reputation"
	"github.com/louisbranch/vouchnet/internal/storage"
	"github.com/louisbranch/vouchnet/internal/storage/sqlite"
)

// testClock is a settable clock shared with the service under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T, opts ...Option) (*Service, *testClock) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := newTestClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(store, opts...), clock
}

func bootstrap(t *testing.T, svc *Service, cooldown time.Duration) reputation.Params {
	t.Helper()
	params := reputation.DefaultParams("authority-1")
	params.Cooldown = cooldown
	got, err := svc.UpdateParams(context.Background(), "authority-1", params)
	if err != nil {
		t.Fatalf("bootstrap params: %v", err)
	}
	return got
}

func registerFunded(t *testing.T, svc *Service, agentID string, balance uint64) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.RegisterAgent(ctx, agentID, "ipfs://"+agentID); err != nil {
		t.Fatalf("register %s: %v", agentID, err)
	}
	if balance > 0 {
		if _, err := svc.CreditAgent(ctx, agentID, balance); err != nil {
			t.Fatalf("credit %s: %v", agentID, err)
		}
	}
}

func TestUpdateParamsBootstrapAndAuthority(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	params := reputation.DefaultParams("authority-1")
	if _, err := svc.UpdateParams(ctx, "impostor", params); !errors.Is(err, reputation.ErrAuthorityOnly) {
		t.Fatalf("expected ErrAuthorityOnly on bootstrap, got %v", err)
	}

	got := bootstrap(t, svc, 0)
	if got.Version != 1 || got.Authority != "authority-1" {
		t.Fatalf("params = %+v", got)
	}

	got.MinStake = 250
	if _, err := svc.UpdateParams(ctx, "impostor", got); !errors.Is(err, reputation.ErrAuthorityOnly) {
		t.Fatalf("expected ErrAuthorityOnly, got %v", err)
	}
	updated, err := svc.UpdateParams(ctx, "authority-1", got)
	if err != nil {
		t.Fatalf("update params: %v", err)
	}
	if updated.MinStake != 250 || updated.Version != 2 {
		t.Fatalf("params = %+v", updated)
	}
}

func TestRegisterAndCreditAgent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)

	registerFunded(t, svc, "agent-1", 1000)

	if _, err := svc.RegisterAgent(ctx, "agent-1", ""); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	agent, err := svc.GetAgent(ctx, "agent-1")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if agent.Balance != 1000 {
		t.Fatalf("balance = %d, want 1000", agent.Balance)
	}
}

func TestCreateVouchFlow(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)
	registerFunded(t, svc, "voucher-1", 5000)
	registerFunded(t, svc, "vouchee-1", 0)

	vouch, err := svc.CreateVouch(ctx, "voucher-1", "vouchee-1", 1000)
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}
	if vouch.Status != reputation.VouchStatusActive || vouch.Escrow != 1000 {
		t.Fatalf("vouch = %+v", vouch)
	}

	voucher, err := svc.GetAgent(ctx, "voucher-1")
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if voucher.Balance != 4000 || voucher.TotalVouchesGiven != 1 {
		t.Fatalf("voucher = %+v", voucher)
	}
	vouchee, err := svc.GetAgent(ctx, "vouchee-1")
	if err != nil {
		t.Fatalf("get vouchee: %v", err)
	}
	if vouchee.TotalStakedFor != 1000 || vouchee.ReputationScore == 0 {
		t.Fatalf("vouchee = %+v", vouchee)
	}

	// The escrow account mirrors the vouch record.
	escrow, err := svc.store.AccountBalance(ctx, funds.VouchAccount(vouch.ID))
	if err != nil {
		t.Fatalf("escrow balance: %v", err)
	}
	if escrow != 1000 {
		t.Fatalf("escrow = %d, want 1000", escrow)
	}

	if _, err := svc.CreateVouch(ctx, "voucher-1", "vouchee-1", 1000); !errors.Is(err, reputation.ErrDuplicateVouch) {
		t.Fatalf("expected ErrDuplicateVouch, got %v", err)
	}
}

func TestRevokeReleasesInlineWithoutCooldown(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)
	registerFunded(t, svc, "voucher-1", 5000)
	registerFunded(t, svc, "vouchee-1", 0)

	vouch, err := svc.CreateVouch(ctx, "voucher-1", "vouchee-1", 1000)
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}
	revoked, err := svc.RevokeVouch(ctx, "voucher-1", vouch.ID)
	if err != nil {
		t.Fatalf("revoke vouch: %v", err)
	}
	if revoked.Status != reputation.VouchStatusRevoked || revoked.Escrow != 0 {
		t.Fatalf("vouch = %+v", revoked)
	}
	voucher, err := svc.GetAgent(ctx, "voucher-1")
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if voucher.Balance != 5000 {
		t.Fatalf("balance = %d, want 5000", voucher.Balance)
	}
}

func TestRevokeCooldownHoldsThenReleases(t *testing.T) {
	t.Parallel()

	svc, clock := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 24*time.Hour)
	registerFunded(t, svc, "voucher-1", 5000)
	registerFunded(t, svc, "vouchee-1", 0)

	vouch, err := svc.CreateVouch(ctx, "voucher-1", "vouchee-1", 1000)
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}
	revoked, err := svc.RevokeVouch(ctx, "voucher-1", vouch.ID)
	if err != nil {
		t.Fatalf("revoke vouch: %v", err)
	}
	if revoked.Escrow != 1000 || revoked.StakeReleaseAt == nil {
		t.Fatalf("vouch = %+v, want held escrow", revoked)
	}

	if _, err := svc.ClaimRevokedStake(ctx, "voucher-1", vouch.ID); !errors.Is(err, reputation.ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}

	clock.Advance(25 * time.Hour)
	claimed, err := svc.ClaimRevokedStake(ctx, "voucher-1", vouch.ID)
	if err != nil {
		t.Fatalf("claim stake: %v", err)
	}
	if claimed.Escrow != 0 {
		t.Fatalf("escrow = %d, want 0", claimed.Escrow)
	}
	voucher, err := svc.GetAgent(ctx, "voucher-1")
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if voucher.Balance != 5000 {
		t.Fatalf("balance = %d, want 5000", voucher.Balance)
	}

	if _, err := svc.ClaimRevokedStake(ctx, "voucher-1", vouch.ID); !errors.Is(err, reputation.ErrStakeAlreadyClaimed) {
		t.Fatalf("expected ErrStakeAlreadyClaimed, got %v", err)
	}
}

func setupDispute(t *testing.T, svc *Service) reputation.Dispute {
	t.Helper()
	ctx := context.Background()
	registerFunded(t, svc, "voucher-1", 5000)
	registerFunded(t, svc, "vouchee-1", 0)
	registerFunded(t, svc, "challenger-1", 200)

	vouch, err := svc.CreateVouch(ctx, "voucher-1", "vouchee-1", 1000)
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}
	dispute, err := svc.OpenDispute(ctx, "challenger-1", vouch.ID, "ipfs://evidence")
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	return dispute
}

func TestDisputeSlashFlow(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)
	dispute := setupDispute(t, svc)

	resolved, err := svc.ResolveDispute(ctx, "authority-1", dispute.ID, reputation.RulingSlashVoucher)
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if resolved.Status != reputation.DisputeStatusResolved || resolved.Ruling != reputation.RulingSlashVoucher {
		t.Fatalf("dispute = %+v", resolved)
	}

	// Stake 1000 at 50%: 500 to the treasury, 500 back to the voucher.
	treasury, err := svc.TreasuryBalance(ctx)
	if err != nil {
		t.Fatalf("treasury balance: %v", err)
	}
	if treasury != 500 {
		t.Fatalf("treasury = %d, want 500", treasury)
	}
	voucher, err := svc.GetAgent(ctx, "voucher-1")
	if err != nil {
		t.Fatalf("get voucher: %v", err)
	}
	if voucher.Balance != 4500 || voucher.DisputesLost != 1 {
		t.Fatalf("voucher = %+v", voucher)
	}
	challenger, err := svc.GetAgent(ctx, "challenger-1")
	if err != nil {
		t.Fatalf("get challenger: %v", err)
	}
	if challenger.Balance != 200 {
		t.Fatalf("challenger balance = %d, want bond returned", challenger.Balance)
	}

	vouch, err := svc.GetVouch(ctx, dispute.VouchID)
	if err != nil {
		t.Fatalf("get vouch: %v", err)
	}
	if vouch.Status != reputation.VouchStatusSlashed || vouch.Escrow != 0 {
		t.Fatalf("vouch = %+v", vouch)
	}
}

func TestDisputeVindicateFlow(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)
	dispute := setupDispute(t, svc)

	if _, err := svc.ResolveDispute(ctx, "impostor", dispute.ID, reputation.RulingVindicate); !errors.Is(err, reputation.ErrResolveUnauthorized) {
		t.Fatalf("expected ErrResolveUnauthorized, got %v", err)
	}

	resolved, err := svc.ResolveDispute(ctx, "authority-1", dispute.ID, reputation.RulingVindicate)
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if resolved.Ruling != reputation.RulingVindicate {
		t.Fatalf("dispute = %+v", resolved)
	}

	// The challenger forfeits the bond to the treasury; the stake stays.
	treasury, err := svc.TreasuryBalance(ctx)
	if err != nil {
		t.Fatalf("treasury balance: %v", err)
	}
	if treasury != 50 {
		t.Fatalf("treasury = %d, want 50", treasury)
	}
	challenger, err := svc.GetAgent(ctx, "challenger-1")
	if err != nil {
		t.Fatalf("get challenger: %v", err)
	}
	if challenger.Balance != 150 {
		t.Fatalf("challenger balance = %d, want 150", challenger.Balance)
	}
	vouch, err := svc.GetVouch(ctx, dispute.VouchID)
	if err != nil {
		t.Fatalf("get vouch: %v", err)
	}
	if vouch.Status != reputation.VouchStatusVindicated || vouch.Escrow != 1000 {
		t.Fatalf("vouch = %+v", vouch)
	}
}

func TestResolveDisputeWithArbiter(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, WithArbiter(reputation.FixedRuling(reputation.RulingVindicate)))
	ctx := context.Background()
	bootstrap(t, svc, 0)
	dispute := setupDispute(t, svc)

	resolved, err := svc.ResolveDisputeWithArbiter(ctx, dispute.ID)
	if err != nil {
		t.Fatalf("resolve with arbiter: %v", err)
	}
	if resolved.Ruling != reputation.RulingVindicate {
		t.Fatalf("dispute = %+v", resolved)
	}
}

func TestPurchaseSkillFlow(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)
	registerFunded(t, svc, "author-1", 0)
	registerFunded(t, svc, "voucher-1", 5000)
	registerFunded(t, svc, "voucher-2", 5000)
	registerFunded(t, svc, "buyer-1", 500)

	if _, err := svc.CreateVouch(ctx, "voucher-1", "author-1", 300); err != nil {
		t.Fatalf("vouch 1: %v", err)
	}
	if _, err := svc.CreateVouch(ctx, "voucher-2", "author-1", 700); err != nil {
		t.Fatalf("vouch 2: %v", err)
	}

	listing, err := svc.CreateSkillListing(ctx, "author-1", "ipfs://skill", "translator", "translates text", 100)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}

	receipt, err := svc.PurchaseSkill(ctx, "buyer-1", listing.ID)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if receipt.PricePaid != 100 {
		t.Fatalf("price paid = %d, want 100", receipt.PricePaid)
	}

	author, err := svc.GetAgent(ctx, "author-1")
	if err != nil {
		t.Fatalf("get author: %v", err)
	}
	if author.Balance != 60 {
		t.Fatalf("author balance = %d, want 60", author.Balance)
	}
	voucher1, err := svc.GetAgent(ctx, "voucher-1")
	if err != nil {
		t.Fatalf("get voucher 1: %v", err)
	}
	if voucher1.Balance != 5000-300+12 {
		t.Fatalf("voucher 1 balance = %d, want %d", voucher1.Balance, 5000-300+12)
	}
	voucher2, err := svc.GetAgent(ctx, "voucher-2")
	if err != nil {
		t.Fatalf("get voucher 2: %v", err)
	}
	if voucher2.Balance != 5000-700+28 {
		t.Fatalf("voucher 2 balance = %d, want %d", voucher2.Balance, 5000-700+28)
	}
	buyer, err := svc.GetAgent(ctx, "buyer-1")
	if err != nil {
		t.Fatalf("get buyer: %v", err)
	}
	if buyer.Balance != 400 {
		t.Fatalf("buyer balance = %d, want 400", buyer.Balance)
	}

	updated, err := svc.GetListing(ctx, listing.ID)
	if err != nil {
		t.Fatalf("get listing: %v", err)
	}
	if updated.TotalDownloads != 1 || updated.TotalRevenue != 100 {
		t.Fatalf("listing = %+v", updated)
	}
}

func TestSetListingStatusGatesPurchases(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)
	registerFunded(t, svc, "author-1", 0)
	registerFunded(t, svc, "buyer-1", 500)

	listing, err := svc.CreateSkillListing(ctx, "author-1", "ipfs://skill", "translator", "", 100)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	if _, err := svc.SetListingStatus(ctx, "author-1", listing.ID, marketplace.SkillStatusSuspended); err != nil {
		t.Fatalf("suspend listing: %v", err)
	}
	if _, err := svc.PurchaseSkill(ctx, "buyer-1", listing.ID); !errors.Is(err, marketplace.ErrSkillNotActive) {
		t.Fatalf("expected ErrSkillNotActive, got %v", err)
	}
}

func TestAuditTrailRecordsOperations(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)
	registerFunded(t, svc, "voucher-1", 5000)
	registerFunded(t, svc, "vouchee-1", 0)
	if _, err := svc.CreateVouch(ctx, "voucher-1", "vouchee-1", 1000); err != nil {
		t.Fatalf("create vouch: %v", err)
	}

	page, err := svc.ListAuditEvents(ctx, 50, "")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	operations := map[string]int{}
	for _, event := range page.Events {
		operations[event.Operation]++
	}
	for _, want := range []string{"params.update", "agent.register", "agent.credit", "vouch.create"} {
		if operations[want] == 0 {
			t.Fatalf("missing %q in audit trail: %v", want, operations)
		}
	}
}

func TestPurchaseInsufficientBalanceSurfacesCode(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()
	bootstrap(t, svc, 0)
	registerFunded(t, svc, "author-1", 0)
	registerFunded(t, svc, "buyer-1", 10)

	listing, err := svc.CreateSkillListing(ctx, "author-1", "ipfs://skill", "translator", "", 100)
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	_, err = svc.PurchaseSkill(ctx, "buyer-1", listing.ID)
	if !apperrors.IsCode(err, apperrors.CodeFundsInsufficient) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}
