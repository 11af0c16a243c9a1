package marketplace

import (
	"errors"
	"math"
	"testing"
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/reputation"
)

func TestSplitPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		price       uint64
		authorShare uint64
		voucherPool uint64
	}{
		{100, 60, 40},
		{10, 6, 4},
		{1, 0, 0},
		{3, 1, 1},
		{99, 59, 39},
	}

	for _, tc := range tests {
		author, pool := SplitPrice(tc.price)
		if author != tc.authorShare || pool != tc.voucherPool {
			t.Fatalf("split %d = %d/%d, want %d/%d", tc.price, author, pool, tc.authorShare, tc.voucherPool)
		}
	}
}

func testListing(price uint64) SkillListing {
	created := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	return SkillListing{
		ID:        "skill-1",
		Author:    "author-1",
		SkillURI:  "ipfs://skill",
		Name:      "translator",
		Price:     price,
		CreatedAt: created,
		UpdatedAt: created,
		Status:    SkillStatusActive,
	}
}

func activeBacker(vouchID, owner string, stake uint64) Backer {
	return Backer{
		Vouch: reputation.Vouch{
			ID:          vouchID,
			Voucher:     owner,
			Vouchee:     "author-1",
			StakeAmount: stake,
			Escrow:      stake,
			Status:      reputation.VouchStatusActive,
		},
		Owner: reputation.Agent{ID: owner, Balance: 0},
	}
}

func TestPurchaseSkillDistributesRevenue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	in := PurchaseInput{
		Listing: testListing(100),
		Buyer:   reputation.Agent{ID: "buyer-1", Balance: 500},
		Author:  reputation.Agent{ID: "author-1", Balance: 50},
		Backers: []Backer{
			activeBacker("vouch-1", "voucher-1", 300),
			activeBacker("vouch-2", "voucher-2", 700),
		},
	}

	result, err := PurchaseSkill(in, fixedClock(now), fixedID("purchase-1"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	if result.AuthorShare != 60 || result.VoucherPool != 40 || result.Distributed != 40 {
		t.Fatalf("split = %d/%d/%d, want 60/40/40", result.AuthorShare, result.VoucherPool, result.Distributed)
	}
	if result.Receipt.PricePaid != 100 || result.Receipt.Buyer != "buyer-1" || result.Receipt.ListingID != "skill-1" {
		t.Fatalf("receipt = %+v", result.Receipt)
	}
	if result.Listing.TotalDownloads != 1 || result.Listing.TotalRevenue != 100 {
		t.Fatalf("counters = %d/%d, want 1/100", result.Listing.TotalDownloads, result.Listing.TotalRevenue)
	}

	balances := map[string]uint64{}
	for _, a := range result.Agents {
		balances[a.ID] = a.Balance
	}
	if balances["buyer-1"] != 400 {
		t.Fatalf("buyer balance = %d, want 400", balances["buyer-1"])
	}
	if balances["author-1"] != 110 {
		t.Fatalf("author balance = %d, want 110", balances["author-1"])
	}
	if balances["voucher-1"] != 12 || balances["voucher-2"] != 28 {
		t.Fatalf("voucher balances = %d/%d, want 12/28", balances["voucher-1"], balances["voucher-2"])
	}

	if len(result.Vouches) != 2 {
		t.Fatalf("vouches = %d, want 2", len(result.Vouches))
	}
	if result.Vouches[0].CumulativeRevenue != 12 || result.Vouches[1].CumulativeRevenue != 28 {
		t.Fatalf("cumulative revenue = %d/%d, want 12/28", result.Vouches[0].CumulativeRevenue, result.Vouches[1].CumulativeRevenue)
	}
	for _, v := range result.Vouches {
		if !v.LastPayoutAt.Equal(now) {
			t.Fatalf("vouch %s last payout = %v, want %v", v.ID, v.LastPayoutAt, now)
		}
	}

	wantMoves := []funds.Move{
		{From: funds.AgentAccount("buyer-1"), To: funds.AgentAccount("author-1"), Amount: 60},
		{From: funds.AgentAccount("buyer-1"), To: funds.AgentAccount("voucher-1"), Amount: 12},
		{From: funds.AgentAccount("buyer-1"), To: funds.AgentAccount("voucher-2"), Amount: 28},
	}
	if len(result.Moves) != len(wantMoves) {
		t.Fatalf("moves = %v, want %v", result.Moves, wantMoves)
	}
	for i, want := range wantMoves {
		if result.Moves[i] != want {
			t.Fatalf("move %d = %v, want %v", i, result.Moves[i], want)
		}
	}
}

func TestPurchaseSkillRoundingResidualStaysWithBuyer(t *testing.T) {
	t.Parallel()

	in := PurchaseInput{
		Listing: testListing(100),
		Buyer:   reputation.Agent{ID: "buyer-1", Balance: 100},
		Author:  reputation.Agent{ID: "author-1"},
		Backers: []Backer{
			activeBacker("vouch-1", "voucher-1", 1),
			activeBacker("vouch-2", "voucher-2", 2),
		},
	}

	result, err := PurchaseSkill(in, nil, fixedID("purchase-1"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// Pool is 40; shares floor to 13 and 26, leaving one unit uncharged.
	if result.Distributed != 39 {
		t.Fatalf("distributed = %d, want 39", result.Distributed)
	}
	if result.Receipt.PricePaid != 99 {
		t.Fatalf("price paid = %d, want 99", result.Receipt.PricePaid)
	}
	if result.Listing.TotalRevenue != 100 {
		t.Fatalf("total revenue = %d, want the full list price", result.Listing.TotalRevenue)
	}
	if result.Vouches[0].CumulativeRevenue != 13 || result.Vouches[1].CumulativeRevenue != 26 {
		t.Fatalf("cumulative revenue = %d/%d, want 13/26", result.Vouches[0].CumulativeRevenue, result.Vouches[1].CumulativeRevenue)
	}

	balances := map[string]uint64{}
	for _, a := range result.Agents {
		balances[a.ID] = a.Balance
	}
	if balances["buyer-1"] != 1 {
		t.Fatalf("buyer balance = %d, want 1", balances["buyer-1"])
	}
}

func TestPurchaseSkillWithoutBackersSkipsPool(t *testing.T) {
	t.Parallel()

	in := PurchaseInput{
		Listing: testListing(100),
		Buyer:   reputation.Agent{ID: "buyer-1", Balance: 60},
		Author:  reputation.Agent{ID: "author-1"},
	}

	result, err := PurchaseSkill(in, nil, fixedID("purchase-1"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if result.Distributed != 0 {
		t.Fatalf("distributed = %d, want 0", result.Distributed)
	}
	if result.Receipt.PricePaid != 60 {
		t.Fatalf("price paid = %d, want 60", result.Receipt.PricePaid)
	}
	// The counter books the list price even when the pool goes uncharged.
	if result.Listing.TotalRevenue != 100 {
		t.Fatalf("total revenue = %d, want 100", result.Listing.TotalRevenue)
	}
	if len(result.Moves) != 1 {
		t.Fatalf("moves = %v, want a single author move", result.Moves)
	}
}

func TestPurchaseSkillSkipsNonActiveVouches(t *testing.T) {
	t.Parallel()

	revoked := activeBacker("vouch-2", "voucher-2", 700)
	revoked.Vouch.Status = reputation.VouchStatusRevoked
	in := PurchaseInput{
		Listing: testListing(100),
		Buyer:   reputation.Agent{ID: "buyer-1", Balance: 200},
		Author:  reputation.Agent{ID: "author-1"},
		Backers: []Backer{
			activeBacker("vouch-1", "voucher-1", 300),
			revoked,
		},
	}

	result, err := PurchaseSkill(in, nil, fixedID("purchase-1"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// The sole active backer takes the whole pool.
	if result.Distributed != 40 {
		t.Fatalf("distributed = %d, want 40", result.Distributed)
	}
	if len(result.Vouches) != 1 || result.Vouches[0].ID != "vouch-1" {
		t.Fatalf("updated vouches = %v, want only vouch-1", result.Vouches)
	}
	if result.Vouches[0].CumulativeRevenue != 40 {
		t.Fatalf("cumulative revenue = %d, want 40", result.Vouches[0].CumulativeRevenue)
	}
}

func TestPurchaseSkillBuyerIsAlsoBacker(t *testing.T) {
	t.Parallel()

	backer := activeBacker("vouch-1", "buyer-1", 500)
	backer.Owner.Balance = 100
	in := PurchaseInput{
		Listing: testListing(100),
		Buyer:   reputation.Agent{ID: "buyer-1", Balance: 100},
		Author:  reputation.Agent{ID: "author-1"},
		Backers: []Backer{backer},
	}

	result, err := PurchaseSkill(in, nil, fixedID("purchase-1"))
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// One record for the buyer: debited 100, credited its own 40 share.
	balances := map[string]uint64{}
	for _, a := range result.Agents {
		if _, ok := balances[a.ID]; ok {
			t.Fatalf("agent %s appears twice in result", a.ID)
		}
		balances[a.ID] = a.Balance
	}
	if balances["buyer-1"] != 40 {
		t.Fatalf("buyer balance = %d, want 40", balances["buyer-1"])
	}
	if balances["author-1"] != 60 {
		t.Fatalf("author balance = %d, want 60", balances["author-1"])
	}
}

func TestPurchaseSkillRequiresActiveListing(t *testing.T) {
	t.Parallel()

	for _, status := range []SkillStatus{SkillStatusSuspended, SkillStatusRemoved} {
		listing := testListing(100)
		listing.Status = status
		in := PurchaseInput{
			Listing: listing,
			Buyer:   reputation.Agent{ID: "buyer-1", Balance: 500},
			Author:  reputation.Agent{ID: "author-1"},
		}
		if _, err := PurchaseSkill(in, nil, fixedID("purchase-1")); !errors.Is(err, ErrSkillNotActive) {
			t.Fatalf("status %v: expected ErrSkillNotActive, got %v", status, err)
		}
	}
}

func TestPurchaseSkillInsufficientBalance(t *testing.T) {
	t.Parallel()

	in := PurchaseInput{
		Listing: testListing(100),
		Buyer:   reputation.Agent{ID: "buyer-1", Balance: 99},
		Author:  reputation.Agent{ID: "author-1"},
		Backers: []Backer{activeBacker("vouch-1", "voucher-1", 300)},
	}

	_, err := PurchaseSkill(in, nil, fixedID("purchase-1"))
	if !apperrors.IsCode(err, apperrors.CodeFundsInsufficient) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestPurchaseSkillCounterOverflow(t *testing.T) {
	t.Parallel()

	listing := testListing(100)
	listing.TotalRevenue = math.MaxUint64
	in := PurchaseInput{
		Listing: listing,
		Buyer:   reputation.Agent{ID: "buyer-1", Balance: 500},
		Author:  reputation.Agent{ID: "author-1"},
	}

	_, err := PurchaseSkill(in, nil, fixedID("purchase-1"))
	if !errors.Is(err, ErrCounterOverflow) {
		t.Fatalf("expected ErrCounterOverflow, got %v", err)
	}
	if apperrors.GetKind(err) != apperrors.KindInvariant {
		t.Fatalf("kind = %v, want invariant", apperrors.GetKind(err))
	}
}
