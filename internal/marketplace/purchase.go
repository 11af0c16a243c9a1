package marketplace

import (
	"fmt"
	"math"
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/id"
	"github.com/louisbranch/vouchnet/internal/reputation"
)

// Revenue split between the skill author and the pool shared by the
// author's active backers.
const (
	AuthorSharePercent = 60
	VoucherPoolPercent = 40
)

// SplitPrice divides a purchase price into the author share and the voucher
// pool, flooring both. Up to one unit of rounding residual stays with the
// buyer.
func SplitPrice(price uint64) (authorShare, voucherPool uint64) {
	return funds.MulDiv(price, AuthorSharePercent, 100), funds.MulDiv(price, VoucherPoolPercent, 100)
}

// Purchase is the receipt recorded for a completed skill purchase. PricePaid
// is the amount actually debited from the buyer, which can fall short of the
// list price when rounding or an empty backer pool leaves shares uncharged.
type Purchase struct {
	ID          string
	ListingID   string
	Buyer       string
	PricePaid   uint64
	PurchasedAt time.Time
}

// Backer pairs an active vouch on the author with its owning voucher record.
type Backer struct {
	Vouch reputation.Vouch
	Owner reputation.Agent
}

// PurchaseInput carries the records a purchase reads and mutates. Backers
// must be every live vouch whose vouchee is the listing author, in a stable
// order; non-active vouches are skipped during distribution.
type PurchaseInput struct {
	Listing SkillListing
	Buyer   reputation.Agent
	Author  reputation.Agent
	Backers []Backer
}

// PurchaseResult is the updated state after a purchase. Agents holds every
// touched agent record exactly once, even when the buyer also backs or
// authored the listing.
type PurchaseResult struct {
	Listing SkillListing
	Receipt Purchase
	Agents  []reputation.Agent
	Vouches []reputation.Vouch
	// AuthorShare and Distributed sum to the amount the buyer was charged.
	AuthorShare uint64
	VoucherPool uint64
	Distributed uint64
	Moves       []funds.Move
}

// PurchaseSkill charges the buyer and distributes revenue immediately: 60%
// to the author, and the 40% pool split among the author's active backers in
// proportion to stake. Rounding floors each share; the residual is never
// charged. With no active backers the pool is not charged at all. The
// listing's TotalRevenue counter always books the full list price.
func PurchaseSkill(in PurchaseInput, now func() time.Time, idGenerator func() (string, error)) (PurchaseResult, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if in.Listing.Status != SkillStatusActive {
		return PurchaseResult{}, ErrSkillNotActive
	}

	authorShare, voucherPool := SplitPrice(in.Listing.Price)

	// Agent records may alias (buyer buying from a vouchee they back, or
	// the author buying their own listing); mutate through a single map so
	// each record is updated once.
	agents := map[string]*reputation.Agent{}
	order := []string{}
	touch := func(a reputation.Agent) *reputation.Agent {
		if existing, ok := agents[a.ID]; ok {
			return existing
		}
		rec := a
		agents[a.ID] = &rec
		order = append(order, a.ID)
		return &rec
	}
	buyer := touch(in.Buyer)
	author := touch(in.Author)

	var totalStake uint64
	for _, b := range in.Backers {
		if b.Vouch.Status != reputation.VouchStatusActive || b.Vouch.Vouchee != in.Author.ID {
			continue
		}
		totalStake = satAdd(totalStake, b.Vouch.StakeAmount)
	}

	purchasedAt := now().UTC()
	result := PurchaseResult{
		AuthorShare: authorShare,
		VoucherPool: voucherPool,
	}

	var moves []funds.Move
	if authorShare > 0 {
		moves = append(moves, funds.Move{
			From:   funds.AgentAccount(buyer.ID),
			To:     funds.AgentAccount(author.ID),
			Amount: authorShare,
		})
	}

	var distributed uint64
	for _, b := range in.Backers {
		if b.Vouch.Status != reputation.VouchStatusActive || b.Vouch.Vouchee != in.Author.ID {
			continue
		}
		share := funds.MulDiv(voucherPool, b.Vouch.StakeAmount, totalStake)
		vouch := b.Vouch
		owner := touch(b.Owner)
		if share > 0 {
			vouch.CumulativeRevenue = satAdd(vouch.CumulativeRevenue, share)
			owner.Balance = satAdd(owner.Balance, share)
			distributed += share
			moves = append(moves, funds.Move{
				From:   funds.AgentAccount(buyer.ID),
				To:     funds.AgentAccount(owner.ID),
				Amount: share,
			})
		}
		vouch.LastPayoutAt = purchasedAt
		result.Vouches = append(result.Vouches, vouch)
	}

	cost := authorShare + distributed
	if in.Buyer.Balance < cost {
		return PurchaseResult{}, apperrors.WithMetadata(apperrors.CodeFundsInsufficient, "insufficient available balance", map[string]string{
			"required":  fmt.Sprintf("%d", cost),
			"available": fmt.Sprintf("%d", in.Buyer.Balance),
		})
	}
	buyer.Balance -= cost
	author.Balance = satAdd(author.Balance, authorShare)

	listing := in.Listing
	downloads, ok := checkedAdd(listing.TotalDownloads, 1)
	if !ok {
		return PurchaseResult{}, ErrCounterOverflow
	}
	revenue, ok := checkedAdd(listing.TotalRevenue, listing.Price)
	if !ok {
		return PurchaseResult{}, ErrCounterOverflow
	}
	listing.TotalDownloads = downloads
	listing.TotalRevenue = revenue
	listing.UpdatedAt = purchasedAt

	purchaseID, err := idGenerator()
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("generate purchase id: %w", err)
	}

	result.Listing = listing
	result.Receipt = Purchase{
		ID:          purchaseID,
		ListingID:   listing.ID,
		Buyer:       in.Buyer.ID,
		PricePaid:   cost,
		PurchasedAt: purchasedAt,
	}
	result.Distributed = distributed
	result.Moves = moves
	for _, agentID := range order {
		result.Agents = append(result.Agents, *agents[agentID])
	}
	return result, nil
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func checkedAdd(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}
