// Package ledger orchestrates reputation and marketplace operations over
// persistent storage.
//
// Each operation loads current records, runs the pure transition, and
// commits the resulting mutation atomically. Optimistic version conflicts
// are retried from a fresh read a bounded number of times.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/id"
	"github.com/louisbranch/vouchnet/internal/marketplace"
	"github.com/louisbranch/vouchnet/internal/reputation"
	"github.com/louisbranch/vouchnet/internal/storage"
	"github.com/louisbranch/vouchnet/internal/telemetry"
)

// applyAttempts bounds optimistic concurrency retries per operation.
const applyAttempts = 3

// Service exposes the ledger operations backed by a store.
type Service struct {
	store    storage.Store
	recorder *telemetry.Recorder
	arbiter  reputation.Arbiter
	tracer   trace.Tracer
	clock    func() time.Time
	newID    func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects a deterministic clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIDGenerator injects a deterministic ID source.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithArbiter wires the arbiter consulted by ResolveDisputeWithArbiter.
func WithArbiter(arbiter reputation.Arbiter) Option {
	return func(s *Service) { s.arbiter = arbiter }
}

// NewService creates a ledger service backed by the store.
func NewService(store storage.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tracer: otel.Tracer("vouchnet/ledger"),
		clock:  time.Now,
		newID:  id.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = telemetry.NewRecorderWith(s.clock, s.newID)
	return s
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// applyWithRetry rebuilds and commits a mutation, retrying version
// conflicts from a fresh read.
func (s *Service) applyWithRetry(ctx context.Context, build func(context.Context) (storage.Mutation, error)) error {
	var err error
	for attempt := 0; attempt < applyAttempts; attempt++ {
		var mutation storage.Mutation
		mutation, err = build(ctx)
		if err != nil {
			return err
		}
		err = s.store.Apply(ctx, mutation)
		if err == nil || !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}
	}
	return err
}

// RegisterAgent creates a new agent identity.
func (s *Service) RegisterAgent(ctx context.Context, agentID, metadataURI string) (agent reputation.Agent, err error) {
	ctx, span := s.start(ctx, "ledger.RegisterAgent", attribute.String("agent.id", agentID))
	defer func() { finish(span, err) }()

	agent, err = reputation.RegisterAgent(agentID, metadataURI, s.clock)
	if err != nil {
		return reputation.Agent{}, err
	}
	event, err := s.recorder.Event("agent.register", agentID, agentID, nil)
	if err != nil {
		return reputation.Agent{}, err
	}
	mutation := storage.Mutation{
		Agents: []reputation.Agent{agent},
		Events: []storage.AuditEvent{event},
	}
	if err = s.store.Apply(ctx, mutation); err != nil {
		return reputation.Agent{}, err
	}
	return s.store.GetAgent(ctx, agentID)
}

// GetAgent returns one agent with its reputation score refreshed against
// the current clock. The stored record is not rewritten on read.
func (s *Service) GetAgent(ctx context.Context, agentID string) (agent reputation.Agent, err error) {
	ctx, span := s.start(ctx, "ledger.GetAgent", attribute.String("agent.id", agentID))
	defer func() { finish(span, err) }()

	agent, err = s.store.GetAgent(ctx, agentID)
	if err != nil {
		return reputation.Agent{}, err
	}
	params, err := s.store.GetParams(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return agent, nil
		}
		return reputation.Agent{}, err
	}
	agent.ReputationScore = reputation.Score(agent, params, s.clock())
	return agent, nil
}

// CreditAgent moves external value into an agent's available balance.
func (s *Service) CreditAgent(ctx context.Context, agentID string, amount uint64) (agent reputation.Agent, err error) {
	ctx, span := s.start(ctx, "ledger.CreditAgent",
		attribute.String("agent.id", agentID),
		attribute.Int64("amount", int64(amount)))
	defer func() { finish(span, err) }()

	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		current, err := s.store.GetAgent(ctx, agentID)
		if err != nil {
			return storage.Mutation{}, err
		}
		credited, move, err := reputation.CreditAgent(current, amount)
		if err != nil {
			return storage.Mutation{}, err
		}
		event, err := s.recorder.Event("agent.credit", agentID, agentID, map[string]string{
			"amount": fmt.Sprintf("%d", amount),
		})
		if err != nil {
			return storage.Mutation{}, err
		}
		agent = credited
		return storage.Mutation{
			Agents: []reputation.Agent{credited},
			Moves:  []funds.Move{move},
			Events: []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		return reputation.Agent{}, err
	}
	return s.store.GetAgent(ctx, agentID)
}

// GetParams returns the current ledger parameters.
func (s *Service) GetParams(ctx context.Context) (reputation.Params, error) {
	return s.store.GetParams(ctx)
}

// UpdateParams replaces the ledger parameters. The first write bootstraps
// the configuration; afterwards only the configured authority may change it.
func (s *Service) UpdateParams(ctx context.Context, caller string, params reputation.Params) (updated reputation.Params, err error) {
	ctx, span := s.start(ctx, "ledger.UpdateParams", attribute.String("caller", caller))
	defer func() { finish(span, err) }()

	if err = params.Validate(); err != nil {
		return reputation.Params{}, err
	}

	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		current, err := s.store.GetParams(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Bootstrap: the caller becomes accountable as the authority.
			if caller != params.Authority {
				return storage.Mutation{}, reputation.ErrAuthorityOnly
			}
			params.Version = 0
		case err != nil:
			return storage.Mutation{}, err
		default:
			if caller != current.Authority {
				return storage.Mutation{}, reputation.ErrAuthorityOnly
			}
			params.Version = current.Version
		}
		event, err := s.recorder.Event("params.update", caller, "params", nil)
		if err != nil {
			return storage.Mutation{}, err
		}
		next := params
		return storage.Mutation{
			Params: &next,
			Events: []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		return reputation.Params{}, err
	}
	return s.store.GetParams(ctx)
}

// CreateVouch stakes value from the voucher behind the vouchee.
func (s *Service) CreateVouch(ctx context.Context, voucherID, voucheeID string, stake uint64) (vouch reputation.Vouch, err error) {
	ctx, span := s.start(ctx, "ledger.CreateVouch",
		attribute.String("voucher.id", voucherID),
		attribute.String("vouchee.id", voucheeID),
		attribute.Int64("stake", int64(stake)))
	defer func() { finish(span, err) }()

	var vouchID string
	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		params, err := s.store.GetParams(ctx)
		if err != nil {
			return storage.Mutation{}, err
		}
		voucher, err := s.store.GetAgent(ctx, voucherID)
		if err != nil {
			return storage.Mutation{}, err
		}
		vouchee, err := s.store.GetAgent(ctx, voucheeID)
		if err != nil {
			return storage.Mutation{}, err
		}
		if _, err := s.store.GetLiveVouchByPair(ctx, voucherID, voucheeID); err == nil {
			return storage.Mutation{}, reputation.ErrDuplicateVouch
		} else if !errors.Is(err, storage.ErrNotFound) {
			return storage.Mutation{}, err
		}

		result, err := reputation.CreateVouch(voucher, vouchee, stake, params, s.clock, s.newID)
		if err != nil {
			return storage.Mutation{}, err
		}
		event, err := s.recorder.Event("vouch.create", voucherID, result.Vouch.ID, map[string]string{
			"vouchee": voucheeID,
			"stake":   fmt.Sprintf("%d", stake),
		})
		if err != nil {
			return storage.Mutation{}, err
		}
		vouchID = result.Vouch.ID
		return storage.Mutation{
			Agents:  []reputation.Agent{result.Voucher, result.Vouchee},
			Vouches: []reputation.Vouch{result.Vouch},
			Moves:   result.Moves,
			Events:  []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		// The live-pair index closes the race the pre-check leaves open.
		if errors.Is(err, storage.ErrAlreadyExists) {
			return reputation.Vouch{}, reputation.ErrDuplicateVouch
		}
		return reputation.Vouch{}, err
	}
	return s.store.GetVouch(ctx, vouchID)
}

// RevokeVouch withdraws an active vouch. With a cooldown configured the
// stake stays escrowed until ClaimRevokedStake.
func (s *Service) RevokeVouch(ctx context.Context, callerID, vouchID string) (vouch reputation.Vouch, err error) {
	ctx, span := s.start(ctx, "ledger.RevokeVouch",
		attribute.String("caller", callerID),
		attribute.String("vouch.id", vouchID))
	defer func() { finish(span, err) }()

	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		params, err := s.store.GetParams(ctx)
		if err != nil {
			return storage.Mutation{}, err
		}
		current, err := s.store.GetVouch(ctx, vouchID)
		if err != nil {
			return storage.Mutation{}, err
		}
		voucher, err := s.store.GetAgent(ctx, current.Voucher)
		if err != nil {
			return storage.Mutation{}, err
		}
		vouchee, err := s.store.GetAgent(ctx, current.Vouchee)
		if err != nil {
			return storage.Mutation{}, err
		}

		result, err := reputation.RevokeVouch(current, voucher, vouchee, callerID, params, s.clock)
		if err != nil {
			return storage.Mutation{}, err
		}
		event, err := s.recorder.Event("vouch.revoke", callerID, vouchID, nil)
		if err != nil {
			return storage.Mutation{}, err
		}
		return storage.Mutation{
			Agents:  []reputation.Agent{result.Voucher, result.Vouchee},
			Vouches: []reputation.Vouch{result.Vouch},
			Moves:   result.Moves,
			Events:  []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		return reputation.Vouch{}, err
	}
	return s.store.GetVouch(ctx, vouchID)
}

// ClaimRevokedStake releases a revoked vouch's stake after its cooldown.
func (s *Service) ClaimRevokedStake(ctx context.Context, callerID, vouchID string) (vouch reputation.Vouch, err error) {
	ctx, span := s.start(ctx, "ledger.ClaimRevokedStake",
		attribute.String("caller", callerID),
		attribute.String("vouch.id", vouchID))
	defer func() { finish(span, err) }()

	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		current, err := s.store.GetVouch(ctx, vouchID)
		if err != nil {
			return storage.Mutation{}, err
		}
		voucher, err := s.store.GetAgent(ctx, current.Voucher)
		if err != nil {
			return storage.Mutation{}, err
		}

		result, err := reputation.ClaimRevokedStake(current, voucher, callerID, s.clock)
		if err != nil {
			return storage.Mutation{}, err
		}
		event, err := s.recorder.Event("vouch.claim_stake", callerID, vouchID, nil)
		if err != nil {
			return storage.Mutation{}, err
		}
		return storage.Mutation{
			Agents:  []reputation.Agent{result.Voucher},
			Vouches: []reputation.Vouch{result.Vouch},
			Moves:   result.Moves,
			Events:  []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		return reputation.Vouch{}, err
	}
	return s.store.GetVouch(ctx, vouchID)
}

// GetVouch returns one vouch by ID.
func (s *Service) GetVouch(ctx context.Context, vouchID string) (reputation.Vouch, error) {
	return s.store.GetVouch(ctx, vouchID)
}

// ListVouchesFor returns one page of vouches the agent gave or received.
func (s *Service) ListVouchesFor(ctx context.Context, agentID string, pageSize int, pageToken string) (storage.VouchPage, error) {
	return s.store.ListVouchesForAgent(ctx, agentID, pageSize, pageToken)
}

// OpenDispute challenges an active vouch, escrowing the dispute bond.
func (s *Service) OpenDispute(ctx context.Context, challengerID, vouchID, evidenceURI string) (dispute reputation.Dispute, err error) {
	ctx, span := s.start(ctx, "ledger.OpenDispute",
		attribute.String("challenger.id", challengerID),
		attribute.String("vouch.id", vouchID))
	defer func() { finish(span, err) }()

	var disputeID string
	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		params, err := s.store.GetParams(ctx)
		if err != nil {
			return storage.Mutation{}, err
		}
		current, err := s.store.GetVouch(ctx, vouchID)
		if err != nil {
			return storage.Mutation{}, err
		}
		challenger, err := s.store.GetAgent(ctx, challengerID)
		if err != nil {
			return storage.Mutation{}, err
		}

		result, err := reputation.OpenDispute(current, challenger, evidenceURI, params, s.clock, s.newID)
		if err != nil {
			return storage.Mutation{}, err
		}
		event, err := s.recorder.Event("dispute.open", challengerID, result.Dispute.ID, map[string]string{
			"vouch": vouchID,
		})
		if err != nil {
			return storage.Mutation{}, err
		}
		disputeID = result.Dispute.ID
		return storage.Mutation{
			Agents:   []reputation.Agent{result.Challenger},
			Vouches:  []reputation.Vouch{result.Vouch},
			Disputes: []reputation.Dispute{result.Dispute},
			Moves:    result.Moves,
			Events:   []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		return reputation.Dispute{}, err
	}
	return s.store.GetDispute(ctx, disputeID)
}

// ResolveDispute applies the authority's ruling to an open dispute.
func (s *Service) ResolveDispute(ctx context.Context, callerID, disputeID string, ruling reputation.Ruling) (dispute reputation.Dispute, err error) {
	ctx, span := s.start(ctx, "ledger.ResolveDispute",
		attribute.String("caller", callerID),
		attribute.String("dispute.id", disputeID),
		attribute.String("ruling", ruling.String()))
	defer func() { finish(span, err) }()

	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		params, err := s.store.GetParams(ctx)
		if err != nil {
			return storage.Mutation{}, err
		}
		current, err := s.store.GetDispute(ctx, disputeID)
		if err != nil {
			return storage.Mutation{}, err
		}
		vouch, err := s.store.GetVouch(ctx, current.VouchID)
		if err != nil {
			return storage.Mutation{}, err
		}
		voucher, err := s.store.GetAgent(ctx, vouch.Voucher)
		if err != nil {
			return storage.Mutation{}, err
		}
		vouchee, err := s.store.GetAgent(ctx, vouch.Vouchee)
		if err != nil {
			return storage.Mutation{}, err
		}
		challenger, err := s.store.GetAgent(ctx, current.Challenger)
		if err != nil {
			return storage.Mutation{}, err
		}

		result, err := reputation.ResolveDispute(reputation.ResolveDisputeInput{
			Dispute:    current,
			Vouch:      vouch,
			Voucher:    voucher,
			Vouchee:    vouchee,
			Challenger: challenger,
		}, ruling, callerID, params, s.clock)
		if err != nil {
			return storage.Mutation{}, err
		}
		event, err := s.recorder.Event("dispute.resolve", callerID, disputeID, map[string]string{
			"ruling": ruling.String(),
			"slash":  fmt.Sprintf("%d", result.SlashAmount),
		})
		if err != nil {
			return storage.Mutation{}, err
		}
		// The three parties are guaranteed distinct: self-vouching and
		// party self-challenges are rejected at open time.
		return storage.Mutation{
			Agents:   []reputation.Agent{result.Voucher, result.Vouchee, result.Challenger},
			Vouches:  []reputation.Vouch{result.Vouch},
			Disputes: []reputation.Dispute{result.Dispute},
			Moves:    result.Moves,
			Events:   []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		return reputation.Dispute{}, err
	}
	return s.store.GetDispute(ctx, disputeID)
}

// ResolveDisputeWithArbiter asks the configured arbiter for a ruling and
// applies it on the authority's behalf.
func (s *Service) ResolveDisputeWithArbiter(ctx context.Context, disputeID string) (reputation.Dispute, error) {
	if s.arbiter == nil {
		return reputation.Dispute{}, fmt.Errorf("no arbiter is configured")
	}
	dispute, err := s.store.GetDispute(ctx, disputeID)
	if err != nil {
		return reputation.Dispute{}, err
	}
	ruling, err := s.arbiter.Rule(ctx, dispute)
	if err != nil {
		return reputation.Dispute{}, fmt.Errorf("arbiter ruling: %w", err)
	}
	params, err := s.store.GetParams(ctx)
	if err != nil {
		return reputation.Dispute{}, err
	}
	return s.ResolveDispute(ctx, params.Authority, disputeID, ruling)
}

// GetDispute returns one dispute by ID.
func (s *Service) GetDispute(ctx context.Context, disputeID string) (reputation.Dispute, error) {
	return s.store.GetDispute(ctx, disputeID)
}

// CreateSkillListing publishes a skill for the author.
func (s *Service) CreateSkillListing(ctx context.Context, authorID, skillURI, name, description string, price uint64) (listing marketplace.SkillListing, err error) {
	ctx, span := s.start(ctx, "ledger.CreateSkillListing",
		attribute.String("author.id", authorID),
		attribute.Int64("price", int64(price)))
	defer func() { finish(span, err) }()

	if _, err = s.store.GetAgent(ctx, authorID); err != nil {
		return marketplace.SkillListing{}, err
	}
	listing, err = marketplace.NewSkillListing(authorID, skillURI, name, description, price, s.clock, s.newID)
	if err != nil {
		return marketplace.SkillListing{}, err
	}
	event, err := s.recorder.Event("skill.create", authorID, listing.ID, map[string]string{
		"price": fmt.Sprintf("%d", price),
	})
	if err != nil {
		return marketplace.SkillListing{}, err
	}
	mutation := storage.Mutation{
		Listings: []marketplace.SkillListing{listing},
		Events:   []storage.AuditEvent{event},
	}
	if err = s.store.Apply(ctx, mutation); err != nil {
		return marketplace.SkillListing{}, err
	}
	return s.store.GetListing(ctx, listing.ID)
}

// SetListingStatus suspends, reactivates, or removes a listing.
func (s *Service) SetListingStatus(ctx context.Context, callerID, listingID string, target marketplace.SkillStatus) (listing marketplace.SkillListing, err error) {
	ctx, span := s.start(ctx, "ledger.SetListingStatus",
		attribute.String("caller", callerID),
		attribute.String("listing.id", listingID),
		attribute.String("status", target.String()))
	defer func() { finish(span, err) }()

	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		current, err := s.store.GetListing(ctx, listingID)
		if err != nil {
			return storage.Mutation{}, err
		}
		updated, err := marketplace.SetListingStatus(current, callerID, target, s.clock)
		if err != nil {
			return storage.Mutation{}, err
		}
		event, err := s.recorder.Event("skill.set_status", callerID, listingID, map[string]string{
			"status": target.String(),
		})
		if err != nil {
			return storage.Mutation{}, err
		}
		return storage.Mutation{
			Listings: []marketplace.SkillListing{updated},
			Events:   []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		return marketplace.SkillListing{}, err
	}
	return s.store.GetListing(ctx, listingID)
}

// GetListing returns one skill listing by ID.
func (s *Service) GetListing(ctx context.Context, listingID string) (marketplace.SkillListing, error) {
	return s.store.GetListing(ctx, listingID)
}

// PurchaseSkill charges the buyer and distributes revenue to the author and
// the author's active backers in the same transaction.
func (s *Service) PurchaseSkill(ctx context.Context, buyerID, listingID string) (receipt marketplace.Purchase, err error) {
	ctx, span := s.start(ctx, "ledger.PurchaseSkill",
		attribute.String("buyer.id", buyerID),
		attribute.String("listing.id", listingID))
	defer func() { finish(span, err) }()

	err = s.applyWithRetry(ctx, func(ctx context.Context) (storage.Mutation, error) {
		listing, err := s.store.GetListing(ctx, listingID)
		if err != nil {
			return storage.Mutation{}, err
		}
		buyer, err := s.store.GetAgent(ctx, buyerID)
		if err != nil {
			return storage.Mutation{}, err
		}
		author, err := s.store.GetAgent(ctx, listing.Author)
		if err != nil {
			return storage.Mutation{}, err
		}
		vouches, err := s.store.ListActiveVouchesForVouchee(ctx, listing.Author)
		if err != nil {
			return storage.Mutation{}, err
		}
		backers := make([]marketplace.Backer, 0, len(vouches))
		for _, vouch := range vouches {
			owner, err := s.store.GetAgent(ctx, vouch.Voucher)
			if err != nil {
				return storage.Mutation{}, err
			}
			backers = append(backers, marketplace.Backer{Vouch: vouch, Owner: owner})
		}

		result, err := marketplace.PurchaseSkill(marketplace.PurchaseInput{
			Listing: listing,
			Buyer:   buyer,
			Author:  author,
			Backers: backers,
		}, s.clock, s.newID)
		if err != nil {
			return storage.Mutation{}, err
		}
		event, err := s.recorder.Event("skill.purchase", buyerID, listingID, map[string]string{
			"price_paid": fmt.Sprintf("%d", result.Receipt.PricePaid),
			"backers":    fmt.Sprintf("%d", len(result.Vouches)),
		})
		if err != nil {
			return storage.Mutation{}, err
		}
		receipt = result.Receipt
		return storage.Mutation{
			Agents:    result.Agents,
			Vouches:   result.Vouches,
			Listings:  []marketplace.SkillListing{result.Listing},
			Purchases: []marketplace.Purchase{result.Receipt},
			Moves:     result.Moves,
			Events:    []storage.AuditEvent{event},
		}, nil
	})
	if err != nil {
		return marketplace.Purchase{}, err
	}
	return receipt, nil
}

// TreasuryBalance returns the accumulated treasury balance.
func (s *Service) TreasuryBalance(ctx context.Context) (uint64, error) {
	return s.store.TreasuryBalance(ctx)
}

// ListAuditEvents returns one page of the operation journal.
func (s *Service) ListAuditEvents(ctx context.Context, pageSize int, pageToken string) (storage.AuditEventPage, error) {
	return s.store.ListAuditEvents(ctx, pageSize, pageToken)
}
