package reputation

import (
	"fmt"
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/id"
)

// MaxEvidenceURILen bounds a dispute's off-chain evidence URI.
const MaxEvidenceURILen = 200

// DisputeStatus describes the lifecycle of a dispute.
type DisputeStatus int

const (
	// DisputeStatusUnspecified represents an invalid dispute status value.
	DisputeStatusUnspecified DisputeStatus = iota
	// DisputeStatusOpen indicates the dispute awaits a ruling.
	DisputeStatusOpen
	// DisputeStatusResolved indicates a ruling was applied. Terminal.
	DisputeStatusResolved
)

// String returns the lowercase status name used in storage and tool output.
func (s DisputeStatus) String() string {
	switch s {
	case DisputeStatusOpen:
		return "open"
	case DisputeStatusResolved:
		return "resolved"
	default:
		return "unspecified"
	}
}

// ParseDisputeStatus maps a stored status name to its value.
func ParseDisputeStatus(value string) DisputeStatus {
	switch value {
	case "open":
		return DisputeStatusOpen
	case "resolved":
		return DisputeStatusResolved
	default:
		return DisputeStatusUnspecified
	}
}

// Ruling is the single decision that resolves a dispute.
type Ruling int

const (
	// RulingUnspecified represents a missing ruling.
	RulingUnspecified Ruling = iota
	// RulingSlashVoucher forfeits part of the voucher's stake.
	RulingSlashVoucher
	// RulingVindicate affirms the vouch; the challenger forfeits the bond.
	RulingVindicate
)

// String returns the lowercase ruling name used in storage and tool output.
func (r Ruling) String() string {
	switch r {
	case RulingSlashVoucher:
		return "slash_voucher"
	case RulingVindicate:
		return "vindicate"
	default:
		return "unspecified"
	}
}

// ParseRuling maps a stored or tool-supplied ruling name to its value.
func ParseRuling(value string) Ruling {
	switch value {
	case "slash_voucher":
		return RulingSlashVoucher
	case "vindicate":
		return RulingVindicate
	default:
		return RulingUnspecified
	}
}

var (
	// ErrChallengerIsParty indicates a vouch party challenging its own vouch.
	ErrChallengerIsParty = apperrors.New(apperrors.CodeDisputeChallengerIsParty, "a vouch party cannot challenge its own vouch")
	// ErrEvidenceURITooLong indicates an oversized evidence URI.
	ErrEvidenceURITooLong = apperrors.New(apperrors.CodeDisputeEvidenceURITooLong, "dispute evidence uri is too long")
	// ErrDisputeNotOpen indicates a resolution against a non-open dispute.
	ErrDisputeNotOpen = apperrors.New(apperrors.CodeDisputeNotOpen, "dispute is not open")
	// ErrResolveUnauthorized indicates a ruling by a non-authority caller.
	ErrResolveUnauthorized = apperrors.New(apperrors.CodeDisputeResolveUnauthorized, "only the authority may resolve disputes")
	// ErrRulingUnspecified indicates a resolution without a ruling.
	ErrRulingUnspecified = apperrors.New(apperrors.CodeDisputeRulingUnspecified, "a ruling is required")
	// ErrVouchNotDisputed indicates a resolution against a vouch that is not
	// in the Disputed state.
	ErrVouchNotDisputed = apperrors.New(apperrors.CodeVouchNotDisputed, "vouch is not disputed")
)

// Dispute challenges a vouch. It escrows the challenger's bond until a
// ruling either returns it (slash) or forfeits it to the treasury
// (vindicate).
type Dispute struct {
	ID          string
	VouchID     string
	Challenger  string
	EvidenceURI string
	// Escrow is the bond value the dispute currently holds.
	Escrow     uint64
	Status     DisputeStatus
	Ruling     Ruling
	CreatedAt  time.Time
	ResolvedAt *time.Time
	Version    int64
}

// OpenDisputeResult carries the new dispute, the vouch flipped to Disputed,
// and the challenger debited for the bond.
type OpenDisputeResult struct {
	Dispute    Dispute
	Vouch      Vouch
	Challenger Agent
	Moves      []funds.Move
}

// OpenDispute escrows the configured bond and marks the vouch Disputed.
//
// Flipping the vouch out of Active in the same transition is what guarantees
// at most one open dispute per vouch and blocks concurrent revocation.
func OpenDispute(vouch Vouch, challenger Agent, evidenceURI string, params Params, now func() time.Time, idGenerator func() (string, error)) (OpenDisputeResult, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if challenger.ID == vouch.Voucher || challenger.ID == vouch.Vouchee {
		return OpenDisputeResult{}, ErrChallengerIsParty
	}
	if len(evidenceURI) > MaxEvidenceURILen {
		return OpenDisputeResult{}, ErrEvidenceURITooLong
	}
	if vouch.Status != VouchStatusActive {
		return OpenDisputeResult{}, ErrVouchNotActive
	}
	if challenger.Balance < params.DisputeBond {
		return OpenDisputeResult{}, ErrInsufficientFunds
	}

	disputeID, err := idGenerator()
	if err != nil {
		return OpenDisputeResult{}, fmt.Errorf("generate dispute id: %w", err)
	}

	dispute := Dispute{
		ID:          disputeID,
		VouchID:     vouch.ID,
		Challenger:  challenger.ID,
		EvidenceURI: evidenceURI,
		Escrow:      params.DisputeBond,
		Status:      DisputeStatusOpen,
		CreatedAt:   now().UTC(),
	}

	vouch.Status = VouchStatusDisputed
	challenger.Balance -= params.DisputeBond

	var moves []funds.Move
	if params.DisputeBond > 0 {
		moves = append(moves, funds.Move{From: funds.AgentAccount(challenger.ID), To: funds.DisputeAccount(disputeID), Amount: params.DisputeBond})
	}

	return OpenDisputeResult{
		Dispute:    dispute,
		Vouch:      vouch,
		Challenger: challenger,
		Moves:      moves,
	}, nil
}

// ResolveDisputeInput groups every entity a resolution touches.
type ResolveDisputeInput struct {
	Dispute    Dispute
	Vouch      Vouch
	Voucher    Agent
	Vouchee    Agent
	Challenger Agent
}

// ResolveDisputeResult carries every mutated entity plus the computed slash.
type ResolveDisputeResult struct {
	Dispute    Dispute
	Vouch      Vouch
	Voucher    Agent
	Vouchee    Agent
	Challenger Agent
	// SlashAmount is the forfeited stake portion; zero under Vindicate.
	SlashAmount uint64
	Moves       []funds.Move
}

// ResolveDispute applies a single, irreversible ruling.
//
// SlashVoucher forfeits floor(stake*slashPercent/100) to the treasury,
// returns the remainder to the voucher, returns the bond in full to the
// challenger, and books the loss on both agent records. Vindicate leaves the
// stake position untouched and forfeits the bond to the treasury.
func ResolveDispute(in ResolveDisputeInput, ruling Ruling, caller string, params Params, now func() time.Time) (ResolveDisputeResult, error) {
	if now == nil {
		now = time.Now
	}
	if caller != params.Authority {
		return ResolveDisputeResult{}, ErrResolveUnauthorized
	}
	if in.Dispute.Status != DisputeStatusOpen {
		return ResolveDisputeResult{}, ErrDisputeNotOpen
	}
	if in.Vouch.Status != VouchStatusDisputed {
		return ResolveDisputeResult{}, ErrVouchNotDisputed
	}
	if ruling != RulingSlashVoucher && ruling != RulingVindicate {
		return ResolveDisputeResult{}, ErrRulingUnspecified
	}

	resolvedAt := now().UTC()
	out := ResolveDisputeResult{
		Dispute:    in.Dispute,
		Vouch:      in.Vouch,
		Voucher:    in.Voucher,
		Vouchee:    in.Vouchee,
		Challenger: in.Challenger,
	}
	out.Dispute.Status = DisputeStatusResolved
	out.Dispute.Ruling = ruling
	out.Dispute.ResolvedAt = &resolvedAt

	switch ruling {
	case RulingSlashVoucher:
		stake := out.Vouch.StakeAmount
		slash := funds.MulDiv(stake, uint64(params.SlashPercent), 100)
		out.SlashAmount = slash

		out.Vouch.Status = VouchStatusSlashed

		out.Voucher.DisputesLost = satInc32(out.Voucher.DisputesLost)
		out.Voucher.TotalVouchesGiven = satDec32(out.Voucher.TotalVouchesGiven)

		out.Vouchee.TotalVouchesReceived = satDec32(out.Vouchee.TotalVouchesReceived)
		out.Vouchee.TotalStakedFor = satSub(out.Vouchee.TotalStakedFor, stake)
		out.Vouchee = rescore(out.Vouchee, params, resolvedAt)

		// Bond returns in full. A shortfall here means accounting broke
		// somewhere upstream, so the whole transaction must abort.
		bond := params.DisputeBond
		if out.Dispute.Escrow < bond {
			return ResolveDisputeResult{}, ErrEscrowUnderflow
		}
		out.Dispute.Escrow -= bond
		out.Challenger.Balance = satAdd(out.Challenger.Balance, bond)
		if bond > 0 {
			out.Moves = append(out.Moves, funds.Move{From: funds.DisputeAccount(out.Dispute.ID), To: funds.AgentAccount(out.Challenger.ID), Amount: bond})
		}

		if out.Vouch.Escrow < slash {
			return ResolveDisputeResult{}, ErrEscrowUnderflow
		}
		remainder := out.Vouch.Escrow - slash
		out.Vouch.Escrow = 0
		if slash > 0 {
			out.Moves = append(out.Moves, funds.Move{From: funds.VouchAccount(out.Vouch.ID), To: funds.Treasury, Amount: slash})
		}
		if remainder > 0 {
			out.Voucher.Balance = satAdd(out.Voucher.Balance, remainder)
			out.Moves = append(out.Moves, funds.Move{From: funds.VouchAccount(out.Vouch.ID), To: funds.AgentAccount(out.Voucher.ID), Amount: remainder})
		}

	case RulingVindicate:
		out.Vouch.Status = VouchStatusVindicated
		out.Voucher.DisputesWon = satInc32(out.Voucher.DisputesWon)

		forfeited := out.Dispute.Escrow
		out.Dispute.Escrow = 0
		if forfeited > 0 {
			out.Moves = append(out.Moves, funds.Move{From: funds.DisputeAccount(out.Dispute.ID), To: funds.Treasury, Amount: forfeited})
		}
	}

	return out, nil
}
