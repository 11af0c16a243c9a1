package reputation

import (
	"fmt"
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/id"
)

// VouchStatus describes the lifecycle of a vouch.
type VouchStatus int

const (
	// VouchStatusUnspecified represents an invalid vouch status value.
	VouchStatusUnspecified VouchStatus = iota
	// VouchStatusActive indicates a live staked attestation.
	VouchStatusActive
	// VouchStatusRevoked indicates the voucher withdrew the attestation.
	VouchStatusRevoked
	// VouchStatusDisputed indicates an open dispute blocks the vouch.
	VouchStatusDisputed
	// VouchStatusSlashed indicates an adverse ruling forfeited stake.
	VouchStatusSlashed
	// VouchStatusVindicated indicates a ruling affirmed the vouch.
	VouchStatusVindicated
)

// String returns the lowercase status name used in storage and tool output.
func (s VouchStatus) String() string {
	switch s {
	case VouchStatusActive:
		return "active"
	case VouchStatusRevoked:
		return "revoked"
	case VouchStatusDisputed:
		return "disputed"
	case VouchStatusSlashed:
		return "slashed"
	case VouchStatusVindicated:
		return "vindicated"
	default:
		return "unspecified"
	}
}

// ParseVouchStatus maps a stored status name to its value.
func ParseVouchStatus(value string) VouchStatus {
	switch value {
	case "active":
		return VouchStatusActive
	case "revoked":
		return VouchStatusRevoked
	case "disputed":
		return VouchStatusDisputed
	case "slashed":
		return VouchStatusSlashed
	case "vindicated":
		return VouchStatusVindicated
	default:
		return VouchStatusUnspecified
	}
}

var (
	// ErrStakeBelowMinimum indicates a stake under the configured minimum.
	ErrStakeBelowMinimum = apperrors.New(apperrors.CodeVouchStakeBelowMinimum, "stake amount is below the minimum")
	// ErrSelfVouch indicates an agent vouching for itself.
	ErrSelfVouch = apperrors.New(apperrors.CodeVouchSelfForbidden, "an agent cannot vouch for itself")
	// ErrDuplicateVouch indicates a live vouch already exists for the pair.
	ErrDuplicateVouch = apperrors.New(apperrors.CodeVouchDuplicate, "a live vouch already exists for this pair")
	// ErrVouchNotActive indicates an operation requiring an Active vouch.
	ErrVouchNotActive = apperrors.New(apperrors.CodeVouchNotActive, "vouch is not active")
	// ErrVouchNotRevoked indicates a stake claim on a non-revoked vouch.
	ErrVouchNotRevoked = apperrors.New(apperrors.CodeVouchNotRevoked, "vouch is not revoked")
	// ErrRevokeUnauthorized indicates a revoke by someone other than the voucher.
	ErrRevokeUnauthorized = apperrors.New(apperrors.CodeVouchRevokeUnauthorized, "only the voucher may revoke")
	// ErrClaimUnauthorized indicates a stake claim by someone other than the voucher.
	ErrClaimUnauthorized = apperrors.New(apperrors.CodeVouchClaimUnauthorized, "only the voucher may claim the held stake")
	// ErrCooldownActive indicates a stake claim before the hold elapses.
	ErrCooldownActive = apperrors.New(apperrors.CodeVouchCooldownActive, "revoked stake is still in cooldown")
	// ErrStakeAlreadyClaimed indicates a repeat stake claim.
	ErrStakeAlreadyClaimed = apperrors.New(apperrors.CodeVouchStakeAlreadyClaimed, "revoked stake was already released")
	// ErrInsufficientFunds indicates the payer's balance cannot cover a transfer.
	ErrInsufficientFunds = apperrors.New(apperrors.CodeFundsInsufficient, "insufficient available balance")
	// ErrEscrowUnderflow indicates an escrowed balance below a required payout.
	// Never a normal-path condition: it signals broken accounting and must
	// abort the enclosing transaction.
	ErrEscrowUnderflow = apperrors.New(apperrors.CodeFundsEscrowUnderflow, "escrowed balance cannot cover transfer")
)

// Vouch is a staked attestation by one agent on behalf of another. Each vouch
// is a freshly allocated entity; a new vouch for a pair whose prior vouch
// went terminal gets a new ID rather than reusing the old record.
type Vouch struct {
	ID      string
	Voucher string
	Vouchee string
	// StakeAmount is the value locked when the vouch was created.
	StakeAmount uint64
	// Escrow is the value the vouch currently holds. It equals StakeAmount
	// while Active or Disputed and drains on release or slashing.
	Escrow uint64
	// CumulativeRevenue accrues marketplace earnings while Active.
	CumulativeRevenue uint64
	CreatedAt         time.Time
	LastPayoutAt      time.Time
	// StakeReleaseAt is set when a revoked vouch holds its stake through the
	// configured cooldown. Nil when no hold is pending.
	StakeReleaseAt *time.Time
	Status         VouchStatus
	Version        int64
}

// CreateVouchResult carries the new vouch, the adjusted agent records, and
// the fund moves the transition requires.
type CreateVouchResult struct {
	Vouch   Vouch
	Voucher Agent
	Vouchee Agent
	Moves   []funds.Move
}

// CreateVouch locks stake from the voucher into a new Active vouch.
//
// Uniqueness of the (voucher, vouchee) pair among live vouches is enforced by
// the storage layer; callers translate that conflict to ErrDuplicateVouch.
func CreateVouch(voucher, vouchee Agent, stake uint64, params Params, now func() time.Time, idGenerator func() (string, error)) (CreateVouchResult, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if voucher.ID == vouchee.ID {
		return CreateVouchResult{}, ErrSelfVouch
	}
	if stake < params.MinStake {
		return CreateVouchResult{}, apperrors.WithMetadata(apperrors.CodeVouchStakeBelowMinimum, "stake amount is below the minimum", map[string]string{
			"stake":     fmt.Sprintf("%d", stake),
			"min_stake": fmt.Sprintf("%d", params.MinStake),
		})
	}
	if voucher.Balance < stake {
		return CreateVouchResult{}, ErrInsufficientFunds
	}

	vouchID, err := idGenerator()
	if err != nil {
		return CreateVouchResult{}, fmt.Errorf("generate vouch id: %w", err)
	}

	createdAt := now().UTC()
	vouch := Vouch{
		ID:           vouchID,
		Voucher:      voucher.ID,
		Vouchee:      vouchee.ID,
		StakeAmount:  stake,
		Escrow:       stake,
		CreatedAt:    createdAt,
		LastPayoutAt: createdAt,
		Status:       VouchStatusActive,
	}

	voucher.Balance -= stake
	voucher.TotalVouchesGiven = satInc32(voucher.TotalVouchesGiven)

	vouchee.TotalVouchesReceived = satInc32(vouchee.TotalVouchesReceived)
	vouchee.TotalStakedFor = satAdd(vouchee.TotalStakedFor, stake)
	vouchee = rescore(vouchee, params, createdAt)

	result := CreateVouchResult{
		Vouch:   vouch,
		Voucher: voucher,
		Vouchee: vouchee,
	}
	if stake > 0 {
		result.Moves = append(result.Moves, funds.Move{From: funds.AgentAccount(voucher.ID), To: funds.VouchAccount(vouchID), Amount: stake})
	}
	return result, nil
}

// RevokeVouchResult carries the revoked vouch, the adjusted agent records,
// and any immediate stake release.
type RevokeVouchResult struct {
	Vouch   Vouch
	Voucher Agent
	Vouchee Agent
	Moves   []funds.Move
}

// RevokeVouch withdraws an Active vouch. Counters adjust immediately; the
// stake is released inline when no cooldown is configured, otherwise it stays
// escrowed until ClaimRevokedStake after the hold elapses.
func RevokeVouch(vouch Vouch, voucher, vouchee Agent, caller string, params Params, now func() time.Time) (RevokeVouchResult, error) {
	if now == nil {
		now = time.Now
	}
	if caller != vouch.Voucher {
		return RevokeVouchResult{}, ErrRevokeUnauthorized
	}
	if vouch.Status != VouchStatusActive {
		return RevokeVouchResult{}, ErrVouchNotActive
	}

	revokedAt := now().UTC()
	vouch.Status = VouchStatusRevoked

	voucher.TotalVouchesGiven = satDec32(voucher.TotalVouchesGiven)
	vouchee.TotalVouchesReceived = satDec32(vouchee.TotalVouchesReceived)
	vouchee.TotalStakedFor = satSub(vouchee.TotalStakedFor, vouch.StakeAmount)
	vouchee = rescore(vouchee, params, revokedAt)

	var moves []funds.Move
	if params.Cooldown <= 0 {
		released := vouch.Escrow
		vouch.Escrow = 0
		voucher.Balance = satAdd(voucher.Balance, released)
		if released > 0 {
			moves = append(moves, funds.Move{From: funds.VouchAccount(vouch.ID), To: funds.AgentAccount(voucher.ID), Amount: released})
		}
	} else {
		releaseAt := revokedAt.Add(params.Cooldown)
		vouch.StakeReleaseAt = &releaseAt
	}

	return RevokeVouchResult{
		Vouch:   vouch,
		Voucher: voucher,
		Vouchee: vouchee,
		Moves:   moves,
	}, nil
}

// ClaimStakeResult carries the drained vouch and the credited voucher.
type ClaimStakeResult struct {
	Vouch   Vouch
	Voucher Agent
	Moves   []funds.Move
}

// ClaimRevokedStake releases a revoked vouch's held stake once the cooldown
// hold has elapsed.
func ClaimRevokedStake(vouch Vouch, voucher Agent, caller string, now func() time.Time) (ClaimStakeResult, error) {
	if now == nil {
		now = time.Now
	}
	if caller != vouch.Voucher {
		return ClaimStakeResult{}, ErrClaimUnauthorized
	}
	if vouch.Status != VouchStatusRevoked {
		return ClaimStakeResult{}, ErrVouchNotRevoked
	}
	if vouch.Escrow == 0 {
		return ClaimStakeResult{}, ErrStakeAlreadyClaimed
	}
	if vouch.StakeReleaseAt != nil && now().UTC().Before(*vouch.StakeReleaseAt) {
		return ClaimStakeResult{}, ErrCooldownActive
	}

	released := vouch.Escrow
	vouch.Escrow = 0
	voucher.Balance = satAdd(voucher.Balance, released)

	return ClaimStakeResult{
		Vouch:   vouch,
		Voucher: voucher,
		Moves: []funds.Move{
			{From: funds.VouchAccount(vouch.ID), To: funds.AgentAccount(voucher.ID), Amount: released},
		},
	}, nil
}
