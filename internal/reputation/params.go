package reputation

import (
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
)

var (
	// ErrSlashPercentOutOfRange indicates a slash percentage above 100.
	ErrSlashPercentOutOfRange = apperrors.New(apperrors.CodeParamsSlashPercentOutOfRange, "slash percent must be between 0 and 100")
	// ErrEmptyAuthority indicates a missing dispute authority identity.
	ErrEmptyAuthority = apperrors.New(apperrors.CodeParamsEmptyAuthority, "dispute authority is required")
	// ErrNegativeCooldown indicates a negative revoke cooldown.
	ErrNegativeCooldown = apperrors.New(apperrors.CodeParamsNegativeCooldown, "cooldown must not be negative")
	// ErrAuthorityOnly indicates a params update by a non-authority caller.
	ErrAuthorityOnly = apperrors.New(apperrors.CodeParamsAuthorityOnly, "only the authority may update ledger params")
)

// Params is an immutable-per-operation snapshot of the ledger's global
// parameters. Core operations read it and never mutate it; updates go
// through the authority-gated admin path.
type Params struct {
	// Authority is the agent allowed to resolve disputes and update params.
	Authority string
	// MinStake is the minimum stake a vouch must lock.
	MinStake uint64
	// DisputeBond is the bond a challenger escrows to open a dispute.
	DisputeBond uint64
	// SlashPercent is the share of the stake forfeited on an adverse ruling.
	SlashPercent uint8
	// Cooldown is how long a revoked vouch holds its stake before release.
	Cooldown time.Duration

	// Reputation score weights.
	StakeWeight    uint32
	VouchWeight    uint32
	DisputePenalty uint32
	LongevityBonus uint32

	// Version supports optimistic concurrency at the storage layer.
	Version int64
}

// DefaultParams returns the parameter values used when no stored snapshot
// exists yet: one score point per unit staked, 100 per vouch, 500 lost per
// slashed dispute, 10 per day of age.
func DefaultParams(authority string) Params {
	return Params{
		Authority:      authority,
		MinStake:       100,
		DisputeBond:    50,
		SlashPercent:   50,
		Cooldown:       0,
		StakeWeight:    1,
		VouchWeight:    100,
		DisputePenalty: 500,
		LongevityBonus: 10,
	}
}

// Validate reports whether the snapshot is internally consistent.
func (p Params) Validate() error {
	if p.Authority == "" {
		return ErrEmptyAuthority
	}
	if p.SlashPercent > 100 {
		return ErrSlashPercentOutOfRange
	}
	if p.Cooldown < 0 {
		return ErrNegativeCooldown
	}
	return nil
}
