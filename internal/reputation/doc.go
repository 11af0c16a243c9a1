// Package reputation implements the core state machine of the vouch ledger.
//
// The package is a pure state-transition engine: every operation takes the
// current entity values, an immutable Params snapshot, an injected clock and
// id generator, and returns updated copies plus the fund moves the transition
// requires. Nothing here performs I/O; persistence and atomicity are the
// ledger service's concern.
//
// # Lifecycle
//
// A Vouch is created Active, escrowing the voucher's stake. From Active it
// can be Revoked by its voucher (stake held through the configured cooldown)
// or Disputed by a challenger posting a bond. A Disputed vouch is resolved by
// a single ruling into one of two terminal states: Slashed (voucher loses the
// slash portion of the stake to the treasury) or Vindicated (challenger
// forfeits the bond to the treasury). Terminal states never transition again.
//
// # Accounting
//
// Counter and score arithmetic saturates; fund movement arithmetic is
// checked and a shortfall aborts the whole transition. The invariant
// maintained across every transition is that an agent's TotalStakedFor
// equals the sum of stakes of that agent's currently Active vouches.
package reputation
