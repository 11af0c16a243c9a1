package reputation

import (
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/vouchnet/internal/funds"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func fixedID(id string) func() (string, error) {
	return func() (string, error) { return id, nil }
}

func testAgents(balance uint64) (Agent, Agent) {
	registered := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	voucher := Agent{ID: "voucher-1", Balance: balance, RegisteredAt: registered}
	vouchee := Agent{ID: "vouchee-1", RegisteredAt: registered}
	return voucher, vouchee
}

func TestCreateVouchLocksStakeAndUpdatesRecords(t *testing.T) {
	t.Parallel()

	voucher, vouchee := testAgents(5000)
	now := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)

	result, err := CreateVouch(voucher, vouchee, 1000, testParams(), fixedClock(now), fixedID("vouch-1"))
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}

	if result.Vouch.Status != VouchStatusActive {
		t.Fatalf("status = %v, want active", result.Vouch.Status)
	}
	if result.Vouch.StakeAmount != 1000 || result.Vouch.Escrow != 1000 {
		t.Fatalf("stake/escrow = %d/%d, want 1000/1000", result.Vouch.StakeAmount, result.Vouch.Escrow)
	}
	if result.Voucher.Balance != 4000 {
		t.Fatalf("voucher balance = %d, want 4000", result.Voucher.Balance)
	}
	if result.Voucher.TotalVouchesGiven != 1 {
		t.Fatalf("vouches given = %d, want 1", result.Voucher.TotalVouchesGiven)
	}
	if result.Vouchee.TotalVouchesReceived != 1 {
		t.Fatalf("vouches received = %d, want 1", result.Vouchee.TotalVouchesReceived)
	}
	if result.Vouchee.TotalStakedFor != 1000 {
		t.Fatalf("total staked for = %d, want 1000", result.Vouchee.TotalStakedFor)
	}
	wantScore := Score(result.Vouchee, testParams(), now)
	if result.Vouchee.ReputationScore != wantScore {
		t.Fatalf("cached score = %d, want %d", result.Vouchee.ReputationScore, wantScore)
	}

	wantMove := funds.Move{From: funds.AgentAccount("voucher-1"), To: funds.VouchAccount("vouch-1"), Amount: 1000}
	if len(result.Moves) != 1 || result.Moves[0] != wantMove {
		t.Fatalf("moves = %v, want [%v]", result.Moves, wantMove)
	}
}

func TestCreateVouchZeroStakeEmitsNoMove(t *testing.T) {
	t.Parallel()

	params := testParams()
	params.MinStake = 0
	voucher, vouchee := testAgents(5000)

	result, err := CreateVouch(voucher, vouchee, 0, params, nil, fixedID("vouch-1"))
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}
	if result.Vouch.Status != VouchStatusActive || result.Vouch.Escrow != 0 {
		t.Fatalf("vouch = %+v, want active with zero escrow", result.Vouch)
	}
	if len(result.Moves) != 0 {
		t.Fatalf("moves = %v, want none for zero stake", result.Moves)
	}
}

func TestCreateVouchRejectsSelfVouch(t *testing.T) {
	t.Parallel()

	voucher, _ := testAgents(5000)
	for _, stake := range []uint64{0, 100, 10_000} {
		_, err := CreateVouch(voucher, voucher, stake, testParams(), nil, fixedID("vouch-1"))
		if !errors.Is(err, ErrSelfVouch) {
			t.Fatalf("stake %d: expected ErrSelfVouch, got %v", stake, err)
		}
	}
}

func TestCreateVouchRejectsStakeBelowMinimum(t *testing.T) {
	t.Parallel()

	voucher, vouchee := testAgents(5000)
	_, err := CreateVouch(voucher, vouchee, 99, testParams(), nil, fixedID("vouch-1"))
	if !errors.Is(err, ErrStakeBelowMinimum) {
		t.Fatalf("expected ErrStakeBelowMinimum, got %v", err)
	}
}

func TestCreateVouchRejectsInsufficientBalance(t *testing.T) {
	t.Parallel()

	voucher, vouchee := testAgents(500)
	_, err := CreateVouch(voucher, vouchee, 1000, testParams(), nil, fixedID("vouch-1"))
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestRevokeVouchReleasesStakeWithoutCooldown(t *testing.T) {
	t.Parallel()

	voucher, vouchee := testAgents(5000)
	now := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	created, err := CreateVouch(voucher, vouchee, 1000, testParams(), fixedClock(now), fixedID("vouch-1"))
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}

	later := now.Add(time.Hour)
	result, err := RevokeVouch(created.Vouch, created.Voucher, created.Vouchee, "voucher-1", testParams(), fixedClock(later))
	if err != nil {
		t.Fatalf("revoke vouch: %v", err)
	}

	if result.Vouch.Status != VouchStatusRevoked {
		t.Fatalf("status = %v, want revoked", result.Vouch.Status)
	}
	if result.Vouch.Escrow != 0 {
		t.Fatalf("escrow = %d, want 0", result.Vouch.Escrow)
	}
	if result.Voucher.Balance != 5000 {
		t.Fatalf("voucher balance = %d, want 5000", result.Voucher.Balance)
	}
	if result.Voucher.TotalVouchesGiven != 0 {
		t.Fatalf("vouches given = %d, want 0", result.Voucher.TotalVouchesGiven)
	}
	if result.Vouchee.TotalStakedFor != 0 {
		t.Fatalf("total staked for = %d, want 0", result.Vouchee.TotalStakedFor)
	}
	if result.Vouch.StakeReleaseAt != nil {
		t.Fatal("expected no pending release without cooldown")
	}
}

func TestRevokeVouchHoldsStakeThroughCooldown(t *testing.T) {
	t.Parallel()

	params := testParams()
	params.Cooldown = 24 * time.Hour

	voucher, vouchee := testAgents(5000)
	now := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	created, err := CreateVouch(voucher, vouchee, 1000, params, fixedClock(now), fixedID("vouch-1"))
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}

	revoked, err := RevokeVouch(created.Vouch, created.Voucher, created.Vouchee, "voucher-1", params, fixedClock(now))
	if err != nil {
		t.Fatalf("revoke vouch: %v", err)
	}
	if revoked.Vouch.Escrow != 1000 {
		t.Fatalf("escrow = %d, want held 1000", revoked.Vouch.Escrow)
	}
	if revoked.Voucher.Balance != 4000 {
		t.Fatalf("voucher balance = %d, want 4000 before release", revoked.Voucher.Balance)
	}
	if len(revoked.Moves) != 0 {
		t.Fatalf("expected no fund moves during the hold, got %v", revoked.Moves)
	}
	wantRelease := now.Add(24 * time.Hour)
	if revoked.Vouch.StakeReleaseAt == nil || !revoked.Vouch.StakeReleaseAt.Equal(wantRelease) {
		t.Fatalf("release at = %v, want %v", revoked.Vouch.StakeReleaseAt, wantRelease)
	}

	// Claiming during the hold fails.
	_, err = ClaimRevokedStake(revoked.Vouch, revoked.Voucher, "voucher-1", fixedClock(now.Add(time.Hour)))
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected ErrCooldownActive, got %v", err)
	}

	// Claiming after the hold releases the stake once.
	claimed, err := ClaimRevokedStake(revoked.Vouch, revoked.Voucher, "voucher-1", fixedClock(wantRelease))
	if err != nil {
		t.Fatalf("claim stake: %v", err)
	}
	if claimed.Voucher.Balance != 5000 {
		t.Fatalf("voucher balance = %d, want 5000 after release", claimed.Voucher.Balance)
	}
	if claimed.Vouch.Escrow != 0 {
		t.Fatalf("escrow = %d, want 0 after release", claimed.Vouch.Escrow)
	}

	_, err = ClaimRevokedStake(claimed.Vouch, claimed.Voucher, "voucher-1", fixedClock(wantRelease.Add(time.Hour)))
	if !errors.Is(err, ErrStakeAlreadyClaimed) {
		t.Fatalf("expected ErrStakeAlreadyClaimed, got %v", err)
	}
}

func TestRevokeVouchAuthorization(t *testing.T) {
	t.Parallel()

	voucher, vouchee := testAgents(5000)
	created, err := CreateVouch(voucher, vouchee, 1000, testParams(), nil, fixedID("vouch-1"))
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}

	_, err = RevokeVouch(created.Vouch, created.Voucher, created.Vouchee, "someone-else", testParams(), nil)
	if !errors.Is(err, ErrRevokeUnauthorized) {
		t.Fatalf("expected ErrRevokeUnauthorized, got %v", err)
	}
}

func TestRevokeVouchRequiresActiveStatus(t *testing.T) {
	t.Parallel()

	voucher, vouchee := testAgents(5000)
	created, err := CreateVouch(voucher, vouchee, 1000, testParams(), nil, fixedID("vouch-1"))
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}

	for _, status := range []VouchStatus{VouchStatusRevoked, VouchStatusDisputed, VouchStatusSlashed, VouchStatusVindicated} {
		vouch := created.Vouch
		vouch.Status = status
		_, err := RevokeVouch(vouch, created.Voucher, created.Vouchee, "voucher-1", testParams(), nil)
		if !errors.Is(err, ErrVouchNotActive) {
			t.Fatalf("status %v: expected ErrVouchNotActive, got %v", status, err)
		}
	}
}

func TestClaimRevokedStakeAuthorization(t *testing.T) {
	t.Parallel()

	params := testParams()
	params.Cooldown = time.Hour

	voucher, vouchee := testAgents(5000)
	created, err := CreateVouch(voucher, vouchee, 1000, params, nil, fixedID("vouch-1"))
	if err != nil {
		t.Fatalf("create vouch: %v", err)
	}
	revoked, err := RevokeVouch(created.Vouch, created.Voucher, created.Vouchee, "voucher-1", params, nil)
	if err != nil {
		t.Fatalf("revoke vouch: %v", err)
	}

	_, err = ClaimRevokedStake(revoked.Vouch, revoked.Voucher, "someone-else", nil)
	if !errors.Is(err, ErrClaimUnauthorized) {
		t.Fatalf("expected ErrClaimUnauthorized, got %v", err)
	}

	active := created.Vouch
	_, err = ClaimRevokedStake(active, created.Voucher, "voucher-1", nil)
	if !errors.Is(err, ErrVouchNotRevoked) {
		t.Fatalf("expected ErrVouchNotRevoked, got %v", err)
	}
}

func TestStakeConservationAcrossCreateAndRevoke(t *testing.T) {
	t.Parallel()

	// TotalStakedFor must equal the sum of Active stakes for the vouchee
	// after any create/revoke sequence.
	params := testParams()
	now := time.Date(2026, time.April, 2, 12, 0, 0, 0, time.UTC)
	clock := fixedClock(now)

	vouchee := Agent{ID: "vouchee-1", RegisteredAt: now}
	a := Agent{ID: "a", Balance: 10_000, RegisteredAt: now}
	b := Agent{ID: "b", Balance: 10_000, RegisteredAt: now}

	first, err := CreateVouch(a, vouchee, 1500, params, clock, fixedID("vouch-a"))
	if err != nil {
		t.Fatalf("create first vouch: %v", err)
	}
	vouchee = first.Vouchee

	second, err := CreateVouch(b, vouchee, 2500, params, clock, fixedID("vouch-b"))
	if err != nil {
		t.Fatalf("create second vouch: %v", err)
	}
	vouchee = second.Vouchee

	if vouchee.TotalStakedFor != 4000 {
		t.Fatalf("total staked for = %d, want 4000", vouchee.TotalStakedFor)
	}

	revoked, err := RevokeVouch(first.Vouch, first.Voucher, vouchee, "a", params, clock)
	if err != nil {
		t.Fatalf("revoke first vouch: %v", err)
	}
	vouchee = revoked.Vouchee

	if vouchee.TotalStakedFor != 2500 {
		t.Fatalf("total staked for = %d, want 2500 (only the active vouch)", vouchee.TotalStakedFor)
	}
	if vouchee.TotalVouchesReceived != 1 {
		t.Fatalf("vouches received = %d, want 1", vouchee.TotalVouchesReceived)
	}
}
