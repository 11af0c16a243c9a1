package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/marketplace"
	"github.com/louisbranch/vouchnet/internal/reputation"
	"github.com/louisbranch/vouchnet/internal/storage"
)

const (
	paramsColumns = `authority, min_stake, dispute_bond, slash_percent, cooldown_ms,
	        stake_weight, vouch_weight, dispute_penalty, longevity_bonus, version`
	agentColumns = `id, metadata_uri, balance, reputation_score,
	        total_vouches_received, total_vouches_given, total_staked_for,
	        disputes_won, disputes_lost, registered_at, version`
	vouchColumns = `id, voucher_id, vouchee_id, stake_amount, escrow,
	        cumulative_revenue, created_at, last_payout_at, stake_release_at,
	        status, version`
	disputeColumns = `id, vouch_id, challenger_id, evidence_uri, escrow,
	        status, ruling, created_at, resolved_at, version`
	listingColumns = `id, author_id, skill_uri, name, description, price,
	        total_downloads, total_revenue, created_at, updated_at, status, version`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParams(row rowScanner) (reputation.Params, error) {
	var params reputation.Params
	var cooldownMillis int64
	err := row.Scan(
		&params.Authority,
		&params.MinStake,
		&params.DisputeBond,
		&params.SlashPercent,
		&cooldownMillis,
		&params.StakeWeight,
		&params.VouchWeight,
		&params.DisputePenalty,
		&params.LongevityBonus,
		&params.Version,
	)
	if err != nil {
		return reputation.Params{}, err
	}
	params.Cooldown = time.Duration(cooldownMillis) * time.Millisecond
	return params, nil
}

func scanAgent(row rowScanner) (reputation.Agent, error) {
	var agent reputation.Agent
	var registeredAt int64
	err := row.Scan(
		&agent.ID,
		&agent.MetadataURI,
		&agent.Balance,
		&agent.ReputationScore,
		&agent.TotalVouchesReceived,
		&agent.TotalVouchesGiven,
		&agent.TotalStakedFor,
		&agent.DisputesWon,
		&agent.DisputesLost,
		&registeredAt,
		&agent.Version,
	)
	if err != nil {
		return reputation.Agent{}, err
	}
	agent.RegisteredAt = fromMillis(registeredAt)
	return agent, nil
}

func scanVouch(row rowScanner) (reputation.Vouch, error) {
	var vouch reputation.Vouch
	var createdAt, lastPayoutAt int64
	var stakeReleaseAt sql.NullInt64
	var status string
	err := row.Scan(
		&vouch.ID,
		&vouch.Voucher,
		&vouch.Vouchee,
		&vouch.StakeAmount,
		&vouch.Escrow,
		&vouch.CumulativeRevenue,
		&createdAt,
		&lastPayoutAt,
		&stakeReleaseAt,
		&status,
		&vouch.Version,
	)
	if err != nil {
		return reputation.Vouch{}, err
	}
	vouch.CreatedAt = fromMillis(createdAt)
	vouch.LastPayoutAt = fromMillis(lastPayoutAt)
	vouch.StakeReleaseAt = fromNullMillis(stakeReleaseAt)
	vouch.Status = reputation.ParseVouchStatus(status)
	return vouch, nil
}

func scanDispute(row rowScanner) (reputation.Dispute, error) {
	var dispute reputation.Dispute
	var createdAt int64
	var resolvedAt sql.NullInt64
	var status, ruling string
	err := row.Scan(
		&dispute.ID,
		&dispute.VouchID,
		&dispute.Challenger,
		&dispute.EvidenceURI,
		&dispute.Escrow,
		&status,
		&ruling,
		&createdAt,
		&resolvedAt,
		&dispute.Version,
	)
	if err != nil {
		return reputation.Dispute{}, err
	}
	dispute.CreatedAt = fromMillis(createdAt)
	dispute.ResolvedAt = fromNullMillis(resolvedAt)
	dispute.Status = reputation.ParseDisputeStatus(status)
	dispute.Ruling = reputation.ParseRuling(ruling)
	return dispute, nil
}

func scanListing(row rowScanner) (marketplace.SkillListing, error) {
	var listing marketplace.SkillListing
	var createdAt, updatedAt int64
	var status string
	err := row.Scan(
		&listing.ID,
		&listing.Author,
		&listing.SkillURI,
		&listing.Name,
		&listing.Description,
		&listing.Price,
		&listing.TotalDownloads,
		&listing.TotalRevenue,
		&createdAt,
		&updatedAt,
		&status,
		&listing.Version,
	)
	if err != nil {
		return marketplace.SkillListing{}, err
	}
	listing.CreatedAt = fromMillis(createdAt)
	listing.UpdatedAt = fromMillis(updatedAt)
	listing.Status = marketplace.ParseSkillStatus(status)
	return listing, nil
}

// GetParams returns the singleton ledger parameters.
func (s *Store) GetParams(ctx context.Context) (reputation.Params, error) {
	if err := ctx.Err(); err != nil {
		return reputation.Params{}, err
	}
	if s == nil || s.sqlDB == nil {
		return reputation.Params{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+paramsColumns+` FROM params WHERE id = 1`)
	params, err := scanParams(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Params{}, storage.ErrNotFound
		}
		return reputation.Params{}, fmt.Errorf("get params: %w", err)
	}
	return params, nil
}

// GetAgent returns one agent by ID.
func (s *Store) GetAgent(ctx context.Context, agentID string) (reputation.Agent, error) {
	if err := ctx.Err(); err != nil {
		return reputation.Agent{}, err
	}
	if s == nil || s.sqlDB == nil {
		return reputation.Agent{}, fmt.Errorf("storage is not configured")
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return reputation.Agent{}, fmt.Errorf("agent id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, agentID)
	agent, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Agent{}, storage.ErrNotFound
		}
		return reputation.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

// GetVouch returns one vouch by ID.
func (s *Store) GetVouch(ctx context.Context, vouchID string) (reputation.Vouch, error) {
	if err := ctx.Err(); err != nil {
		return reputation.Vouch{}, err
	}
	if s == nil || s.sqlDB == nil {
		return reputation.Vouch{}, fmt.Errorf("storage is not configured")
	}
	vouchID = strings.TrimSpace(vouchID)
	if vouchID == "" {
		return reputation.Vouch{}, fmt.Errorf("vouch id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+vouchColumns+` FROM vouches WHERE id = ?`, vouchID)
	vouch, err := scanVouch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Vouch{}, storage.ErrNotFound
		}
		return reputation.Vouch{}, fmt.Errorf("get vouch: %w", err)
	}
	return vouch, nil
}

// GetLiveVouchByPair returns the active or disputed vouch for a pair.
func (s *Store) GetLiveVouchByPair(ctx context.Context, voucherID, voucheeID string) (reputation.Vouch, error) {
	if err := ctx.Err(); err != nil {
		return reputation.Vouch{}, err
	}
	if s == nil || s.sqlDB == nil {
		return reputation.Vouch{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+vouchColumns+`
		   FROM vouches
		  WHERE voucher_id = ? AND vouchee_id = ? AND status IN ('active', 'disputed')`,
		voucherID,
		voucheeID,
	)
	vouch, err := scanVouch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Vouch{}, storage.ErrNotFound
		}
		return reputation.Vouch{}, fmt.Errorf("get live vouch by pair: %w", err)
	}
	return vouch, nil
}

// ListActiveVouchesForVouchee returns active vouches backing an agent,
// ordered by vouch ID so payout distribution is deterministic.
func (s *Store) ListActiveVouchesForVouchee(ctx context.Context, voucheeID string) ([]reputation.Vouch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+vouchColumns+`
		   FROM vouches
		  WHERE vouchee_id = ? AND status = 'active'
		  ORDER BY id ASC`,
		voucheeID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active vouches: %w", err)
	}
	defer rows.Close()

	var vouches []reputation.Vouch
	for rows.Next() {
		vouch, err := scanVouch(rows)
		if err != nil {
			return nil, fmt.Errorf("list active vouches: %w", err)
		}
		vouches = append(vouches, vouch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active vouches: %w", err)
	}
	return vouches, nil
}

// ListVouchesForAgent returns one page of vouches the agent gave or
// received, ordered by vouch ID.
func (s *Store) ListVouchesForAgent(ctx context.Context, agentID string, pageSize int, pageToken string) (storage.VouchPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.VouchPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.VouchPage{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return storage.VouchPage{}, fmt.Errorf("page size must be greater than zero")
	}
	pageToken = strings.TrimSpace(pageToken)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+vouchColumns+`
		   FROM vouches
		  WHERE (voucher_id = ? OR vouchee_id = ?) AND id > ?
		  ORDER BY id ASC
		  LIMIT ?`,
		agentID,
		agentID,
		pageToken,
		pageSize+1,
	)
	if err != nil {
		return storage.VouchPage{}, fmt.Errorf("list vouches: %w", err)
	}
	defer rows.Close()

	page := storage.VouchPage{Vouches: make([]reputation.Vouch, 0, pageSize)}
	for rows.Next() {
		vouch, err := scanVouch(rows)
		if err != nil {
			return storage.VouchPage{}, fmt.Errorf("list vouches: %w", err)
		}
		page.Vouches = append(page.Vouches, vouch)
	}
	if err := rows.Err(); err != nil {
		return storage.VouchPage{}, fmt.Errorf("list vouches: %w", err)
	}
	if len(page.Vouches) > pageSize {
		page.NextPageToken = page.Vouches[pageSize-1].ID
		page.Vouches = page.Vouches[:pageSize]
	}
	return page, nil
}

// GetDispute returns one dispute by ID.
func (s *Store) GetDispute(ctx context.Context, disputeID string) (reputation.Dispute, error) {
	if err := ctx.Err(); err != nil {
		return reputation.Dispute{}, err
	}
	if s == nil || s.sqlDB == nil {
		return reputation.Dispute{}, fmt.Errorf("storage is not configured")
	}
	disputeID = strings.TrimSpace(disputeID)
	if disputeID == "" {
		return reputation.Dispute{}, fmt.Errorf("dispute id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = ?`, disputeID)
	dispute, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Dispute{}, storage.ErrNotFound
		}
		return reputation.Dispute{}, fmt.Errorf("get dispute: %w", err)
	}
	return dispute, nil
}

// GetOpenDisputeByVouch returns the open dispute against a vouch.
func (s *Store) GetOpenDisputeByVouch(ctx context.Context, vouchID string) (reputation.Dispute, error) {
	if err := ctx.Err(); err != nil {
		return reputation.Dispute{}, err
	}
	if s == nil || s.sqlDB == nil {
		return reputation.Dispute{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE vouch_id = ? AND status = 'open'`,
		vouchID,
	)
	dispute, err := scanDispute(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return reputation.Dispute{}, storage.ErrNotFound
		}
		return reputation.Dispute{}, fmt.Errorf("get open dispute: %w", err)
	}
	return dispute, nil
}

// GetListing returns one skill listing by ID.
func (s *Store) GetListing(ctx context.Context, listingID string) (marketplace.SkillListing, error) {
	if err := ctx.Err(); err != nil {
		return marketplace.SkillListing{}, err
	}
	if s == nil || s.sqlDB == nil {
		return marketplace.SkillListing{}, fmt.Errorf("storage is not configured")
	}
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return marketplace.SkillListing{}, fmt.Errorf("listing id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM skill_listings WHERE id = ?`, listingID)
	listing, err := scanListing(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return marketplace.SkillListing{}, storage.ErrNotFound
		}
		return marketplace.SkillListing{}, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}

// TreasuryBalance returns the accumulated treasury balance.
func (s *Store) TreasuryBalance(ctx context.Context) (uint64, error) {
	return s.AccountBalance(ctx, funds.Treasury)
}

// AccountBalance returns the balance of a ledger account. Accounts that
// were never credited report zero.
func (s *Store) AccountBalance(ctx context.Context, account funds.Account) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var balance uint64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT balance FROM accounts WHERE account = ?`,
		string(account),
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get account balance: %w", err)
	}
	return balance, nil
}

// ListAuditEvents returns one page of audit events in insertion order.
func (s *Store) ListAuditEvents(ctx context.Context, pageSize int, pageToken string) (storage.AuditEventPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.AuditEventPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.AuditEventPage{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return storage.AuditEventPage{}, fmt.Errorf("page size must be greater than zero")
	}
	pageToken = strings.TrimSpace(pageToken)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, operation, actor, entity_id, occurred_at, metadata
		   FROM audit_events
		  WHERE id > ?
		  ORDER BY id ASC
		  LIMIT ?`,
		pageToken,
		pageSize+1,
	)
	if err != nil {
		return storage.AuditEventPage{}, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	page := storage.AuditEventPage{Events: make([]storage.AuditEvent, 0, pageSize)}
	for rows.Next() {
		var event storage.AuditEvent
		var occurredAt int64
		var metadata string
		if err := rows.Scan(&event.ID, &event.Operation, &event.Actor, &event.EntityID, &occurredAt, &metadata); err != nil {
			return storage.AuditEventPage{}, fmt.Errorf("list audit events: %w", err)
		}
		event.OccurredAt = fromMillis(occurredAt)
		if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
			return storage.AuditEventPage{}, fmt.Errorf("decode event metadata: %w", err)
		}
		page.Events = append(page.Events, event)
	}
	if err := rows.Err(); err != nil {
		return storage.AuditEventPage{}, fmt.Errorf("list audit events: %w", err)
	}
	if len(page.Events) > pageSize {
		page.NextPageToken = page.Events[pageSize-1].ID
		page.Events = page.Events[:pageSize]
	}
	return page, nil
}
