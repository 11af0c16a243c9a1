// Package sqlite provides a SQLite-backed ledger storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/funds"
	"github.com/louisbranch/vouchnet/internal/marketplace"
	sqlitemigrate "github.com/louisbranch/vouchnet/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/vouchnet/internal/reputation"
	"github.com/louisbranch/vouchnet/internal/storage"
	"github.com/louisbranch/vouchnet/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Apply commits a mutation in one transaction. Versioned records must carry
// the version the caller read; the write bumps it and a stale version rolls
// the whole mutation back with ErrVersionConflict.
func (s *Store) Apply(ctx context.Context, mutation storage.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if mutation.Empty() {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if mutation.Params != nil {
		if err := applyParams(ctx, tx, *mutation.Params); err != nil {
			return err
		}
	}
	for _, agent := range mutation.Agents {
		if err := applyAgent(ctx, tx, agent); err != nil {
			return err
		}
	}
	for _, vouch := range mutation.Vouches {
		if err := applyVouch(ctx, tx, vouch); err != nil {
			return err
		}
	}
	for _, dispute := range mutation.Disputes {
		if err := applyDispute(ctx, tx, dispute); err != nil {
			return err
		}
	}
	for _, listing := range mutation.Listings {
		if err := applyListing(ctx, tx, listing); err != nil {
			return err
		}
	}
	for _, purchase := range mutation.Purchases {
		if err := applyPurchase(ctx, tx, purchase); err != nil {
			return err
		}
	}
	recordedAt := s.now().UTC()
	for _, move := range mutation.Moves {
		if err := applyMove(ctx, tx, move, recordedAt); err != nil {
			return err
		}
	}
	for _, event := range mutation.Events {
		if err := applyEvent(ctx, tx, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}
	return nil
}

func applyParams(ctx context.Context, tx *sql.Tx, params reputation.Params) error {
	if params.Version == 0 {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO params (
			   id, authority, min_stake, dispute_bond, slash_percent, cooldown_ms,
			   stake_weight, vouch_weight, dispute_penalty, longevity_bonus, version
			 ) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			params.Authority,
			params.MinStake,
			params.DisputeBond,
			params.SlashPercent,
			params.Cooldown.Milliseconds(),
			params.StakeWeight,
			params.VouchWeight,
			params.DisputePenalty,
			params.LongevityBonus,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrVersionConflict
			}
			return fmt.Errorf("insert params: %w", err)
		}
		return nil
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE params
		    SET authority = ?, min_stake = ?, dispute_bond = ?, slash_percent = ?,
		        cooldown_ms = ?, stake_weight = ?, vouch_weight = ?,
		        dispute_penalty = ?, longevity_bonus = ?, version = version + 1
		  WHERE id = 1 AND version = ?`,
		params.Authority,
		params.MinStake,
		params.DisputeBond,
		params.SlashPercent,
		params.Cooldown.Milliseconds(),
		params.StakeWeight,
		params.VouchWeight,
		params.DisputePenalty,
		params.LongevityBonus,
		params.Version,
	)
	if err != nil {
		return fmt.Errorf("update params: %w", err)
	}
	return requireOneRow(result, "params")
}

func applyAgent(ctx context.Context, tx *sql.Tx, agent reputation.Agent) error {
	if agent.Version == 0 {
		if strings.TrimSpace(agent.ID) == "" {
			return fmt.Errorf("agent id is required")
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO agents (
			   id, metadata_uri, balance, reputation_score,
			   total_vouches_received, total_vouches_given, total_staked_for,
			   disputes_won, disputes_lost, registered_at, version
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			agent.ID,
			agent.MetadataURI,
			agent.Balance,
			agent.ReputationScore,
			agent.TotalVouchesReceived,
			agent.TotalVouchesGiven,
			agent.TotalStakedFor,
			agent.DisputesWon,
			agent.DisputesLost,
			toMillis(agent.RegisteredAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("insert agent %s: %w", agent.ID, err)
		}
		return nil
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE agents
		    SET metadata_uri = ?, balance = ?, reputation_score = ?,
		        total_vouches_received = ?, total_vouches_given = ?,
		        total_staked_for = ?, disputes_won = ?, disputes_lost = ?,
		        version = version + 1
		  WHERE id = ? AND version = ?`,
		agent.MetadataURI,
		agent.Balance,
		agent.ReputationScore,
		agent.TotalVouchesReceived,
		agent.TotalVouchesGiven,
		agent.TotalStakedFor,
		agent.DisputesWon,
		agent.DisputesLost,
		agent.ID,
		agent.Version,
	)
	if err != nil {
		return fmt.Errorf("update agent %s: %w", agent.ID, err)
	}
	return requireOneRow(result, "agent "+agent.ID)
}

func applyVouch(ctx context.Context, tx *sql.Tx, vouch reputation.Vouch) error {
	if vouch.Version == 0 {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO vouches (
			   id, voucher_id, vouchee_id, stake_amount, escrow,
			   cumulative_revenue, created_at, last_payout_at,
			   stake_release_at, status, version
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			vouch.ID,
			vouch.Voucher,
			vouch.Vouchee,
			vouch.StakeAmount,
			vouch.Escrow,
			vouch.CumulativeRevenue,
			toMillis(vouch.CreatedAt),
			toMillis(vouch.LastPayoutAt),
			toNullMillis(vouch.StakeReleaseAt),
			vouch.Status.String(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("insert vouch %s: %w", vouch.ID, err)
		}
		return nil
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE vouches
		    SET stake_amount = ?, escrow = ?, cumulative_revenue = ?,
		        last_payout_at = ?, stake_release_at = ?, status = ?,
		        version = version + 1
		  WHERE id = ? AND version = ?`,
		vouch.StakeAmount,
		vouch.Escrow,
		vouch.CumulativeRevenue,
		toMillis(vouch.LastPayoutAt),
		toNullMillis(vouch.StakeReleaseAt),
		vouch.Status.String(),
		vouch.ID,
		vouch.Version,
	)
	if err != nil {
		return fmt.Errorf("update vouch %s: %w", vouch.ID, err)
	}
	return requireOneRow(result, "vouch "+vouch.ID)
}

func applyDispute(ctx context.Context, tx *sql.Tx, dispute reputation.Dispute) error {
	if dispute.Version == 0 {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO disputes (
			   id, vouch_id, challenger_id, evidence_uri, escrow,
			   status, ruling, created_at, resolved_at, version
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			dispute.ID,
			dispute.VouchID,
			dispute.Challenger,
			dispute.EvidenceURI,
			dispute.Escrow,
			dispute.Status.String(),
			dispute.Ruling.String(),
			toMillis(dispute.CreatedAt),
			toNullMillis(dispute.ResolvedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("insert dispute %s: %w", dispute.ID, err)
		}
		return nil
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE disputes
		    SET escrow = ?, status = ?, ruling = ?, resolved_at = ?,
		        version = version + 1
		  WHERE id = ? AND version = ?`,
		dispute.Escrow,
		dispute.Status.String(),
		dispute.Ruling.String(),
		toNullMillis(dispute.ResolvedAt),
		dispute.ID,
		dispute.Version,
	)
	if err != nil {
		return fmt.Errorf("update dispute %s: %w", dispute.ID, err)
	}
	return requireOneRow(result, "dispute "+dispute.ID)
}

func applyListing(ctx context.Context, tx *sql.Tx, listing marketplace.SkillListing) error {
	if listing.Version == 0 {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO skill_listings (
			   id, author_id, skill_uri, name, description, price,
			   total_downloads, total_revenue, created_at, updated_at,
			   status, version
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			listing.ID,
			listing.Author,
			listing.SkillURI,
			listing.Name,
			listing.Description,
			listing.Price,
			listing.TotalDownloads,
			listing.TotalRevenue,
			toMillis(listing.CreatedAt),
			toMillis(listing.UpdatedAt),
			listing.Status.String(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrAlreadyExists
			}
			return fmt.Errorf("insert listing %s: %w", listing.ID, err)
		}
		return nil
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE skill_listings
		    SET skill_uri = ?, name = ?, description = ?, price = ?,
		        total_downloads = ?, total_revenue = ?, updated_at = ?,
		        status = ?, version = version + 1
		  WHERE id = ? AND version = ?`,
		listing.SkillURI,
		listing.Name,
		listing.Description,
		listing.Price,
		listing.TotalDownloads,
		listing.TotalRevenue,
		toMillis(listing.UpdatedAt),
		listing.Status.String(),
		listing.ID,
		listing.Version,
	)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", listing.ID, err)
	}
	return requireOneRow(result, "listing "+listing.ID)
}

func applyPurchase(ctx context.Context, tx *sql.Tx, purchase marketplace.Purchase) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO purchases (id, listing_id, buyer_id, price_paid, purchased_at)
		 VALUES (?, ?, ?, ?, ?)`,
		purchase.ID,
		purchase.ListingID,
		purchase.Buyer,
		purchase.PricePaid,
		toMillis(purchase.PurchasedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert purchase %s: %w", purchase.ID, err)
	}
	return nil
}

// applyMove journals the move and adjusts account balances. The external
// account is the unbounded source and sink for ledger credits; every other
// account must cover its debits or the balance CHECK fires and the mutation
// rolls back.
func applyMove(ctx context.Context, tx *sql.Tx, move funds.Move, recordedAt time.Time) error {
	if move.Amount == 0 {
		return apperrors.New(apperrors.CodeFundsZeroAmount, "fund move amount must be greater than zero")
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO fund_moves (from_account, to_account, amount, recorded_at)
		 VALUES (?, ?, ?, ?)`,
		string(move.From),
		string(move.To),
		move.Amount,
		toMillis(recordedAt),
	); err != nil {
		return fmt.Errorf("journal move: %w", err)
	}

	if move.From != funds.External {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO accounts (account, balance) VALUES (?, 0)
			 ON CONFLICT (account) DO NOTHING`,
			string(move.From),
		); err != nil {
			return fmt.Errorf("ensure account %s: %w", move.From, err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE accounts SET balance = balance - ? WHERE account = ?`,
			move.Amount,
			string(move.From),
		); err != nil {
			if isCheckViolation(err) {
				return debitShortfallError(move)
			}
			return fmt.Errorf("debit account %s: %w", move.From, err)
		}
	}
	if move.To != funds.External {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO accounts (account, balance) VALUES (?, ?)
			 ON CONFLICT (account) DO UPDATE SET balance = balance + excluded.balance`,
			string(move.To),
			move.Amount,
		); err != nil {
			return fmt.Errorf("credit account %s: %w", move.To, err)
		}
	}
	return nil
}

func applyEvent(ctx context.Context, tx *sql.Tx, event storage.AuditEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode event metadata: %w", err)
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO audit_events (id, operation, actor, entity_id, occurred_at, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Operation,
		event.Actor,
		event.EntityID,
		toMillis(event.OccurredAt),
		string(encoded),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert audit event %s: %w", event.ID, err)
	}
	return nil
}

// debitShortfallError classifies an uncovered debit. Agent accounts can run
// short through normal caller races; escrow and treasury accounts cannot,
// so a shortfall there is an accounting invariant breach.
func debitShortfallError(move funds.Move) error {
	if move.From.AgentID() != "" {
		return apperrors.WithMetadata(apperrors.CodeFundsInsufficient, "insufficient available balance", map[string]string{
			"account": string(move.From),
			"amount":  fmt.Sprintf("%d", move.Amount),
		})
	}
	return apperrors.WithMetadata(apperrors.CodeFundsEscrowUnderflow, "escrowed balance below required payout", map[string]string{
		"account": string(move.From),
		"amount":  fmt.Sprintf("%d", move.Amount),
	})
}

func requireOneRow(result sql.Result, entity string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", entity, err)
	}
	if affected == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func isCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_CHECK
	}
	return strings.Contains(strings.ToLower(err.Error()), "check constraint failed")
}

var _ storage.Store = (*Store)(nil)
