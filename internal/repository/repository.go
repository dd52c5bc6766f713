// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const defaultBatchSize = 500

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db        *sql.DB
	driver    string
	batchSize int
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	repo := &SQLRepository{
		db:        db,
		driver:    cfg.Driver,
		batchSize: batch,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// execBatched runs fn once per chunk of n rows, each chunk inside its own
// transaction. A failed chunk aborts the whole write.
func (r *SQLRepository) execBatched(ctx context.Context, n int, fn func(tx *sql.Tx, lo, hi int) error) error {
	for lo := 0; lo < n; lo += r.batchSize {
		hi := lo + r.batchSize
		if hi > n {
			hi = n
		}
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx, lo, hi); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SaveAddresses stores addresses in batches. Re-inserting an existing
// address is a no-op.
func (r *SQLRepository) SaveAddresses(ctx context.Context, addresses []*domain.Address) error {
	query := r.rebind(`
		INSERT INTO addresses (address_id, line1, city, postcode, lat, lon)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(address_id) DO NOTHING
	`)
	return r.execBatched(ctx, len(addresses), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range addresses[lo:hi] {
			if _, err := stmt.ExecContext(ctx, a.ID, a.Line1, a.City, a.Postcode, a.Lat, a.Lon); err != nil {
				return fmt.Errorf("failed to save address %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// SavePolicies stores policies in batches.
func (r *SQLRepository) SavePolicies(ctx context.Context, policies []*domain.Policy) error {
	query := r.rebind(`
		INSERT INTO policies (policy_id, inception_date, expiry_date, product, region)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(policy_id) DO NOTHING
	`)
	return r.execBatched(ctx, len(policies), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range policies[lo:hi] {
			if _, err := stmt.ExecContext(ctx, p.ID, p.InceptionDate, p.ExpiryDate, string(p.Product), p.Region); err != nil {
				return fmt.Errorf("failed to save policy %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// SaveClaimants stores claim parties in batches. Shared-resource keys are
// updated on conflict: the generator mutates cluster members after creation.
func (r *SQLRepository) SaveClaimants(ctx context.Context, claimants []*domain.Claimant) error {
	query := r.rebind(`
		INSERT INTO claim_parties (claimant_id, name, email_hash, phone_hash, address_id, bank_account_hash, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claimant_id) DO UPDATE SET
			address_id = excluded.address_id,
			bank_account_hash = excluded.bank_account_hash,
			device_id = excluded.device_id
	`)
	return r.execBatched(ctx, len(claimants), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range claimants[lo:hi] {
			if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.EmailHash, c.PhoneHash, c.AddressID, c.BankAccountHash, c.DeviceID); err != nil {
				return fmt.Errorf("failed to save claimant %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// SaveClaims stores claims in batches.
func (r *SQLRepository) SaveClaims(ctx context.Context, claims []*domain.Claim) error {
	query := r.rebind(`
		INSERT INTO claims (claim_id, policy_id, claimant_id, loss_date, report_date, loss_type, amount, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id) DO NOTHING
	`)
	return r.execBatched(ctx, len(claims), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range claims[lo:hi] {
			if _, err := stmt.ExecContext(ctx, c.ID, c.PolicyID, c.ClaimantID, c.LossDate, c.ReportDate, string(c.LossType), c.Amount, string(c.Status)); err != nil {
				return fmt.Errorf("failed to save claim %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// SaveScores stores scores in batches, replacing any existing row for the
// same claim.
func (r *SQLRepository) SaveScores(ctx context.Context, scores []*domain.Score) error {
	query := r.rebind(`
		INSERT INTO scores (claim_id, rule_score, ml_score, graph_score, risk_score, reasons_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(claim_id) DO UPDATE SET
			rule_score = excluded.rule_score,
			ml_score = excluded.ml_score,
			graph_score = excluded.graph_score,
			risk_score = excluded.risk_score,
			reasons_json = excluded.reasons_json,
			created_at = excluded.created_at
	`)
	return r.execBatched(ctx, len(scores), func(tx *sql.Tx, lo, hi int) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, s := range scores[lo:hi] {
			reasons, err := json.Marshal(s.Reasons)
			if err != nil {
				return fmt.Errorf("failed to encode reasons for %s: %w", s.ClaimID, err)
			}
			if _, err := stmt.ExecContext(ctx, s.ClaimID, s.RuleScore, s.MLScore, s.GraphScore, s.RiskScore, string(reasons), s.CreatedAt); err != nil {
				return fmt.Errorf("failed to save score for %s: %w", s.ClaimID, err)
			}
		}
		return nil
	})
}

// GetClaim retrieves a claim by ID.
func (r *SQLRepository) GetClaim(ctx context.Context, claimID string) (*domain.Claim, error) {
	if claimID == "" {
		return nil, fmt.Errorf("%w: claimID is required", ErrInvalidInput)
	}

	query := `
		SELECT claim_id, policy_id, claimant_id, loss_date, report_date, loss_type, amount, status
		FROM claims
		WHERE claim_id = ?
	`

	var c domain.Claim
	err := r.db.QueryRowContext(ctx, r.rebind(query), claimID).Scan(
		&c.ID, &c.PolicyID, &c.ClaimantID,
		&c.LossDate, &c.ReportDate,
		&c.LossType, &c.Amount, &c.Status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClaims retrieves all claims ordered by loss date.
func (r *SQLRepository) ListClaims(ctx context.Context) ([]*domain.Claim, error) {
	query := `
		SELECT claim_id, policy_id, claimant_id, loss_date, report_date, loss_type, amount, status
		FROM claims
		ORDER BY loss_date, claim_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claims []*domain.Claim
	for rows.Next() {
		var c domain.Claim
		if err := rows.Scan(
			&c.ID, &c.PolicyID, &c.ClaimantID,
			&c.LossDate, &c.ReportDate,
			&c.LossType, &c.Amount, &c.Status,
		); err != nil {
			return nil, err
		}
		claims = append(claims, &c)
	}
	return claims, rows.Err()
}

// ListPolicies retrieves all policies.
func (r *SQLRepository) ListPolicies(ctx context.Context) ([]*domain.Policy, error) {
	query := `
		SELECT policy_id, inception_date, expiry_date, product, region
		FROM policies
		ORDER BY policy_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.InceptionDate, &p.ExpiryDate, &p.Product, &p.Region); err != nil {
			return nil, err
		}
		policies = append(policies, &p)
	}
	return policies, rows.Err()
}

// ListClaimants retrieves all claim parties.
func (r *SQLRepository) ListClaimants(ctx context.Context) ([]*domain.Claimant, error) {
	query := `
		SELECT claimant_id, name, email_hash, phone_hash, address_id, bank_account_hash, device_id
		FROM claim_parties
		ORDER BY claimant_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimants []*domain.Claimant
	for rows.Next() {
		var c domain.Claimant
		if err := rows.Scan(&c.ID, &c.Name, &c.EmailHash, &c.PhoneHash, &c.AddressID, &c.BankAccountHash, &c.DeviceID); err != nil {
			return nil, err
		}
		claimants = append(claimants, &c)
	}
	return claimants, rows.Err()
}

// GetScore retrieves the score for a claim.
func (r *SQLRepository) GetScore(ctx context.Context, claimID string) (*domain.Score, error) {
	if claimID == "" {
		return nil, fmt.Errorf("%w: claimID is required", ErrInvalidInput)
	}

	query := `
		SELECT claim_id, rule_score, ml_score, graph_score, risk_score, reasons_json, created_at
		FROM scores
		WHERE claim_id = ?
	`

	var s domain.Score
	var reasons string
	err := r.db.QueryRowContext(ctx, r.rebind(query), claimID).Scan(
		&s.ClaimID, &s.RuleScore, &s.MLScore, &s.GraphScore, &s.RiskScore,
		&reasons, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(reasons), &s.Reasons); err != nil {
		return nil, fmt.Errorf("failed to parse reasons for %s: %w", claimID, err)
	}
	return &s, nil
}

// ListScoresAbove retrieves scores at or above the given risk, highest
// first. A non-positive limit means no limit.
func (r *SQLRepository) ListScoresAbove(ctx context.Context, minRisk float64, limit int) ([]*domain.Score, error) {
	query := `
		SELECT claim_id, rule_score, ml_score, graph_score, risk_score, reasons_json, created_at
		FROM scores
		WHERE risk_score >= ?
		ORDER BY risk_score DESC, claim_id
	`
	args := []any{minRisk}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []*domain.Score
	for rows.Next() {
		var s domain.Score
		var reasons string
		if err := rows.Scan(
			&s.ClaimID, &s.RuleScore, &s.MLScore, &s.GraphScore, &s.RiskScore,
			&reasons, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(reasons), &s.Reasons); err != nil {
			return nil, fmt.Errorf("failed to parse reasons for %s: %w", s.ClaimID, err)
		}
		scores = append(scores, &s)
	}
	return scores, rows.Err()
}

// CountScores returns the number of persisted score rows.
func (r *SQLRepository) CountScores(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scores").Scan(&n)
	return n, err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
