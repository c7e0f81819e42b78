package repo

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/identra/server/internal/model"
)

const verificationColumns = `id, email, phone, otp_hash, otp_expiry, is_verified,
       exchange_token, exchange_token_expiry`

// VerificationRepo defines the interface for OTP challenge repository
// operations. At most one challenge exists per email and per phone; Upsert
// overwrites any prior one.
type VerificationRepo interface {
	UpsertByEmail(ctx context.Context, email, otpHashHex string, otpExpiry time.Time) (uuid.UUID, error)
	UpsertByPhone(ctx context.Context, phone, otpHashHex string, otpExpiry time.Time) (uuid.UUID, error)
	GetByEmail(ctx context.Context, email string) (model.Verification, error)
	GetByPhone(ctx context.Context, phone string) (model.Verification, error)
	MarkVerified(ctx context.Context, id uuid.UUID, token string, tokenExpiry time.Time) error
	ClearExchangeToken(ctx context.Context, q Querier, id uuid.UUID) error
}

type verificationRepo struct {
	db *sql.DB
}

// NewVerificationRepo creates a new VerificationRepo instance
func NewVerificationRepo(db *sql.DB) VerificationRepo {
	return &verificationRepo{db: db}
}

// UpsertByEmail creates or replaces the challenge for the email: fresh code,
// fresh expiry, is_verified reset, any pending exchange token discarded.
func (r *verificationRepo) UpsertByEmail(ctx context.Context, email, otpHashHex string, otpExpiry time.Time) (uuid.UUID, error) {
	return r.upsert(ctx, "email", email, otpHashHex, otpExpiry)
}

// UpsertByPhone creates or replaces the challenge for the phone number.
func (r *verificationRepo) UpsertByPhone(ctx context.Context, phone, otpHashHex string, otpExpiry time.Time) (uuid.UUID, error) {
	return r.upsert(ctx, "phone", phone, otpHashHex, otpExpiry)
}

func (r *verificationRepo) upsert(ctx context.Context, column, identifier, otpHashHex string, otpExpiry time.Time) (uuid.UUID, error) {
	var id uuid.UUID
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		// Advisory lock: serialize concurrent issues per identifier so the
		// last writer wins cleanly. Released on COMMIT/ROLLBACK.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, identifier); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		query := fmt.Sprintf(`
			INSERT INTO email_phone_verifications (%s, otp_hash, otp_expiry)
			VALUES ($1, $2, $3)
			ON CONFLICT (%s) DO UPDATE SET
				otp_hash = EXCLUDED.otp_hash,
				otp_expiry = EXCLUDED.otp_expiry,
				is_verified = FALSE,
				exchange_token = NULL,
				exchange_token_expiry = NULL
			RETURNING id
		`, column, column)

		var idStr string
		if err := tx.QueryRowContext(ctx, query, identifier, otpHashHex, otpExpiry).Scan(&idStr); err != nil {
			return fmt.Errorf("upsert verification: %w", err)
		}
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("parse verification ID: %w", err)
		}
		id = parsed
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetByEmail returns the challenge for the email.
func (r *verificationRepo) GetByEmail(ctx context.Context, email string) (model.Verification, error) {
	return r.getBy(ctx, "email", email)
}

// GetByPhone returns the challenge for the phone number.
func (r *verificationRepo) GetByPhone(ctx context.Context, phone string) (model.Verification, error) {
	return r.getBy(ctx, "phone", phone)
}

func (r *verificationRepo) getBy(ctx context.Context, column, identifier string) (model.Verification, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM email_phone_verifications
		WHERE %s = $1
	`, verificationColumns, column)

	var v model.Verification
	var idStr, otpHashHex string
	err := r.db.QueryRowContext(ctx, query, identifier).Scan(
		&idStr,
		&v.Email,
		&v.Phone,
		&otpHashHex,
		&v.OTPExpiry,
		&v.IsVerified,
		&v.ExchangeToken,
		&v.ExchangeTokenExpiry,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Verification{}, ErrNoRows
		}
		return model.Verification{}, fmt.Errorf("query verification by %s: %w", column, err)
	}

	v.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.Verification{}, fmt.Errorf("parse verification ID: %w", err)
	}
	v.OTPHash, err = hex.DecodeString(otpHashHex)
	if err != nil {
		return model.Verification{}, fmt.Errorf("decode otp_hash: %w", err)
	}
	return v, nil
}

// MarkVerified flags the challenge verified and stores the freshly minted
// exchange token with its expiry. Single statement, so atomic.
func (r *verificationRepo) MarkVerified(ctx context.Context, id uuid.UUID, token string, tokenExpiry time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE email_phone_verifications
		SET is_verified = TRUE, exchange_token = $2, exchange_token_expiry = $3
		WHERE id = $1
	`, id, token, tokenExpiry)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNoRows
	}
	return nil
}

// ClearExchangeToken invalidates the token after registration consumes it.
// Runs on the caller's Querier so it shares the registration transaction.
func (r *verificationRepo) ClearExchangeToken(ctx context.Context, q Querier, id uuid.UUID) error {
	if q == nil {
		q = r.db
	}
	result, err := q.ExecContext(ctx, `
		UPDATE email_phone_verifications
		SET exchange_token = NULL, exchange_token_expiry = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear exchange token: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNoRows
	}
	return nil
}
