package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/private-otc/pkg/chain"
	"github.com/Checker-Finance/private-otc/pkg/model"
)

//go:embed schema.sql
var schemaSQL string

const pgUniqueViolation = "23505"

// PGPoolConfig tunes the pgx pool. Zero values keep pgx defaults.
type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects a pool to pgURL.
func NewPostgres(ctx context.Context, pgURL string, poolCfg PGPoolConfig, logger *zap.Logger) (*PGStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(pgURL)
	if err != nil {
		return nil, fmt.Errorf("invalid pg config: %w", err)
	}
	if poolCfg.MaxConns > 0 {
		cfg.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		cfg.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}
	if poolCfg.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = poolCfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &PGStore{pool: pool, logger: logger}, nil
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	s.logger.Info("store.pg.schema_applied")
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ─── quote requests ──────────────────────────────────────────────────────────

const selectQuoteRequest = `
	SELECT id, asset_pair, direction, amount_commitment, amount, amount_blinding,
	       stealth_address, stealth_public_key, taker_public_key, chain, status,
	       COALESCE(nullifier_hash, ''), COALESCE(settlement_tx_hash, ''), COALESCE(filled_quote_id, ''),
	       created_at, expires_at
	FROM otc.quote_request`

func scanQuoteRequest(row pgx.Row) (*model.QuoteRequest, error) {
	var (
		r              model.QuoteRequest
		amount, chainS string
	)
	err := row.Scan(&r.ID, &r.AssetPair, &r.Direction, &r.AmountCommitment, &amount, &r.AmountBlinding,
		&r.StealthAddress, &r.StealthPublicKey, &r.TakerPublicKey, &chainS, &r.Status,
		&r.NullifierHash, &r.SettlementTxHash, &r.FilledQuoteID,
		&r.CreatedAt, &r.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("quote request %s amount: %w", r.ID, err)
	}
	if r.Chain, err = chain.Parse(chainS); err != nil {
		return nil, fmt.Errorf("quote request %s: %w", r.ID, err)
	}
	return &r, nil
}

func (s *PGStore) InsertQuoteRequest(ctx context.Context, r *model.QuoteRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO otc.quote_request (
			id, asset_pair, direction, amount_commitment, amount, amount_blinding,
			stealth_address, stealth_public_key, taker_public_key, chain, status,
			created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.AssetPair, r.Direction, r.AmountCommitment, r.Amount.String(), r.AmountBlinding,
		r.StealthAddress, r.StealthPublicKey, r.TakerPublicKey, r.Chain.String(), r.Status,
		r.CreatedAt, r.ExpiresAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("quote request %s: %w", r.ID, ErrDuplicate)
	}
	if err != nil {
		s.logger.Error("store.pg.insert_quote_request_failed", zap.String("id", r.ID), zap.Error(err))
		return fmt.Errorf("insert quote request: %w", err)
	}
	return nil
}

func (s *PGStore) GetQuoteRequest(ctx context.Context, id string) (*model.QuoteRequest, error) {
	r, err := scanQuoteRequest(s.pool.QueryRow(ctx, selectQuoteRequest+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("quote request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get quote request %s: %w", id, err)
	}
	return r, nil
}

func (s *PGStore) UpdateQuoteRequestStatus(ctx context.Context, id string, from, to model.RequestStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE otc.quote_request SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update quote request %s status: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) FillQuoteRequest(ctx context.Context, requestID, quoteID string, settle SettleFunc) (*model.QuoteRequest, *model.Quote, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin fill tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	req, err := scanQuoteRequest(tx.QueryRow(ctx, selectQuoteRequest+` WHERE id = $1 FOR UPDATE`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("quote request %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock quote request %s: %w", requestID, err)
	}
	quote, err := scanQuote(tx.QueryRow(ctx, selectQuote+` WHERE id = $1 FOR UPDATE`, quoteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("quote %s: %w", quoteID, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock quote %s: %w", quoteID, err)
	}

	fill, err := settle(ctx, req, quote)
	if err != nil {
		return nil, nil, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE otc.quote_request
		SET status = 'filled', nullifier_hash = $2, settlement_tx_hash = NULLIF($3, ''), filled_quote_id = $4
		WHERE id = $1 AND status = 'active'`,
		requestID, fill.NullifierHash, fill.SettlementTxHash, quoteID)
	if err != nil {
		return nil, nil, fmt.Errorf("mark quote request filled: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, nil, fmt.Errorf("fill %s: request no longer active", requestID)
	}
	tag, err = tx.Exec(ctx,
		`UPDATE otc.quote SET status = 'accepted' WHERE id = $1 AND status = 'active'`, quoteID)
	if err != nil {
		return nil, nil, fmt.Errorf("mark quote accepted: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return nil, nil, fmt.Errorf("fill %s: quote %s no longer active", requestID, quoteID)
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("store.pg.fill_commit_failed",
			zap.String("quote_request_id", requestID),
			zap.String("nullifier_hash", fill.NullifierHash),
			zap.Error(err))
		return nil, nil, fmt.Errorf("commit fill: %w", err)
	}

	req.Status = model.RequestFilled
	req.NullifierHash = fill.NullifierHash
	req.SettlementTxHash = fill.SettlementTxHash
	req.FilledQuoteID = quoteID
	quote.Status = model.QuoteAccepted
	return req, quote, nil
}

// ─── quotes ──────────────────────────────────────────────────────────────────

const selectQuote = `
	SELECT id, quote_request_id, price_commitment, price, price_blinding, maker_public_key,
	       maker_address, stealth_address, stealth_public_key, status, created_at, expires_at
	FROM otc.quote`

func scanQuote(row pgx.Row) (*model.Quote, error) {
	var (
		q     model.Quote
		price string
	)
	err := row.Scan(&q.ID, &q.QuoteRequestID, &q.PriceCommitment, &price, &q.PriceBlinding, &q.MakerPublicKey,
		&q.MakerAddress, &q.StealthAddress, &q.StealthPublicKey, &q.Status, &q.CreatedAt, &q.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if q.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("quote %s price: %w", q.ID, err)
	}
	return &q, nil
}

func (s *PGStore) InsertQuote(ctx context.Context, q *model.Quote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO otc.quote (
			id, quote_request_id, price_commitment, price, price_blinding, maker_public_key,
			maker_address, stealth_address, stealth_public_key, status, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		q.ID, q.QuoteRequestID, q.PriceCommitment, q.Price.String(), q.PriceBlinding, q.MakerPublicKey,
		q.MakerAddress, q.StealthAddress, q.StealthPublicKey, q.Status, q.CreatedAt, q.ExpiresAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("quote %s: %w", q.ID, ErrDuplicate)
	}
	if err != nil {
		s.logger.Error("store.pg.insert_quote_failed", zap.String("id", q.ID), zap.Error(err))
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

func (s *PGStore) GetQuote(ctx context.Context, id string) (*model.Quote, error) {
	q, err := scanQuote(s.pool.QueryRow(ctx, selectQuote+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("quote %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", id, err)
	}
	return q, nil
}

func (s *PGStore) ListQuotesByRequest(ctx context.Context, requestID string, status model.QuoteStatus, aliveAt time.Time) ([]model.Quote, error) {
	var (
		where = []string{"quote_request_id = $1"}
		args  = []any{requestID}
	)
	if status != "" {
		args = append(args, status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !aliveAt.IsZero() {
		args = append(args, aliveAt)
		where = append(where, fmt.Sprintf("expires_at > $%d", len(args)))
	}
	rows, err := s.pool.Query(ctx,
		selectQuote+" WHERE "+strings.Join(where, " AND ")+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("list quotes for %s: %w", requestID, err)
	}
	defer rows.Close()

	var out []model.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateQuoteStatus(ctx context.Context, id string, from, to model.QuoteStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE otc.quote SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update quote %s status: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ─── expiry ──────────────────────────────────────────────────────────────────

func (s *PGStore) ExpireQuoteRequests(ctx context.Context, now time.Time) ([]string, error) {
	return s.expire(ctx, `
		UPDATE otc.quote_request SET status = 'expired'
		WHERE status = 'active' AND expires_at <= $1
		RETURNING id`, now)
}

func (s *PGStore) ExpireQuotes(ctx context.Context, now time.Time) ([]string, error) {
	return s.expire(ctx, `
		UPDATE otc.quote SET status = 'expired'
		WHERE status = 'active' AND expires_at <= $1
		RETURNING id`, now)
}

func (s *PGStore) expire(ctx context.Context, query string, now time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("expire: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("expire: %w", err)
	}
	return ids, nil
}

// ─── messages ────────────────────────────────────────────────────────────────

func (s *PGStore) InsertMessage(ctx context.Context, m *model.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO otc.message (
			id, quote_request_id, sender_public_key, recipient_stealth_address,
			encrypted_content, ephemeral_public_key, iv, auth_tag, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.QuoteRequestID, m.SenderPublicKey, m.RecipientStealthAddress,
		m.EncryptedContent, m.EphemeralPublicKey, m.IV, m.AuthTag, m.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("message %s: %w", m.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PGStore) ListMessages(ctx context.Context, requestID string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, quote_request_id, sender_public_key, recipient_stealth_address,
		       encrypted_content, ephemeral_public_key, iv, auth_tag, created_at
		FROM otc.message
		WHERE quote_request_id = $1
		ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", requestID, err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.QuoteRequestID, &m.SenderPublicKey, &m.RecipientStealthAddress,
			&m.EncryptedContent, &m.EphemeralPublicKey, &m.IV, &m.AuthTag, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ─── whitelist ───────────────────────────────────────────────────────────────

func insertAudit(ctx context.Context, tx pgx.Tx, a model.AuditRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO otc.whitelist_audit (id, action, address, admin, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Action, strings.ToLower(a.Address), a.Admin, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("append whitelist audit: %w", err)
	}
	return nil
}

func (s *PGStore) AddWhitelistEntry(ctx context.Context, e model.WhitelistEntry, audit model.AuditRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin whitelist tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO otc.whitelist (address, added_by, added_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO NOTHING`,
		strings.ToLower(e.Address), e.AddedBy, e.AddedAt)
	if err != nil {
		return fmt.Errorf("insert whitelist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("whitelist %s: %w", e.Address, ErrDuplicate)
	}
	if err := insertAudit(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) RemoveWhitelistEntry(ctx context.Context, address string, audit model.AuditRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin whitelist tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM otc.whitelist WHERE address = $1`, strings.ToLower(address))
	if err != nil {
		return fmt.Errorf("delete whitelist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("whitelist %s: %w", address, ErrNotFound)
	}
	if err := insertAudit(ctx, tx, audit); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) GetWhitelistEntry(ctx context.Context, address string) (*model.WhitelistEntry, error) {
	var e model.WhitelistEntry
	err := s.pool.QueryRow(ctx,
		`SELECT address, added_by, added_at FROM otc.whitelist WHERE address = $1`,
		strings.ToLower(address)).Scan(&e.Address, &e.AddedBy, &e.AddedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("whitelist %s: %w", address, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get whitelist entry: %w", err)
	}
	return &e, nil
}

func (s *PGStore) ListWhitelist(ctx context.Context) ([]model.WhitelistEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT address, added_by, added_at FROM otc.whitelist ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	defer rows.Close()

	var out []model.WhitelistEntry
	for rows.Next() {
		var e model.WhitelistEntry
		if err := rows.Scan(&e.Address, &e.AddedBy, &e.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PGStore) ListAudit(ctx context.Context, limit int) ([]model.AuditRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, action, address, admin, created_at
		FROM otc.whitelist_audit
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list whitelist audit: %w", err)
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var a model.AuditRecord
		if err := rows.Scan(&a.ID, &a.Action, &a.Address, &a.Admin, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ─── used signatures ─────────────────────────────────────────────────────────

func (s *PGStore) GetUsedSignature(ctx context.Context, hash string) (*model.UsedSignature, error) {
	var rec model.UsedSignature
	err := s.pool.QueryRow(ctx, `
		SELECT signature_hash, operation_type, public_key, used_at
		FROM otc.used_signature WHERE signature_hash = $1`, hash).
		Scan(&rec.SignatureHash, &rec.OperationType, &rec.PublicKey, &rec.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get used signature: %w", err)
	}
	return &rec, nil
}

func (s *PGStore) InsertUsedSignature(ctx context.Context, rec model.UsedSignature) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO otc.used_signature (signature_hash, operation_type, public_key, used_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (signature_hash) DO NOTHING`,
		rec.SignatureHash, rec.OperationType, rec.PublicKey, rec.UsedAt)
	if err != nil {
		return false, fmt.Errorf("insert used signature: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) DeleteUsedSignature(ctx context.Context, hash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM otc.used_signature WHERE signature_hash = $1`, hash); err != nil {
		return fmt.Errorf("delete used signature: %w", err)
	}
	return nil
}

func (s *PGStore) HealthCheck(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (s *PGStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
