package pending

import (
	"context"
	_ "embed"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/perun-network/auction-claim/internal/message"
)

//go:embed schema.sql
var schema string

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse postgres dsn")
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "connect to postgres")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Pool{Pool: pool}, nil
}

// PostgresStore is a PostgreSQL implementation of Store. Pending claims
// survive restarts, so a claim submitted shortly before a restart is still
// reported as PENDING afterwards.
type PostgresStore struct {
	pool *Pool
	ttl  time.Duration
}

// NewPostgresStore creates a store on pool. Entries older than ttl are
// treated as absent; ttl <= 0 selects DefaultTTL.
func NewPostgresStore(pool *Pool, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{pool: pool, ttl: ttl}
}

// Migrate creates the pending_claims table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "migrate pending_claims")
	}
	return nil
}

// Record implements Store.
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pending_claims (auction_id, account, chain_id, tx_hash, summary, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (auction_id, account) DO UPDATE
		SET chain_id = EXCLUDED.chain_id,
		    tx_hash = EXCLUDED.tx_hash,
		    summary = EXCLUDED.summary,
		    recorded_at = EXCLUDED.recorded_at
	`, int64(e.AuctionID), e.Account.Hex(), chainIDString(e.ChainID), e.TxHash.Hex(), e.Summary, e.RecordedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "record pending claim")
	}
	return nil
}

// Has implements Store.
func (s *PostgresStore) Has(ctx context.Context, auctionID uint64, account common.Address) (bool, error) {
	_, err := s.Get(ctx, auctionID, account)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, auctionID uint64, account common.Address) (Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT auction_id, account, chain_id, tx_hash, summary, recorded_at
		FROM pending_claims
		WHERE auction_id = $1 AND account = $2 AND recorded_at > $3
	`, int64(auctionID), account.Hex(), s.cutoff())

	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, errors.Wrap(err, "get pending claim")
	}
	return e, nil
}

// Clear implements Store.
func (s *PostgresStore) Clear(ctx context.Context, auctionID uint64, account common.Address) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM pending_claims WHERE auction_id = $1 AND account = $2
	`, int64(auctionID), account.Hex())
	if err != nil {
		return errors.Wrap(err, "clear pending claim")
	}
	return nil
}

// ClearTx implements Store.
func (s *PostgresStore) ClearTx(ctx context.Context, e Entry) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pending_claims WHERE auction_id = $1 AND account = $2 AND tx_hash = $3
	`, int64(e.AuctionID), e.Account.Hex(), e.TxHash.Hex())
	if err != nil {
		return false, errors.Wrap(err, "clear pending claim")
	}
	return tag.RowsAffected() > 0, nil
}

// List implements Store. Expired rows are deleted on the way.
func (s *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	cutoff := s.cutoff()
	if _, err := s.pool.Exec(ctx, `DELETE FROM pending_claims WHERE recorded_at <= $1`, cutoff); err != nil {
		return nil, errors.Wrap(err, "prune pending claims")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT auction_id, account, chain_id, tx_hash, summary, recorded_at
		FROM pending_claims
		WHERE recorded_at > $1
		ORDER BY recorded_at ASC
	`, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "list pending claims")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan pending claim")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) cutoff() time.Time {
	return time.Now().Add(-s.ttl).UTC()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		auctionID        int64
		account, chainID string
		txHash, summary  string
		recordedAt       time.Time
	)
	if err := row.Scan(&auctionID, &account, &chainID, &txHash, &summary, &recordedAt); err != nil {
		return Entry{}, err
	}

	e := Entry{
		AuctionID:  uint64(auctionID),
		Account:    common.HexToAddress(account),
		TxHash:     common.HexToHash(txHash),
		Summary:    summary,
		RecordedAt: recordedAt,
	}
	if id, ok := new(big.Int).SetString(chainID, 10); ok {
		e.ChainID = message.MakeChainID(id)
	}
	return e, nil
}

func chainIDString(id message.ChainID) string {
	if id.Int == nil {
		return ""
	}
	return id.String()
}
