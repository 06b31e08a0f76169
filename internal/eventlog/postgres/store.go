package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"positionScope/internal/eventlog"
	"positionScope/internal/model"
)

// Store reads the indexer-owned event and price tables.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// FetchEventsForWallet returns transfer events involving wallet, ordered by
// block number then log index. parsedData is 1-indexed in Postgres:
// [1]=from, [2]=to, [3]=raw amount.
func (s *Store) FetchEventsForWallet(ctx context.Context, wallet string, role eventlog.Role) ([]model.Event, error) {
	var predicate string
	switch role {
	case eventlog.RoleSender:
		predicate = `lower("parsedData"[1]) = $1`
	case eventlog.RoleReceiver:
		predicate = `lower("parsedData"[2]) = $1`
	default:
		predicate = `(lower("parsedData"[1]) = $1 OR lower("parsedData"[2]) = $1)`
	}

	query := fmt.Sprintf(`
		SELECT "eventName", "blockNumber", "transactionHash", "logIndex",
		       "parsedData", "contractAddress", "appName", "createdAt"
		FROM event
		WHERE "eventName" = 'Transfer' AND %s
		ORDER BY "blockNumber" ASC, "logIndex" ASC
	`, predicate)

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("%w: query events: %v", model.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var (
			event       model.Event
			blockNumber int64
			logIndex    int64
		)
		if err := rows.Scan(
			&event.EventName,
			&blockNumber,
			&event.TxHash,
			&logIndex,
			&event.ParsedData,
			&event.ContractAddress,
			&event.AppName,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", model.ErrStorageUnavailable, err)
		}
		event.BlockNumber = uint64(blockNumber)
		event.LogIndex = uint64(logIndex)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read events: %v", model.ErrStorageUnavailable, err)
	}

	return events, nil
}

// LatestBlockNumber returns the highest block number in the log, 0 if empty.
func (s *Store) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var block *int64
	row := s.pool.QueryRow(ctx, `SELECT MAX("blockNumber") FROM event`)
	if err := row.Scan(&block); err != nil {
		return 0, fmt.Errorf("%w: latest block: %v", model.ErrStorageUnavailable, err)
	}
	if block == nil {
		return 0, nil
	}
	return uint64(*block), nil
}

// priceBucketLayout is the minute-bucket key format of the price table.
const priceBucketLayout = "2006-01-02 15:04"

// PriceAt returns the reference asset's market price for the minute bucket
// containing at. The second return value is false when no bucket exists.
func (s *Store) PriceAt(ctx context.Context, at time.Time) (decimal.Decimal, bool, error) {
	bucket := at.UTC().Truncate(time.Minute).Format(priceBucketLayout)

	var price decimal.Decimal
	row := s.pool.QueryRow(ctx, `SELECT price FROM price WHERE date = $1`, bucket)
	if err := row.Scan(&price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, fmt.Errorf("price at %s: %w", bucket, err)
	}
	return price, true, nil
}

var _ eventlog.Reader = (*Store)(nil)
