package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityIncentives/internal/host"
	"liquidityIncentives/internal/incentive"
	"liquidityIncentives/internal/model"
	"liquidityIncentives/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

var (
	_ storage.PayoutQueue = (*Store)(nil)
	_ storage.StateStore  = (*StateStore)(nil)
)

// Store provides Postgres persistence for incentive state and payouts.
type Store struct {
	pool *pgxpool.Pool

	// rows last committed or loaded per state name; saves write only the delta
	mu    sync.Mutex
	saved map[string]storage.State
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, saved: make(map[string]storage.State)}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SaveState replaces the named state in one transaction. Only rows that differ
// from the last state this store committed or loaded under name are written;
// the first save of a name in a process rewrites everything.
func (s *Store) SaveState(ctx context.Context, name string, state storage.State) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	s.mu.Lock()
	prev, havePrev := s.saved[name]
	s.mu.Unlock()
	diff := diffState(prev, havePrev, state)

	batch := &pgx.Batch{}

	for _, p := range diff.pools {
		batch.Queue(`
			INSERT INTO incentive_pools (
				state_name, pool_address, initialized, tick_spacing, active_tick, last_update, global_growth, reward_rate
			) VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric)
			ON CONFLICT (state_name, pool_address)
			DO UPDATE SET
				initialized = EXCLUDED.initialized,
				tick_spacing = EXCLUDED.tick_spacing,
				active_tick = EXCLUDED.active_tick,
				last_update = EXCLUDED.last_update,
				global_growth = EXCLUDED.global_growth,
				reward_rate = EXCLUDED.reward_rate
		`,
			name,
			p.Pool.Hex(),
			p.Initialized,
			p.TickSpacing,
			p.ActiveTick,
			int64(p.LastUpdate),
			p.Global,
			p.RewardRate,
		)
	}
	for _, b := range diff.boundaries {
		batch.Queue(`
			INSERT INTO incentive_boundaries (state_name, pool_address, tick, outside, snapshot)
			VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric)
			ON CONFLICT (state_name, pool_address, tick)
			DO UPDATE SET outside = EXCLUDED.outside, snapshot = EXCLUDED.snapshot
		`, name, b.Pool.Hex(), b.Tick, b.Outside, b.Snapshot)
	}
	for _, c := range diff.checkpoints {
		batch.Queue(`
			INSERT INTO incentive_checkpoints (state_name, pool_address, position_key, checkpoint)
			VALUES ($1, $2, $3, $4::text::numeric)
			ON CONFLICT (state_name, pool_address, position_key)
			DO UPDATE SET checkpoint = EXCLUDED.checkpoint
		`, name, c.Pool.Hex(), c.Key.Hex(), c.Checkpoint)
	}

	// balances and host positions shrink
	if diff.full {
		batch.Queue(`DELETE FROM incentive_balances WHERE state_name = $1`, name)
		batch.Queue(`DELETE FROM host_positions WHERE state_name = $1`, name)
	}
	for _, b := range diff.removedBalances {
		batch.Queue(`DELETE FROM incentive_balances WHERE state_name = $1 AND beneficiary = $2`, name, b.Beneficiary.Hex())
	}
	for _, b := range diff.balances {
		batch.Queue(`
			INSERT INTO incentive_balances (state_name, beneficiary, amount)
			VALUES ($1, $2, $3::text::numeric)
			ON CONFLICT (state_name, beneficiary)
			DO UPDATE SET amount = EXCLUDED.amount
		`, name, b.Beneficiary.Hex(), b.Amount)
	}

	for _, p := range diff.hostPools {
		pending, err := json.Marshal(p.Pending)
		if err != nil {
			return fmt.Errorf("marshal pending positions: %w", err)
		}
		if p.Pending == nil {
			pending = []byte("[]")
		}
		batch.Queue(`
			INSERT INTO host_pools (state_name, pool_address, known, tick, liquidity, pending)
			VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::jsonb)
			ON CONFLICT (state_name, pool_address)
			DO UPDATE SET
				known = EXCLUDED.known,
				tick = EXCLUDED.tick,
				liquidity = EXCLUDED.liquidity,
				pending = EXCLUDED.pending
		`, name, p.Pool.Hex(), p.Known, p.Tick, p.Liquidity, string(pending))
	}
	for _, p := range diff.removedHostPositions {
		batch.Queue(`
			DELETE FROM host_positions WHERE state_name = $1 AND pool_address = $2 AND position_key = $3
		`, name, p.Pool.Hex(), p.Key.Hex())
	}
	for _, p := range diff.hostPositions {
		batch.Queue(`
			INSERT INTO host_positions (state_name, pool_address, position_key, liquidity)
			VALUES ($1, $2, $3, $4::text::numeric)
			ON CONFLICT (state_name, pool_address, position_key)
			DO UPDATE SET liquidity = EXCLUDED.liquidity
		`, name, p.Pool.Hex(), p.Key.Hex(), p.Liquidity)
	}

	batch.Queue(`
		INSERT INTO incentive_progress (state_name, last_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (state_name) DO UPDATE
		SET last_block = EXCLUDED.last_block, updated_at = now()
	`, name, int64(state.LastBlock))

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("save state statement %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.remember(name, state)
	return nil
}

func (s *Store) remember(name string, state storage.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[name] = state
}

// LoadState reads the named state. ok is false if it was never saved.
func (s *Store) LoadState(ctx context.Context, name string) (storage.State, bool, error) {
	if name == "" {
		return storage.State{}, false, fmt.Errorf("state name required")
	}

	var (
		state     storage.State
		lastBlock int64
		updatedAt time.Time
	)
	row := s.pool.QueryRow(ctx, `SELECT last_block, updated_at FROM incentive_progress WHERE state_name = $1`, name)
	if err := row.Scan(&lastBlock, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.State{}, false, nil
		}
		return storage.State{}, false, err
	}
	state.LastBlock = uint64(lastBlock)
	state.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)

	err := s.collect(ctx, `
		SELECT pool_address, initialized, tick_spacing, active_tick, last_update, global_growth::text, reward_rate::text
		FROM incentive_pools WHERE state_name = $1 ORDER BY pool_address
	`, name, func(rows pgx.Rows) error {
		var (
			p          incentive.PoolSnapshot
			addr       string
			lastUpdate int64
		)
		if err := rows.Scan(&addr, &p.Initialized, &p.TickSpacing, &p.ActiveTick, &lastUpdate, &p.Global, &p.RewardRate); err != nil {
			return err
		}
		p.Pool = common.HexToAddress(addr)
		p.LastUpdate = uint64(lastUpdate)
		state.Engine.Pools = append(state.Engine.Pools, p)
		return nil
	})
	if err != nil {
		return storage.State{}, false, fmt.Errorf("load pools: %w", err)
	}

	err = s.collect(ctx, `
		SELECT pool_address, tick, outside::text, snapshot::text
		FROM incentive_boundaries WHERE state_name = $1 ORDER BY pool_address, tick
	`, name, func(rows pgx.Rows) error {
		var (
			b    incentive.BoundarySnapshot
			addr string
		)
		if err := rows.Scan(&addr, &b.Tick, &b.Outside, &b.Snapshot); err != nil {
			return err
		}
		b.Pool = common.HexToAddress(addr)
		state.Engine.Boundaries = append(state.Engine.Boundaries, b)
		return nil
	})
	if err != nil {
		return storage.State{}, false, fmt.Errorf("load boundaries: %w", err)
	}

	err = s.collect(ctx, `
		SELECT pool_address, position_key, checkpoint::text
		FROM incentive_checkpoints WHERE state_name = $1 ORDER BY pool_address, position_key
	`, name, func(rows pgx.Rows) error {
		var (
			c         incentive.CheckpointSnapshot
			addr, key string
		)
		if err := rows.Scan(&addr, &key, &c.Checkpoint); err != nil {
			return err
		}
		c.Pool = common.HexToAddress(addr)
		c.Key = common.HexToHash(key)
		state.Engine.Positions = append(state.Engine.Positions, c)
		return nil
	})
	if err != nil {
		return storage.State{}, false, fmt.Errorf("load checkpoints: %w", err)
	}

	err = s.collect(ctx, `
		SELECT beneficiary, amount::text FROM incentive_balances WHERE state_name = $1 ORDER BY beneficiary
	`, name, func(rows pgx.Rows) error {
		var (
			b    incentive.BalanceSnapshot
			addr string
		)
		if err := rows.Scan(&addr, &b.Amount); err != nil {
			return err
		}
		b.Beneficiary = common.HexToAddress(addr)
		state.Engine.Balances = append(state.Engine.Balances, b)
		return nil
	})
	if err != nil {
		return storage.State{}, false, fmt.Errorf("load balances: %w", err)
	}

	err = s.collect(ctx, `
		SELECT pool_address, known, tick, liquidity::text, pending::text
		FROM host_pools WHERE state_name = $1 ORDER BY pool_address
	`, name, func(rows pgx.Rows) error {
		var (
			p             host.PoolSnapshot
			addr, pending string
		)
		if err := rows.Scan(&addr, &p.Known, &p.Tick, &p.Liquidity, &pending); err != nil {
			return err
		}
		p.Pool = common.HexToAddress(addr)
		if err := json.Unmarshal([]byte(pending), &p.Pending); err != nil {
			return fmt.Errorf("pending positions of %s: %w", addr, err)
		}
		if len(p.Pending) == 0 {
			p.Pending = nil
		}
		state.Host.Pools = append(state.Host.Pools, p)
		return nil
	})
	if err != nil {
		return storage.State{}, false, fmt.Errorf("load host pools: %w", err)
	}

	err = s.collect(ctx, `
		SELECT pool_address, position_key, liquidity::text
		FROM host_positions WHERE state_name = $1 ORDER BY pool_address, position_key
	`, name, func(rows pgx.Rows) error {
		var (
			p         host.PositionSnapshot
			addr, key string
		)
		if err := rows.Scan(&addr, &key, &p.Liquidity); err != nil {
			return err
		}
		p.Pool = common.HexToAddress(addr)
		p.Key = common.HexToHash(key)
		state.Host.Positions = append(state.Host.Positions, p)
		return nil
	})
	if err != nil {
		return storage.State{}, false, fmt.Errorf("load host positions: %w", err)
	}

	s.remember(name, state)
	return state, true, nil
}

func (s *Store) collect(ctx context.Context, query string, name string, fn func(pgx.Rows) error) error {
	rows, err := s.pool.Query(ctx, query, name)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// AppendPayout queues a payout instruction.
func (s *Store) AppendPayout(ctx context.Context, rec model.PayoutRecord) error {
	requestedAt := time.Now().UTC()
	if rec.RequestedAt != "" {
		parsed, err := time.Parse(time.RFC3339Nano, rec.RequestedAt)
		if err != nil {
			return fmt.Errorf("requested_at: %w", err)
		}
		requestedAt = parsed
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO incentive_payouts (token, reserve, beneficiary, amount, requested_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5)
	`, rec.Token, rec.Reserve, rec.Beneficiary, rec.Amount, requestedAt)
	return err
}

// PendingPayouts sums unsettled payouts of token from reserve.
func (s *Store) PendingPayouts(ctx context.Context, token, reserve string) (*uint256.Int, error) {
	var total string
	row := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM incentive_payouts
		WHERE NOT settled AND lower(token) = lower($1) AND lower(reserve) = lower($2)
	`, token, reserve)
	if err := row.Scan(&total); err != nil {
		return nil, err
	}
	return uint256.FromDecimal(total)
}

// StateStore adapts Store to storage.StateStore under one state name.
type StateStore struct {
	Store *Store
	Name  string
}

func (s *StateStore) Load(ctx context.Context) (storage.State, bool, error) {
	if s == nil || s.Store == nil {
		return storage.State{}, false, nil
	}
	return s.Store.LoadState(ctx, s.Name)
}

func (s *StateStore) Save(ctx context.Context, state storage.State) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, state)
}
