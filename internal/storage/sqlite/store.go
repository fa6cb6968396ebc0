// Package sqlite provides a SQLite-backed storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/open-onethingcloud/tc-contracts/internal/models"
	"github.com/open-onethingcloud/tc-contracts/internal/storage"
	"github.com/open-onethingcloud/tc-contracts/internal/storage/sqlite/migrations"
)

// Store persists lottery state in SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open opens the SQLite database at path and applies the embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps every transaction serialised.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) PutRole(ctx context.Context, addr common.Address, role models.Role) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_roles (address, role) VALUES (?, ?) ON CONFLICT (address, role) DO NOTHING`,
		addr.Hex(), string(role))
	if err != nil {
		return fmt.Errorf("put role: %w", err)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, addr common.Address, role models.Role) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_roles WHERE address = ? AND role = ?`, addr.Hex(), string(role))
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

func (s *Store) CreateLottery(ctx context.Context, lottery models.Lottery) error {
	return s.inTx(ctx, "create lottery", func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM lotteries`).Scan(&next); err != nil {
			return err
		}
		if uint64(next) != lottery.ID {
			return fmt.Errorf("id %d out of sequence, next is %d", lottery.ID, next)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO lotteries (id, name, status, slot_space, created_at) VALUES (?, ?, ?, ?, ?)`,
			int64(lottery.ID), lottery.Name, string(lottery.Status), int64(lottery.SlotSpace), toMillis(lottery.CreatedAt))
		return err
	})
}

func (s *Store) AppendPrizes(ctx context.Context, lotteryID uint64, first int, prizes []models.Prize) error {
	return s.inTx(ctx, "append prizes", func(tx *sql.Tx) error {
		if err := lotteryExists(ctx, tx, lotteryID); err != nil {
			return err
		}
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM prizes WHERE lottery_id = ?`, int64(lotteryID)).Scan(&count); err != nil {
			return err
		}
		if count != first {
			return fmt.Errorf("index %d out of sequence, next is %d", first, count)
		}
		for i, p := range prizes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO prizes (lottery_id, prize_index, name, amount, remaining, prob_denominator)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				int64(lotteryID), first+i, p.Name, int64(p.Amount), int64(p.Remaining), int64(p.ProbDenominator))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ActivateLottery(ctx context.Context, lotteryID uint64, prizes []models.Prize) error {
	return s.inTx(ctx, "activate lottery", func(tx *sql.Tx) error {
		if err := lotteryExists(ctx, tx, lotteryID); err != nil {
			return err
		}
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM prizes WHERE lottery_id = ?`, int64(lotteryID)).Scan(&count); err != nil {
			return err
		}
		if count != len(prizes) {
			return fmt.Errorf("%d prizes given, %d stored", len(prizes), count)
		}
		for i, p := range prizes {
			res, err := tx.ExecContext(ctx,
				`UPDATE prizes SET slice_size = ?, slot_start = ?, slot_end = ?
				 WHERE lottery_id = ? AND prize_index = ?`,
				int64(p.SliceSize), int64(p.SlotRange.Start), int64(p.SlotRange.End), int64(lotteryID), i)
			if err != nil {
				return err
			}
			if err := expectOneRow(res, fmt.Sprintf("prize %d", i)); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE lotteries SET status = ? WHERE id = ?`, string(models.StatusActive), int64(lotteryID))
		return err
	})
}

func (s *Store) CloseLottery(ctx context.Context, lotteryID uint64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE lotteries SET status = ? WHERE id = ?`, string(models.StatusClosed), int64(lotteryID))
	if err != nil {
		return fmt.Errorf("close lottery: %w", err)
	}
	if err := expectOneRow(res, fmt.Sprintf("lottery %d", lotteryID)); err != nil {
		return fmt.Errorf("close lottery: %w", err)
	}
	return nil
}

func (s *Store) RecordDraw(ctx context.Context, rec models.DrawRecord, remaining uint64) error {
	return s.inTx(ctx, "record draw", func(tx *sql.Tx) error {
		if err := lotteryExists(ctx, tx, rec.LotteryID); err != nil {
			return err
		}
		if rec.Won() {
			res, err := tx.ExecContext(ctx,
				`UPDATE prizes SET remaining = ? WHERE lottery_id = ? AND prize_index = ?`,
				int64(remaining), int64(rec.LotteryID), rec.PrizeIndex)
			if err != nil {
				return err
			}
			if err := expectOneRow(res, fmt.Sprintf("prize %d", rec.PrizeIndex)); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO draws (lottery_id, sequence, id, drawer, commit_hash, random_value, prize_index, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(rec.LotteryID), int64(rec.Sequence), rec.ID, rec.Drawer.Hex(), rec.CommitHash.Hex(),
			int64(rec.RandomValue), rec.PrizeIndex, toMillis(rec.CreatedAt))
		return err
	})
}

func (s *Store) Draws(ctx context.Context, lotteryID uint64) ([]models.DrawRecord, error) {
	if err := lotteryExists(ctx, s.db, lotteryID); err != nil {
		return nil, fmt.Errorf("list draws: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT sequence, id, drawer, commit_hash, random_value, prize_index, created_at
		 FROM draws WHERE lottery_id = ? ORDER BY sequence`, int64(lotteryID))
	if err != nil {
		return nil, fmt.Errorf("list draws: %w", err)
	}
	defer rows.Close()

	var draws []models.DrawRecord
	for rows.Next() {
		var (
			seq, random, created int64
			drawer, hash         string
			rec                  models.DrawRecord
		)
		if err := rows.Scan(&seq, &rec.ID, &drawer, &hash, &random, &rec.PrizeIndex, &created); err != nil {
			return nil, fmt.Errorf("scan draw: %w", err)
		}
		rec.LotteryID = lotteryID
		rec.Sequence = uint64(seq)
		rec.Drawer = common.HexToAddress(drawer)
		rec.CommitHash = common.HexToHash(hash)
		rec.RandomValue = uint64(random)
		rec.CreatedAt = fromMillis(created)
		draws = append(draws, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list draws: %w", err)
	}
	return draws, nil
}

func (s *Store) Load(ctx context.Context) (*storage.State, error) {
	state := &storage.State{
		Roles:      make(map[common.Address][]models.Role),
		DrawCounts: make(map[uint64]uint64),
	}

	roleRows, err := s.db.QueryContext(ctx, `SELECT address, role FROM admin_roles ORDER BY address, role`)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	defer roleRows.Close()
	for roleRows.Next() {
		var addr, role string
		if err := roleRows.Scan(&addr, &role); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		a := common.HexToAddress(addr)
		state.Roles[a] = append(state.Roles[a], models.Role(role))
	}
	if err := roleRows.Err(); err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}

	lotRows, err := s.db.QueryContext(ctx, `SELECT id, name, status, slot_space, created_at FROM lotteries ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load lotteries: %w", err)
	}
	defer lotRows.Close()
	for lotRows.Next() {
		var (
			id, space, created int64
			l                  models.Lottery
			status             string
		)
		if err := lotRows.Scan(&id, &l.Name, &status, &space, &created); err != nil {
			return nil, fmt.Errorf("scan lottery: %w", err)
		}
		l.ID = uint64(id)
		l.Status = models.Status(status)
		l.SlotSpace = uint64(space)
		l.CreatedAt = fromMillis(created)
		state.Lotteries = append(state.Lotteries, l)
	}
	if err := lotRows.Err(); err != nil {
		return nil, fmt.Errorf("load lotteries: %w", err)
	}

	prizeRows, err := s.db.QueryContext(ctx,
		`SELECT lottery_id, name, amount, remaining, prob_denominator, slice_size, slot_start, slot_end
		 FROM prizes ORDER BY lottery_id, prize_index`)
	if err != nil {
		return nil, fmt.Errorf("load prizes: %w", err)
	}
	defer prizeRows.Close()
	for prizeRows.Next() {
		var lotteryID, amount, remaining, denom, slice, start, end int64
		var name string
		if err := prizeRows.Scan(&lotteryID, &name, &amount, &remaining, &denom, &slice, &start, &end); err != nil {
			return nil, fmt.Errorf("scan prize: %w", err)
		}
		if lotteryID < 0 || lotteryID >= int64(len(state.Lotteries)) {
			return nil, fmt.Errorf("prize references lottery %d: %w", lotteryID, storage.ErrNotFound)
		}
		l := &state.Lotteries[lotteryID]
		l.Prizes = append(l.Prizes, models.Prize{
			Name:            name,
			Amount:          uint64(amount),
			Remaining:       uint64(remaining),
			ProbDenominator: uint64(denom),
			SliceSize:       uint64(slice),
			SlotRange:       models.SlotRange{Start: uint64(start), End: uint64(end)},
		})
	}
	if err := prizeRows.Err(); err != nil {
		return nil, fmt.Errorf("load prizes: %w", err)
	}

	countRows, err := s.db.QueryContext(ctx, `SELECT lottery_id, COUNT(1) FROM draws GROUP BY lottery_id`)
	if err != nil {
		return nil, fmt.Errorf("count draws: %w", err)
	}
	defer countRows.Close()
	for countRows.Next() {
		var id, n int64
		if err := countRows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan draw count: %w", err)
		}
		state.DrawCounts[uint64(id)] = uint64(n)
	}
	if err := countRows.Err(); err != nil {
		return nil, fmt.Errorf("count draws: %w", err)
	}

	return state, nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lotteryExists(ctx context.Context, q queryer, id uint64) error {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM lotteries WHERE id = ?`, int64(id)).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("lottery %d: %w", id, storage.ErrNotFound)
	}
	return nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}
