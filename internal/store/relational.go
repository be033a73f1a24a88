package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	gberr "github.com/arkilian/gridbench/internal/errors"
	"github.com/arkilian/gridbench/pkg/types"
)

// maxParams bounds the bind parameters per IN list; SQLite's historic limit is 999.
const maxParams = 500

// DatabaseConfig configures a relational database handle.
type DatabaseConfig struct {
	Dialect          Dialect
	DSN              string
	StatementTimeout time.Duration
	MaxOpenConns     int
	ResetTables      bool
}

// Database owns the connection pool shared by the per-strategy relational stores.
// It is opened once per run and closed by the run owner.
type Database struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
	closed  atomic.Bool
}

// OpenDatabase opens the pool, verifies connectivity, and creates the schema.
func OpenDatabase(ctx context.Context, cfg DatabaseConfig) (*Database, error) {
	if cfg.Dialect.Driver == "" {
		return nil, gberr.InvalidParameter("relational store needs a dialect")
	}
	if cfg.DSN == "" {
		return nil, gberr.InvalidParameter("relational store %s needs a dsn", cfg.Dialect.Name)
	}

	db, err := sql.Open(cfg.Dialect.Driver, cfg.DSN)
	if err != nil {
		return nil, gberr.StoreConnectivity(fmt.Sprintf("open %s database", cfg.Dialect.Name), err)
	}

	maxConns := cfg.MaxOpenConns
	if cfg.Dialect.Driver == SQLiteDialect.Driver {
		// Single writer
		maxConns = 1
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}

	d := &Database{
		db:      db,
		dialect: cfg.Dialect,
		timeout: cfg.StatementTimeout,
	}

	if err := d.withConn(ctx, "ping", func(ctx context.Context, conn *sql.Conn) error {
		return conn.PingContext(ctx)
	}); err != nil {
		db.Close()
		return nil, gberr.StoreConnectivity(fmt.Sprintf("connect to %s database", cfg.Dialect.Name), err)
	}

	if err := d.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.ResetTables {
		if err := d.Reset(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return d, nil
}

// initSchema creates tables, indexes, and views if they do not exist.
func (d *Database) initSchema(ctx context.Context) error {
	return d.withConn(ctx, "init schema", func(ctx context.Context, conn *sql.Conn) error {
		for _, stmt := range d.dialect.SchemaSQL() {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %q: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
}

// Reset deletes every row from both tables.
func (d *Database) Reset(ctx context.Context) error {
	return d.withConn(ctx, "reset tables", func(ctx context.Context, conn *sql.Conn) error {
		for _, table := range []string{HexTable, SquareTable} {
			if _, err := conn.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

// Dialect returns the database dialect.
func (d *Database) Dialect() Dialect { return d.dialect }

// Close closes the pool. Stores created from d fail with connectivity errors afterwards.
func (d *Database) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.db.Close()
}

// withConn acquires a dedicated connection for the duration of fn and always
// releases it. The statement timeout bounds acquisition and fn together.
func (d *Database) withConn(ctx context.Context, op string, fn func(ctx context.Context, conn *sql.Conn) error) error {
	if d.closed.Load() {
		return gberr.StoreConnectivity(op+" failed", sql.ErrConnDone)
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return classify(op, err)
	}
	defer conn.Close()

	return classify(op, fn(ctx, conn))
}

// Store returns the relational store for one strategy's table.
func (d *Database) Store(strategy types.Strategy) (*RelationalStore, error) {
	var l layout
	switch strategy {
	case types.StrategyHex:
		l = hexLayout
	case types.StrategySquare:
		l = squareLayout
	default:
		return nil, gberr.InvalidParameter("unknown strategy %q", strategy)
	}
	return &RelationalStore{db: d, layout: l, now: time.Now}, nil
}

// RelationalStore implements Store over one strategy table.
type RelationalStore struct {
	db     *Database
	layout layout
	now    func() time.Time
}

// CreateMany inserts records in one transaction with a prepared statement.
func (s *RelationalStore) CreateMany(ctx context.Context, records []types.LocationRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for _, rec := range records {
		if rec.Cell.Strategy != s.layout.strategy {
			return 0, gberr.InvalidParameter("record %d has %s cell, table %s holds %s cells",
				rec.ID, rec.Cell.Strategy, s.layout.table, s.layout.strategy)
		}
	}

	d := s.db.dialect
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.layout.table, strings.Join(s.layout.columns, ", "), d.Placeholders(1, len(s.layout.columns)))

	inserted := 0
	err := s.db.withConn(ctx, "create many", func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := s.now().UTC()
		for _, rec := range records {
			created := rec.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err := stmt.ExecContext(ctx, s.layout.values(rec, created.UTC(), now)...); err != nil {
				return fmt.Errorf("insert record %d: %w", rec.ID, err)
			}
			inserted++
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetByID returns one record by primary key.
func (s *RelationalStore) GetByID(ctx context.Context, id int64) (types.LocationRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s",
		strings.Join(s.layout.columns, ", "), s.layout.table, s.db.dialect.Placeholder(1))

	var rec types.LocationRecord
	err := s.db.withConn(ctx, "get by id", func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx, query, id)
		var err error
		rec, err = s.layout.scan(row)
		if errors.Is(err, sql.ErrNoRows) {
			return gberr.NotFound("record %d not found in %s", id, s.layout.table)
		}
		return err
	})
	return rec, err
}

// QueryByCell returns the records indexed under cell using the cell key index.
func (s *RelationalStore) QueryByCell(ctx context.Context, cell types.CellID) ([]types.LocationRecord, error) {
	if cell.Strategy != s.layout.strategy {
		return nil, gberr.InvalidParameter("%s table cannot be queried with %s cell", s.layout.strategy, cell.Strategy)
	}

	where, args := s.layout.cellPredicate(s.db.dialect, cell)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id",
		strings.Join(s.layout.columns, ", "), s.layout.table, where)

	var out []types.LocationRecord
	err := s.db.withConn(ctx, "query by cell", func(ctx context.Context, conn *sql.Conn) error {
		var err error
		out, err = s.queryRecords(ctx, conn, query, args)
		return err
	})
	return out, err
}

// QueryByCellRange fetches records for a cell set. Hex tables use IN lists on
// h3_index; square tables scan the (grid_x, grid_y) index over the set's
// bounding rectangle and keep only member cells.
func (s *RelationalStore) QueryByCellRange(ctx context.Context, r CellRange) ([]types.LocationRecord, error) {
	if len(r.Cells) == 0 {
		return []types.LocationRecord{}, nil
	}
	for _, c := range r.Cells {
		if c.Strategy != s.layout.strategy {
			return nil, gberr.InvalidParameter("%s table cannot be queried with %s cell", s.layout.strategy, c.Strategy)
		}
	}

	var out []types.LocationRecord
	err := s.db.withConn(ctx, "query by cell range", func(ctx context.Context, conn *sql.Conn) error {
		for _, q := range s.layout.rangeQueries(s.db.dialect, r) {
			recs, err := s.queryRecords(ctx, conn, q.sql, q.args)
			if err != nil {
				return err
			}
			out = append(out, recs...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	members := cellSet(r.Cells)
	filtered := out[:0]
	for _, rec := range out {
		if _, ok := members[rec.Cell]; !ok {
			continue
		}
		if r.Within != nil && !r.Within.Contains(rec.Point) {
			continue
		}
		filtered = append(filtered, rec)
	}
	sortRecords(filtered)
	return filtered, nil
}

// UpdateValue scales value and refreshes updated_at for each id.
func (s *RelationalStore) UpdateValue(ctx context.Context, ids []int64, factor float64) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	d := s.db.dialect

	affected := 0
	err := s.db.withConn(ctx, "update value", func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		now := s.now().UTC()
		for _, chunk := range chunkIDs(ids, maxParams) {
			query := fmt.Sprintf("UPDATE %s SET value = value * %s, updated_at = %s WHERE id IN (%s)",
				s.layout.table, d.Placeholder(1), d.Placeholder(2), d.Placeholders(3, len(chunk)))
			args := append([]interface{}{factor, now}, idArgs(chunk)...)

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			affected += int(n)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// DeleteMany removes the records with the given ids.
func (s *RelationalStore) DeleteMany(ctx context.Context, ids []int64) (int, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	d := s.db.dialect

	affected := 0
	err := s.db.withConn(ctx, "delete many", func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, chunk := range chunkIDs(ids, maxParams) {
			query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", s.layout.table, d.Placeholders(1, len(chunk)))
			res, err := tx.ExecContext(ctx, query, idArgs(chunk)...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			affected += int(n)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// AggregateByCell reads the strategy's aggregation view.
func (s *RelationalStore) AggregateByCell(ctx context.Context, opts AggregateOptions) ([]types.CellAggregate, error) {
	d := s.db.dialect
	query := fmt.Sprintf(`SELECT %s, point_count, category_count, total_value, avg_value, min_value, max_value
FROM %s
WHERE point_count >= %s
ORDER BY point_count DESC, %s`,
		strings.Join(s.layout.viewKey, ", "), s.layout.view, d.Placeholder(1), strings.Join(s.layout.viewOrder, ", "))
	args := []interface{}{opts.MinCount}
	if opts.Limit > 0 {
		query += " LIMIT " + d.Placeholder(2)
		args = append(args, opts.Limit)
	}

	var out []types.CellAggregate
	err := s.db.withConn(ctx, "aggregate by cell", func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			agg, err := s.layout.scanAggregate(rows)
			if err != nil {
				return err
			}
			out = append(out, agg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of rows in the table.
func (s *RelationalStore) Count(ctx context.Context) (int, error) {
	var n int64
	err := s.db.withConn(ctx, "count", func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.layout.table).Scan(&n)
	})
	return int(n), err
}

// Close is a no-op; the owning Database releases the pool.
func (s *RelationalStore) Close() error { return nil }

func (s *RelationalStore) queryRecords(ctx context.Context, conn *sql.Conn, query string, args []interface{}) ([]types.LocationRecord, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.LocationRecord{}
	for rows.Next() {
		rec, err := s.layout.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func chunkIDs(ids []int64, size int) [][]int64 {
	var chunks [][]int64
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func idArgs(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

func parseHexKey(key string) (uint64, error) {
	token, err := strconv.ParseUint(key, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid h3_index %q: %w", key, err)
	}
	return token, nil
}
