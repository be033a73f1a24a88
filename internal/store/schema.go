package store

import "fmt"

// Table and view names. One table and one aggregation view per strategy.
const (
	HexTable        = "locations_hex"
	SquareTable     = "locations_square"
	HexStatsView    = "hex_cell_stats"
	SquareStatsView = "square_cell_stats"
)

// Dialect captures the SQL differences between supported drivers.
type Dialect struct {
	// Name is the store type this dialect serves
	Name string

	// Driver is the database/sql driver name
	Driver string

	// IDColumn is the primary key definition
	IDColumn string

	// Timestamp is the column type for created_at/updated_at
	Timestamp string

	// CreateView is the view creation prefix
	CreateView string

	// Numbered placeholders ($1, $2) instead of ?
	Numbered bool
}

var (
	SQLiteDialect = Dialect{
		Name:       "sqlite",
		Driver:     "sqlite3",
		IDColumn:   "id INTEGER PRIMARY KEY",
		Timestamp:  "TIMESTAMP",
		CreateView: "CREATE VIEW IF NOT EXISTS",
	}

	PostgresDialect = Dialect{
		Name:       "postgres",
		Driver:     "postgres",
		IDColumn:   "id BIGSERIAL PRIMARY KEY",
		Timestamp:  "TIMESTAMPTZ",
		CreateView: "CREATE OR REPLACE VIEW",
		Numbered:   true,
	}

	DuckDBDialect = Dialect{
		Name:       "duckdb",
		Driver:     "duckdb",
		IDColumn:   "id BIGINT PRIMARY KEY",
		Timestamp:  "TIMESTAMP",
		CreateView: "CREATE OR REPLACE VIEW",
	}
)

// DialectFor returns the dialect for a store type name.
func DialectFor(name string) (Dialect, bool) {
	switch name {
	case SQLiteDialect.Name:
		return SQLiteDialect, true
	case PostgresDialect.Name:
		return PostgresDialect, true
	case DuckDBDialect.Name:
		return DuckDBDialect, true
	}
	return Dialect{}, false
}

// Placeholder returns the n-th (1-based) bind parameter.
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Placeholders returns count bind parameters starting at start, comma separated.
func (d Dialect) Placeholders(start, count int) string {
	buf := make([]byte, 0, count*4)
	for i := 0; i < count; i++ {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, d.Placeholder(start+i)...)
	}
	return string(buf)
}

// SchemaSQL returns the statements creating both tables, their indexes, and views.
func (d Dialect) SchemaSQL() []string {
	stmts := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    %s,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL CHECK (lat BETWEEN -90 AND 90),
    lng DOUBLE PRECISION NOT NULL CHECK (lng BETWEEN -180 AND 180),
    h3_index VARCHAR(16) NOT NULL,
    resolution INTEGER NOT NULL CHECK (resolution BETWEEN 0 AND 15),
    category VARCHAR(32) NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    created_at %s NOT NULL,
    updated_at %s NOT NULL
)`, HexTable, d.IDColumn, d.Timestamp, d.Timestamp),

		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    %s,
    name TEXT NOT NULL,
    lat DOUBLE PRECISION NOT NULL CHECK (lat BETWEEN -90 AND 90),
    lng DOUBLE PRECISION NOT NULL CHECK (lng BETWEEN -180 AND 180),
    grid_x BIGINT NOT NULL,
    grid_y BIGINT NOT NULL,
    cell_size DOUBLE PRECISION NOT NULL CHECK (cell_size > 0),
    category VARCHAR(32) NOT NULL,
    value DOUBLE PRECISION NOT NULL,
    created_at %s NOT NULL,
    updated_at %s NOT NULL
)`, SquareTable, d.IDColumn, d.Timestamp, d.Timestamp),
	}

	stmts = append(stmts, indexSQL(HexTable, "h3_index")...)
	stmts = append(stmts, indexSQL(SquareTable, "grid_x, grid_y")...)

	stmts = append(stmts,
		fmt.Sprintf(`
%s %s AS
SELECT
    h3_index,
    resolution,
    COUNT(*) AS point_count,
    COUNT(DISTINCT category) AS category_count,
    AVG(value) AS avg_value,
    SUM(value) AS total_value,
    MIN(value) AS min_value,
    MAX(value) AS max_value
FROM %s
GROUP BY h3_index, resolution`, d.CreateView, HexStatsView, HexTable),

		fmt.Sprintf(`
%s %s AS
SELECT
    grid_x,
    grid_y,
    cell_size,
    COUNT(*) AS point_count,
    COUNT(DISTINCT category) AS category_count,
    AVG(value) AS avg_value,
    SUM(value) AS total_value,
    MIN(value) AS min_value,
    MAX(value) AS max_value
FROM %s
GROUP BY grid_x, grid_y, cell_size`, d.CreateView, SquareStatsView, SquareTable),
	)

	return stmts
}

// indexSQL returns the secondary indexes shared by both tables. cellKey is the
// table's cell key column list.
func indexSQL(table, cellKey string) []string {
	return []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_cell ON %s(%s)`, table, table, cellKey),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_category ON %s(category)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_latlng ON %s(lat, lng)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_value ON %s(value)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at)`, table, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_cell_category ON %s(%s, category)`, table, table, cellKey),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_category_value ON %s(category, value)`, table, table),
	}
}
