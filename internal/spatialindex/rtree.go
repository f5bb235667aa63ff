// Package spatialindex keeps feature bounds in an in-memory SQLite R*Tree
// for candidate lookup.
package spatialindex

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/paulmach/orb"
	_ "modernc.org/sqlite" // SQLite driver
)

// DefaultBatchSize is the number of rows inserted per transaction.
const DefaultBatchSize = 5000

// RTree is an Index backed by a SQLite rtree virtual table.
type RTree struct {
	db        *sql.DB
	batchSize int
	count     int
	mu        sync.Mutex
}

// Open creates an empty in-memory index.
func Open() (*RTree, error) {
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &RTree{db: db, batchSize: DefaultBatchSize}, nil
}

func createSchema(db *sql.DB) error {
	schema := `CREATE VIRTUAL TABLE IF NOT EXISTS feature_bounds USING rtree(
		id,
		min_x, max_x,
		min_y, max_y
	)`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Load replaces the index content with bounds, using the slice position as
// the feature id. Positions with a false usable flag are skipped; a nil
// usable slice indexes every bound.
func (r *RTree) Load(bounds []orb.Bound, usable []bool) error {
	if usable != nil && len(usable) != len(bounds) {
		return fmt.Errorf("usable mask has %d entries for %d bounds", len(usable), len(bounds))
	}


	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec("DELETE FROM feature_bounds"); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	r.count = 0

	for start := 0; start < len(bounds); start += r.batchSize {
		end := start + r.batchSize
		if end > len(bounds) {
			end = len(bounds)
		}
		var mask []bool
		if usable != nil {
			mask = usable[start:end]
		}
		n, err := r.insertBatch(bounds[start:end], mask, start)
		if err != nil {
			return err
		}
		r.count += n
	}
	return nil
}

func (r *RTree) insertBatch(bounds []orb.Bound, usable []bool, offset int) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO feature_bounds (id, min_x, max_x, min_y, max_y) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i, b := range bounds {
		if usable != nil && !usable[i] {
			continue
		}
		if _, err := stmt.Exec(offset+i, b.Min[0], b.Max[0], b.Min[1], b.Max[1]); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert bound %d: %w", offset+i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// Query returns the ids of all entries whose bounds overlap b, ascending.
// The R*Tree stores 32-bit floats rounded outward, so the result can hold
// a few extra candidates.
func (r *RTree) Query(b orb.Bound) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(
		"SELECT id FROM feature_bounds WHERE min_x <= ? AND max_x >= ? AND min_y <= ? AND max_y >= ? ORDER BY id",
		b.Max[0], b.Min[0], b.Max[1], b.Min[1],
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return ids, nil
}

// Len returns the number of indexed entries.
func (r *RTree) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close releases the database.
func (r *RTree) Close() error {
	return r.db.Close()
}
