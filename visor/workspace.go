// Copyright 2026 The Visor Authors
// SPDX-License-Identifier: Apache-2.0

package visor

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jcodagnone/visor/clientes"
	"github.com/jcodagnone/visor/spatial"
	"github.com/jcodagnone/visor/utils/textutils"
)

// IndexResolution is the H3 resolution stored with every located customer
// (cells of about 5 km²).
const IndexResolution = 7

// ErrUnknownCustomer is returned when marking a name that isn't loaded.
var ErrUnknownCustomer = errors.New("unknown customer")

// Customer is a row of the workspace.
type Customer struct {
	Position int      `json:"position"`
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Locality string   `json:"locality"`
	Province string   `json:"province"`
	Group    string   `json:"group,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Cell     string   `json:"cell,omitempty"`
	Marked   bool     `json:"marked"`
}

// CellCount is the number of located customers within an H3 cell.
type CellCount struct {
	Cell   string        `json:"cell"`
	Count  int           `json:"count"`
	Center spatial.Point `json:"center"`
}

// Workspace is the queryable copy of the customer list plus the deletion
// marks, which survive reloads.
type Workspace interface {
	// CreateSchema creates the customers and deletion_marks tables
	CreateSchema() error

	// Replace swaps the customer snapshot for records
	Replace(records []*clientes.Record) error

	// Search returns the customers passing the filter, in document order
	Search(filter clientes.Filter) ([]*Customer, error)

	// Provinces returns the distinct provinces, sorted
	Provinces() ([]string, error)

	// Mark flags a customer for deletion
	Mark(name string) error

	// Unmark removes a deletion mark
	Unmark(name string) error

	// Marked returns the names flagged for deletion, sorted
	Marked() ([]string, error)

	// CellCounts aggregates located customers into H3 cells of resolution res
	CellCounts(res int) ([]*CellCount, error)
}

type sqlWorkspace struct {
	db *sql.DB
}

// NewWorkspace creates a workspace backed by db.
func NewWorkspace(db *sql.DB) Workspace {
	return &sqlWorkspace{db: db}
}

func (w *sqlWorkspace) CreateSchema() error {
	_, err := w.db.Exec(`
		CREATE TABLE IF NOT EXISTS customers (
			pos INTEGER PRIMARY KEY,
			name VARCHAR NOT NULL,
			address VARCHAR NOT NULL,
			locality VARCHAR NOT NULL,
			province VARCHAR NOT NULL,
			grp VARCHAR NOT NULL,
			lat DOUBLE,
			lon DOUBLE,
			province_key VARCHAR NOT NULL,
			group_key VARCHAR NOT NULL,
			search_key VARCHAR NOT NULL,
			h3_res7 BIGINT
		);

		CREATE TABLE IF NOT EXISTS deletion_marks (
			name VARCHAR PRIMARY KEY,
			marked_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating workspace schema: %w", err)
	}

	return nil
}

func (w *sqlWorkspace) Replace(records []*clientes.Record) (err error) {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.Exec(`DELETE FROM customers`); err != nil {
		return fmt.Errorf("clearing customers: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO customers(
			pos,
			name,
			address,
			locality,
			province,
			grp,
			lat,
			lon,
			province_key,
			group_key,
			search_key,
			h3_res7
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		var cell *int64

		if loc, ok := r.Location(); ok && loc.Valid() == nil {
			c, cErr := loc.Cell(IndexResolution)
			if cErr != nil {
				return fmt.Errorf("indexing %q: %w", r.Name, cErr)
			}

			v := int64(c)
			cell = &v
		}

		_, err = stmt.Exec(
			i,
			r.Name,
			r.Address,
			r.Locality,
			r.Province,
			r.Group,
			r.Lat,
			r.Lon,
			textutils.LowerASCIIFolding(r.Province),
			textutils.LowerASCIIFolding(r.Group),
			clientes.SearchKey(r),
			cell,
		)
		if err != nil {
			return fmt.Errorf("inserting %q: %w", r.Name, err)
		}
	}

	return tx.Commit()
}

func (w *sqlWorkspace) Search(filter clientes.Filter) ([]*Customer, error) {
	var (
		where []string
		args  []any
	)

	if p := textutils.LowerASCIIFolding(filter.Province); p != "" {
		where = append(where, "c.province_key = ?")
		args = append(args, p)
	}

	if g := textutils.LowerASCIIFolding(filter.Group); g != "" {
		where = append(where, "c.group_key = ?")
		args = append(args, g)
	}

	for _, term := range strings.Fields(textutils.LowerASCIIFolding(filter.Query)) {
		where = append(where, "contains(c.search_key, ?)")
		args = append(args, term)
	}

	query := `
		SELECT c.pos, c.name, c.address, c.locality, c.province, c.grp,
			c.lat, c.lon, c.h3_res7, m.name IS NOT NULL
		FROM customers c
		LEFT JOIN deletion_marks m ON m.name = c.name`

	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}

	query += "\n\t\tORDER BY c.pos"

	rows, err := w.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching customers: %w", err)
	}
	defer rows.Close()

	var out []*Customer

	for rows.Next() {
		var (
			c        Customer
			lat, lon sql.NullFloat64
			cell     sql.NullInt64
		)

		if err := rows.Scan(&c.Position, &c.Name, &c.Address, &c.Locality, &c.Province, &c.Group,
			&lat, &lon, &cell, &c.Marked); err != nil {
			return nil, err
		}

		if lat.Valid {
			c.Lat = &lat.Float64
		}

		if lon.Valid {
			c.Lon = &lon.Float64
		}

		if cell.Valid {
			c.Cell = cellString(cell.Int64)
		}

		out = append(out, &c)
	}

	return out, rows.Err()
}

func (w *sqlWorkspace) Provinces() ([]string, error) {
	rows, err := w.db.Query(`
		SELECT min(province)
		FROM customers
		WHERE province_key != ''
		GROUP BY province_key
		ORDER BY province_key
	`)
	if err != nil {
		return nil, fmt.Errorf("listing provinces: %w", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}

		out = append(out, strings.TrimSpace(p))
	}

	return out, rows.Err()
}

func (w *sqlWorkspace) Mark(name string) error {
	var n int
	if err := w.db.QueryRow(`SELECT count(*) FROM customers WHERE name = ?`, name).Scan(&n); err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCustomer, name)
	}

	_, err := w.db.Exec(`INSERT INTO deletion_marks(name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return fmt.Errorf("marking %q: %w", name, err)
	}

	return nil
}

func (w *sqlWorkspace) Unmark(name string) error {
	if _, err := w.db.Exec(`DELETE FROM deletion_marks WHERE name = ?`, name); err != nil {
		return fmt.Errorf("unmarking %q: %w", name, err)
	}

	return nil
}

func (w *sqlWorkspace) Marked() ([]string, error) {
	rows, err := w.db.Query(`SELECT name FROM deletion_marks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing marks: %w", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}

		out = append(out, name)
	}

	return out, rows.Err()
}

func (w *sqlWorkspace) CellCounts(res int) ([]*CellCount, error) {
	if res == IndexResolution {
		return w.indexedCellCounts()
	}

	rows, err := w.db.Query(`SELECT lat, lon FROM customers WHERE h3_res7 IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("listing located customers: %w", err)
	}
	defer rows.Close()

	type acc struct {
		n        int
		lat, lon float64
	}

	cells := make(map[string]*acc)

	for rows.Next() {
		var p spatial.Point
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return nil, err
		}

		c, err := p.Cell(res)
		if err != nil {
			return nil, err
		}

		a, ok := cells[c.String()]
		if !ok {
			a = &acc{}
			cells[c.String()] = a
		}

		a.n++
		a.lat += p.Lat
		a.lon += p.Lng
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*CellCount, 0, len(cells))
	for cell, a := range cells {
		out = append(out, &CellCount{
			Cell:   cell,
			Count:  a.n,
			Center: spatial.Point{Lat: a.lat / float64(a.n), Lng: a.lon / float64(a.n)},
		})
	}

	sortCellCounts(out)

	return out, nil
}

func (w *sqlWorkspace) indexedCellCounts() ([]*CellCount, error) {
	rows, err := w.db.Query(`
		SELECT h3_res7, count(*), avg(lat), avg(lon)
		FROM customers
		WHERE h3_res7 IS NOT NULL
		GROUP BY h3_res7
	`)
	if err != nil {
		return nil, fmt.Errorf("counting cells: %w", err)
	}
	defer rows.Close()

	var out []*CellCount

	for rows.Next() {
		var (
			cell int64
			cc   CellCount
		)

		if err := rows.Scan(&cell, &cc.Count, &cc.Center.Lat, &cc.Center.Lng); err != nil {
			return nil, err
		}

		cc.Cell = cellString(cell)
		out = append(out, &cc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortCellCounts(out)

	return out, nil
}

// sortCellCounts orders by count, busiest first, then by cell.
func sortCellCounts(cc []*CellCount) {
	sort.Slice(cc, func(i, j int) bool {
		if cc[i].Count != cc[j].Count {
			return cc[i].Count > cc[j].Count
		}

		return cc[i].Cell < cc[j].Cell
	})
}

func cellString(v int64) string {
	return fmt.Sprintf("%x", uint64(v))
}
