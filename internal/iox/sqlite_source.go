package iox

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/percodb/percodb/internal/registry"
)

// SqliteSource reads query definitions from a sqlite table with columns
// query_id, query_name and query. Options: "dsn" (database file), "table"
// (defaults to "queries").
type SqliteSource struct {
	db    *sql.DB
	table string
}

var sane_table_name = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func NewSqliteSource(opts Options) (QuerySource, error) {
	dsn, err := opts.Require("dsn")
	if err != nil {
		return nil, err
	}

	table := opts.Get("table")
	if table == "" {
		table = "queries"
	}
	// table names cannot be bound as parameters, so gate what we splice in
	if !sane_table_name.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite database %s", dsn)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to reach sqlite database %s", dsn)
	}

	return &SqliteSource{db: db, table: table}, nil
}

func (s *SqliteSource) ReadAll(ctx context.Context) ([]RawQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT query_id, query_name, query FROM %s", s.table))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read queries")
	}
	defer rows.Close()

	var queries []RawQuery
	for rows.Next() {
		var q RawQuery
		if err := rows.Scan(&q.Id, &q.Name, &q.Raw); err != nil {
			return nil, errors.Wrap(err, "failed to scan query row")
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func (s *SqliteSource) ReadOne(ctx context.Context, id, name string) (RawQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT query_id, query_name, query FROM %s WHERE query_id = ?", s.table), id)
	if err != nil {
		return RawQuery{}, errors.Wrap(err, "failed to read query")
	}
	defer rows.Close()

	var found []RawQuery
	for rows.Next() {
		var q RawQuery
		if err := rows.Scan(&q.Id, &q.Name, &q.Raw); err != nil {
			return RawQuery{}, errors.Wrap(err, "failed to scan query row")
		}
		found = append(found, q)
	}
	if err := rows.Err(); err != nil {
		return RawQuery{}, err
	}

	if len(found) != 1 {
		return RawQuery{}, errors.Wrapf(registry.ErrNotFound,
			"%d records share query id %s", len(found), id)
	}

	q := found[0]
	if name != "" {
		q.Name = name
	}
	return q, nil
}

func (s *SqliteSource) Close() error { return s.db.Close() }
