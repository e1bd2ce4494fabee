// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package conddb holds types to describe the conditions database of the
// oscilloscope test bench: per-model vertical calibrations and run numbers.
package conddb // import "github.com/go-lpc/scope/conddb"

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/go-lpc/scope/tek"
	_ "github.com/go-sql-driver/mysql"
)

var (
	host = envOr("SCOPE_DB_HOST", "localhost")
	usr  = envOr("SCOPE_DB_USER", "username")
	pwd  = envOr("SCOPE_DB_PASS", "s3cr3t")

	drvName = "mysql"
)

const timeout = 5 * time.Second

// DB exposes convenience methods to easily retrieve conditions data
// from the database.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("conddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func envOr(k, v string) string {
	if s := os.Getenv(k); s != "" {
		return s
	}
	return v
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("conddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// Calibration returns the latest vertical calibration for the given
// instrument model.
func (db *DB) Calibration(ctx context.Context, model string) (tek.Calib, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		cal tek.Calib
		n   = 0
	)
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT offset, scale FROM calibrations WHERE model=? ORDER BY datetime DESC LIMIT 1",
		model,
	)
	if err != nil {
		return cal, fmt.Errorf("conddb: could not query calibration of %q: %w", model, err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&cal.Offset, &cal.Scale)
		if err != nil {
			return cal, fmt.Errorf("conddb: could not get calibration of %q: %w", model, err)
		}
		n++
	}

	if err := rows.Err(); err != nil {
		return cal, fmt.Errorf("conddb: could not scan db for calibration of %q: %w", model, err)
	}

	if err := ctx.Err(); err != nil {
		return cal, fmt.Errorf("conddb: context error while retrieving calibration of %q: %w", model, err)
	}

	if n == 0 {
		return cal, fmt.Errorf("conddb: no calibration for %q", model)
	}

	if cal.Scale == 0 {
		return cal, fmt.Errorf("conddb: invalid calibration for %q (scale=0)", model)
	}

	return cal, nil
}

// LastRunNumber returns the number of the latest recorded run.
func (db *DB) LastRunNumber(ctx context.Context) (int32, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var run int32
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT run FROM runs ORDER BY datetime DESC LIMIT 1",
	)
	if err != nil {
		return run, fmt.Errorf("conddb: could not query run number: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		err = rows.Scan(&run)
		if err != nil {
			return run, fmt.Errorf("conddb: could not get run number value: %w", err)
		}
	}

	if err := rows.Err(); err != nil {
		return run, fmt.Errorf("conddb: could not scan db for run number: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return run, fmt.Errorf("conddb: context error while retrieving run number: %w", err)
	}

	return run, nil
}
