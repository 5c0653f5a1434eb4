/*
 * Copyright 2025 Schmitech Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sqlintent executes intent templates against relational backends.
// SQLite, PostgreSQL and MySQL share one executor that differs only in the
// driver name and DSN shape.
package sqlintent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/schema"
	"github.com/schmitech/orbit-sub000/template"
)

// Dialect selects the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

func (d Dialect) driverName() string {
	switch d {
	case DialectSQLite:
		return "sqlite3"
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	}
	return string(d)
}

// SQLite handles are shared per DSN so every retriever in the process sees
// the same database file.
var (
	sqlitePoolMu sync.Mutex
	sqlitePool   = make(map[string]*sqlx.DB)
)

// Executor runs rendered SQL templates through sqlx. It detects dead
// connections by error text and reconnects once per query.
type Executor struct {
	dialect   Dialect
	dsn       string
	ds        config.DatasourceConfig
	processor *template.Processor
	log       *logrus.Logger

	mu     sync.Mutex
	db     *sqlx.DB
	shared bool
}

// NewExecutor builds an executor for one dialect. Connection parameters of
// the form ${NAME} are resolved from the environment.
func NewExecutor(dialect Dialect, ds config.DatasourceConfig, domain *schema.DomainConfig, log *logrus.Logger) (*Executor, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	dsn, err := buildDSN(dialect, ds)
	if err != nil {
		return nil, err
	}
	return &Executor{
		dialect:   dialect,
		dsn:       dsn,
		ds:        ds,
		processor: template.NewProcessor(domain),
		log:       log,
	}, nil
}

func buildDSN(dialect Dialect, ds config.DatasourceConfig) (string, error) {
	host := config.ResolveEnv(ds.Host)
	user := config.ResolveEnv(ds.Username)
	pass := config.ResolveEnv(ds.Password)
	database := config.ResolveEnv(ds.Database)

	switch dialect {
	case DialectSQLite:
		if database == "" {
			database = ":memory:"
		}
		return database, nil
	case DialectPostgres:
		port := ds.Port
		if port == 0 {
			port = 5432
		}
		sslmode := "disable"
		if ds.UseTLS {
			sslmode = "require"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, pass, database, sslmode), nil
	case DialectMySQL:
		port := ds.Port
		if port == 0 {
			port = 3306
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", user, pass, host, port, database), nil
	}
	return "", fmt.Errorf("[sqlintent.NewExecutor] unsupported dialect %q: %w", dialect, retriever.ErrConfigInvalid)
}

// Connect opens the database handle and verifies it with a ping.
func (e *Executor) Connect(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db != nil {
		return nil
	}
	db, shared, err := e.open()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, e.ds.EffectiveTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if !shared {
			_ = db.Close()
		}
		return fmt.Errorf("[Connect] %s ping failed: %v: %w", e.dialect, err, retriever.ErrBackendUnavailable)
	}
	e.db = db
	e.shared = shared
	e.log.WithFields(logrus.Fields{
		"dialect": e.dialect,
		"params": config.MaskSecrets(map[string]any{
			"host":     e.ds.Host,
			"port":     e.ds.Port,
			"username": e.ds.Username,
			"password": e.ds.Password,
			"database": e.ds.Database,
		}),
	}).Debug("sql backend connected")
	return nil
}

func (e *Executor) open() (*sqlx.DB, bool, error) {
	if e.dialect == DialectSQLite {
		sqlitePoolMu.Lock()
		defer sqlitePoolMu.Unlock()
		if db, ok := sqlitePool[e.dsn]; ok {
			return db, true, nil
		}
		db, err := sqlx.Open(e.dialect.driverName(), e.dsn)
		if err != nil {
			return nil, false, fmt.Errorf("[Connect] open sqlite: %w", err)
		}
		sqlitePool[e.dsn] = db
		return db, true, nil
	}
	db, err := sqlx.Open(e.dialect.driverName(), e.dsn)
	if err != nil {
		return nil, false, fmt.Errorf("[Connect] open %s: %w", e.dialect, err)
	}
	return db, false, nil
}

// Execute renders the template's SQL and runs it. A dead-connection error
// triggers exactly one reconnect and retry.
func (e *Executor) Execute(ctx context.Context, t *schema.Template, params map[string]any) ([]map[string]any, error) {
	e.mu.Lock()
	db := e.db
	e.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("[Execute] not connected: %w", retriever.ErrBackendUnavailable)
	}

	rendered, bound, err := e.processor.RenderSQL(t, params)
	if err != nil {
		return nil, fmt.Errorf("[Execute] render template %s: %w", t.ID, err)
	}
	query, args, err := bindQuery(db, rendered, bound)
	if err != nil {
		return nil, fmt.Errorf("[Execute] bind template %s: %w", t.ID, err)
	}

	rows, err := e.query(ctx, db, query, args)
	if err != nil && isDeadConnection(err) {
		e.log.WithError(err).Warn("sql connection lost, reconnecting")
		db, rerr := e.reconnect(ctx)
		if rerr != nil {
			return nil, fmt.Errorf("[Execute] reconnect failed: %w", rerr)
		}
		rows, err = e.query(ctx, db, query, args)
	}
	if err != nil {
		return nil, fmt.Errorf("[Execute] template %s: %w", t.ID, err)
	}
	return rows, nil
}

func (e *Executor) query(ctx context.Context, db *sqlx.DB, query string, args []any) ([]map[string]any, error) {
	rows, err := db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, normalizeRow(row))
	}
	return out, rows.Err()
}

// reconnect drops the current handle and opens a fresh one.
func (e *Executor) reconnect(ctx context.Context) (*sqlx.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db != nil {
		if e.shared {
			sqlitePoolMu.Lock()
			delete(sqlitePool, e.dsn)
			sqlitePoolMu.Unlock()
		}
		_ = e.db.Close()
		e.db = nil
	}
	db, shared, err := e.open()
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, e.ds.EffectiveTimeout())
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if !shared {
			_ = db.Close()
		}
		return nil, fmt.Errorf("%v: %w", err, retriever.ErrBackendUnavailable)
	}
	e.db = db
	e.shared = shared
	return db, nil
}

// Close releases the handle. Shared SQLite handles stay open for the other
// retrievers using them.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil || e.shared {
		e.db = nil
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

var (
	pyformatRe = regexp.MustCompile(`%\(([A-Za-z_][A-Za-z0-9_]*)\)s`)
	namedRe    = regexp.MustCompile(`:[A-Za-z_][A-Za-z0-9_]*`)
)

// bindQuery rewrites %(name)s placeholders to named form, then binds through
// sqlx for the driver's placeholder style. Bare positional markers bind
// pagination keys first and the remaining parameters in name order.
func bindQuery(db *sqlx.DB, sql string, params map[string]any) (string, []any, error) {
	sql = pyformatRe.ReplaceAllString(sql, ":$1")

	if namedRe.MatchString(sql) {
		query, args, err := sqlx.Named(sql, params)
		if err != nil {
			return "", nil, err
		}
		return db.Rebind(query), args, nil
	}

	markers := strings.Count(sql, "?")
	if markers == 0 {
		return sql, nil, nil
	}
	args := positionalArgs(params, markers)
	if len(args) != markers {
		return "", nil, fmt.Errorf("have %d parameters for %d positional markers", len(args), markers)
	}
	return db.Rebind(sql), args, nil
}

func positionalArgs(params map[string]any, markers int) []any {
	var args []any
	used := map[string]bool{}
	for _, key := range []string{"limit", "offset"} {
		if v, ok := params[key]; ok {
			args = append(args, v)
			used[key] = true
		}
	}
	rest := make([]string, 0, len(params))
	for name := range params {
		if !used[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		args = append(args, params[name])
	}
	if len(args) > markers {
		args = args[:markers]
	}
	return args
}

// Dead connections surface as driver errors mentioning the connection being
// closed, lost or broken.
var deadConnTerms = []string{"closed", "lost", "broken"}

func isDeadConnection(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	if !strings.Contains(text, "connection") {
		return false
	}
	for _, term := range deadConnTerms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
