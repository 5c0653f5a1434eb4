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

package sqlintent

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitech/orbit-sub000/config"
	"github.com/schmitech/orbit-sub000/retriever"
	"github.com/schmitech/orbit-sub000/schema"
	"github.com/schmitech/orbit-sub000/template"
)

func sqlDomain() *schema.DomainConfig {
	return &schema.DomainConfig{
		DomainName: "customer_orders",
		Entities: map[string]schema.Entity{
			"customer": {Name: "customer", EntityType: "primary", TableName: "customers", PrimaryKey: "id"},
		},
	}
}

// mockExecutor wires a sqlmock handle directly, bypassing Connect.
func mockExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Executor{
		dialect:   DialectSQLite,
		dsn:       ":memory:",
		ds:        config.DatasourceConfig{},
		processor: template.NewProcessor(sqlDomain()),
		log:       logrus.New(),
		db:        sqlx.NewDb(db, "sqlmock"),
	}, mock
}

func TestBuildDSN(t *testing.T) {
	t.Run("sqlite defaults to memory", func(t *testing.T) {
		dsn, err := buildDSN(DialectSQLite, config.DatasourceConfig{})
		require.NoError(t, err)
		assert.Equal(t, ":memory:", dsn)
	})

	t.Run("sqlite uses database path", func(t *testing.T) {
		dsn, err := buildDSN(DialectSQLite, config.DatasourceConfig{Database: "/data/app.db"})
		require.NoError(t, err)
		assert.Equal(t, "/data/app.db", dsn)
	})

	t.Run("postgres", func(t *testing.T) {
		dsn, err := buildDSN(DialectPostgres, config.DatasourceConfig{
			Host: "db.internal", Username: "svc", Password: "hunter2", Database: "orders",
		})
		require.NoError(t, err)
		assert.Equal(t, "host=db.internal port=5432 user=svc password=hunter2 dbname=orders sslmode=disable", dsn)
	})

	t.Run("postgres with tls", func(t *testing.T) {
		dsn, err := buildDSN(DialectPostgres, config.DatasourceConfig{
			Host: "db.internal", Port: 5433, Database: "orders", UseTLS: true,
		})
		require.NoError(t, err)
		assert.Contains(t, dsn, "port=5433")
		assert.Contains(t, dsn, "sslmode=require")
	})

	t.Run("mysql", func(t *testing.T) {
		dsn, err := buildDSN(DialectMySQL, config.DatasourceConfig{
			Host: "db.internal", Username: "svc", Password: "hunter2", Database: "orders",
		})
		require.NoError(t, err)
		assert.Equal(t, "svc:hunter2@tcp(db.internal:3306)/orders?parseTime=true", dsn)
	})

	t.Run("env resolution", func(t *testing.T) {
		t.Setenv("ORDERS_DB_PASSWORD", "s3cret")
		dsn, err := buildDSN(DialectMySQL, config.DatasourceConfig{
			Host: "db.internal", Username: "svc", Password: "${ORDERS_DB_PASSWORD}", Database: "orders",
		})
		require.NoError(t, err)
		assert.Contains(t, dsn, "svc:s3cret@tcp")
	})

	t.Run("unsupported dialect", func(t *testing.T) {
		_, err := buildDSN(Dialect("oracle"), config.DatasourceConfig{})
		assert.ErrorIs(t, err, retriever.ErrConfigInvalid)
	})
}

func TestBindQuery(t *testing.T) {
	db := sqlx.NewDb(nil, "sqlite3")

	t.Run("pyformat placeholders", func(t *testing.T) {
		query, args, err := bindQuery(db,
			"SELECT * FROM orders WHERE customer_id = %(customer_id)s AND status = %(status)s",
			map[string]any{"customer_id": int64(42), "status": "shipped"})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM orders WHERE customer_id = ? AND status = ?", query)
		assert.Equal(t, []any{int64(42), "shipped"}, args)
	})

	t.Run("pyformat rebinds for postgres", func(t *testing.T) {
		pg := sqlx.NewDb(nil, "pgx")
		query, args, err := bindQuery(pg,
			"SELECT * FROM orders WHERE customer_id = %(customer_id)s",
			map[string]any{"customer_id": int64(42)})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM orders WHERE customer_id = $1", query)
		assert.Equal(t, []any{int64(42)}, args)
	})

	t.Run("positional markers bind pagination first", func(t *testing.T) {
		query, args, err := bindQuery(db,
			"SELECT * FROM orders LIMIT ? OFFSET ?",
			map[string]any{"offset": 10, "limit": 5})
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM orders LIMIT ? OFFSET ?", query)
		assert.Equal(t, []any{5, 10}, args)
	})

	t.Run("positional markers take remaining params sorted", func(t *testing.T) {
		_, args, err := bindQuery(db,
			"SELECT * FROM orders WHERE status = ? AND customer_id = ? LIMIT ?",
			map[string]any{"status": "shipped", "customer_id": 42, "limit": 5})
		require.NoError(t, err)
		assert.Equal(t, []any{5, 42, "shipped"}, args)
	})

	t.Run("positional marker count mismatch", func(t *testing.T) {
		_, _, err := bindQuery(db,
			"SELECT * FROM orders WHERE a = ? AND b = ?",
			map[string]any{"a": 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "have 1 parameters for 2 positional markers")
	})

	t.Run("no placeholders", func(t *testing.T) {
		query, args, err := bindQuery(db, "SELECT COUNT(*) FROM orders", map[string]any{"unused": 1})
		require.NoError(t, err)
		assert.Equal(t, "SELECT COUNT(*) FROM orders", query)
		assert.Nil(t, args)
	})
}

func TestExecute(t *testing.T) {
	e, mock := mockExecutor(t)
	tpl := &schema.Template{
		ID:          "customer_orders",
		SQLTemplate: "SELECT id, total FROM orders WHERE customer_id = %(customer_id)s",
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, total FROM orders WHERE customer_id = ?")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "total"}).
			AddRow(int64(1), []byte("120.50")).
			AddRow(int64(2), []byte("42.00")))

	rows, err := e.Execute(context.Background(), tpl, map[string]any{"customer_id": int64(42)})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "120.50", rows[0]["total"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteNotConnected(t *testing.T) {
	e := &Executor{
		dialect:   DialectSQLite,
		processor: template.NewProcessor(sqlDomain()),
		log:       logrus.New(),
	}
	_, err := e.Execute(context.Background(), &schema.Template{SQLTemplate: "SELECT 1"}, nil)
	assert.ErrorIs(t, err, retriever.ErrBackendUnavailable)
}

func TestExecuteWrapsLikeParameters(t *testing.T) {
	e, mock := mockExecutor(t)
	tpl := &schema.Template{
		ID:          "find_customer",
		SQLTemplate: "SELECT id FROM customers WHERE name LIKE %(customer_name)s",
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM customers WHERE name LIKE ?")).
		WithArgs("%Maria%").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	rows, err := e.Execute(context.Background(), tpl, map[string]any{"customer_name": "Maria"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteReconnectsOnceOnDeadConnection(t *testing.T) {
	e, mock := mockExecutor(t)
	// Reconnect targets a real throwaway sqlite file.
	e.dsn = filepath.Join(t.TempDir(), "reconnect.db")

	tpl := &schema.Template{ID: "probe", SQLTemplate: "SELECT 1 AS one"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 AS one")).
		WillReturnError(errors.New("driver: connection is already closed"))

	rows, err := e.Execute(context.Background(), tpl, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0]["one"])
	require.NoError(t, mock.ExpectationsWereMet())

	// The executor now holds the reopened handle.
	assert.True(t, e.shared)
	require.NoError(t, e.Close(context.Background()))
}

func TestExecuteDoesNotRetryOrdinaryErrors(t *testing.T) {
	e, mock := mockExecutor(t)
	tpl := &schema.Template{ID: "bad", SQLTemplate: "SELECT nope FROM nowhere"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT nope FROM nowhere")).
		WillReturnError(errors.New("no such table: nowhere"))

	_, err := e.Execute(context.Background(), tpl, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDeadConnection(t *testing.T) {
	assert.True(t, isDeadConnection(errors.New("driver: connection is already closed")))
	assert.True(t, isDeadConnection(errors.New("mysql: connection lost")))
	assert.True(t, isDeadConnection(errors.New("broken connection")))
	assert.False(t, isDeadConnection(errors.New("connection refused")))
	assert.False(t, isDeadConnection(errors.New("broken pipe")))
	assert.False(t, isDeadConnection(nil))
}

func TestSQLiteSharedHandle(t *testing.T) {
	ctx := context.Background()
	ds := config.DatasourceConfig{Database: filepath.Join(t.TempDir(), "shared.db")}

	e1, err := NewExecutor(DialectSQLite, ds, sqlDomain(), nil)
	require.NoError(t, err)
	e2, err := NewExecutor(DialectSQLite, ds, sqlDomain(), nil)
	require.NoError(t, err)

	require.NoError(t, e1.Connect(ctx))
	require.NoError(t, e2.Connect(ctx))
	assert.Same(t, e1.db, e2.db)

	// Closing one retriever leaves the shared handle usable for the other.
	require.NoError(t, e1.Close(ctx))
	_, err = e2.Execute(ctx, &schema.Template{ID: "probe", SQLTemplate: "SELECT 1 AS one"}, nil)
	require.NoError(t, err)
	require.NoError(t, e2.Close(ctx))
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "hello", normalizeValue([]byte("hello")))
	assert.Equal(t, int64(5), normalizeValue(int64(5)))
	assert.Nil(t, normalizeValue(nil))
}
