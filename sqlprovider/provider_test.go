package sqlprovider_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/oss-evaluation-repository/swaldman-c3p0/sqlprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDB struct {
	mu      sync.Mutex
	tables  map[string]bool
	execLog []string
	resets  int
}

func (db *fakeDB) executed(sql string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, s := range db.execLog {
		if s == sql {
			return true
		}
	}
	return false
}

type fakeConnector struct {
	db   *fakeDB
	user string
}

func (c *fakeConnector) Connect(ctx context.Context) (driver.Conn, error) {
	return &fakeDriverConn{db: c.db, user: c.user}, nil
}

func (c *fakeConnector) Driver() driver.Driver { return nil }

type fakeDriverConn struct {
	db     *fakeDB
	user   string
	closed bool
}

func (c *fakeDriverConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeDriverStmt{query: query}, nil
}

func (c *fakeDriverConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeDriverConn) Begin() (driver.Tx, error) {
	return nil, errors.New("not supported")
}

func (c *fakeDriverConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	c.db.execLog = append(c.db.execLog, query)
	if strings.HasPrefix(query, "CREATE TABLE ") {
		c.db.tables[strings.Trim(strings.Fields(query)[2], "`")] = true
	}
	return driver.RowsAffected(0), nil
}

func (c *fakeDriverConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	rows := &fakeRows{}
	if len(args) == 1 && c.db.tables[args[0].Value.(string)] {
		rows.remaining = 1
	}
	return rows, nil
}

func (c *fakeDriverConn) ResetSession(ctx context.Context) error {
	c.db.mu.Lock()
	c.db.resets++
	c.db.mu.Unlock()
	return nil
}

type fakeDriverStmt struct {
	query  string
	closed bool
}

func (s *fakeDriverStmt) Close() error {
	s.closed = true
	return nil
}

func (s *fakeDriverStmt) NumInput() int { return -1 }

func (s *fakeDriverStmt) Exec(args []driver.Value) (driver.Result, error) {
	return driver.RowsAffected(0), nil
}

func (s *fakeDriverStmt) Query(args []driver.Value) (driver.Rows, error) {
	return &fakeRows{}, nil
}

type fakeRows struct {
	remaining int
}

func (r *fakeRows) Columns() []string { return []string{"a"} }

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.remaining == 0 {
		return io.EOF
	}
	r.remaining--
	dest[0] = int64(1)
	return nil
}

func newFakeProvider(db *fakeDB) *sqlprovider.Provider {
	return sqlprovider.NewWithConnectorFunc(func(cred c3p0.Credential) (driver.Connector, error) {
		return &fakeConnector{db: db, user: cred.User}, nil
	}, c3p0.Credential{User: "app", Password: "pw"}, sqlprovider.MySQL)
}

func TestProviderWithManager(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{tables: make(map[string]bool)}
	provider := newFakeProvider(db)

	config := c3p0.DefaultConfig(provider)
	config.Pool.AutomaticTestTable = "c3p0_test"
	config.Pool.TestConnectionOnCheckout = true
	config.Pool.ForceSynchronousCheckins = true
	config.Pool.MaxStatements = 5
	config.Pool.MarkSessionBoundaries = c3p0.MarkSessionBoundariesAlways
	m, err := c3p0.NewManager(config)
	require.NoError(t, err)
	defer m.Close(false)

	p, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, "app", p.Credential().User)
	assert.True(t, db.executed("CREATE TABLE `c3p0_test` ( a CHAR(1) )"))

	conn, err := p.Checkout(ctx)
	require.NoError(t, err)
	assert.True(t, db.executed("SELECT * FROM `c3p0_test`"))
	assert.Equal(t, "app", conn.Physical().(*sqlprovider.Conn).Driver().(*fakeDriverConn).user)

	stmt, err := conn.Prepare(ctx, "SELECT ?")
	require.NoError(t, err)
	raw := stmt.Raw().(*sqlprovider.Stmt).Driver().(*fakeDriverStmt)
	require.NoError(t, stmt.Close(ctx))
	assert.False(t, raw.closed)

	require.NoError(t, conn.Close(ctx))
	db.mu.Lock()
	assert.Equal(t, 1, db.resets)
	db.mu.Unlock()
}

func TestProviderExistingTestTable(t *testing.T) {
	ctx := context.Background()
	db := &fakeDB{tables: map[string]bool{"c3p0_test": true}}
	provider := newFakeProvider(db)

	physical, err := provider.Connect(ctx, c3p0.Credential{})
	require.NoError(t, err)
	conn := physical.(*sqlprovider.Conn)

	exists, err := conn.TableExists(ctx, "c3p0_test")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = conn.TableExists(ctx, "other")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, "`we``ird`", conn.QuoteIdentifier("we`ird"))
	require.NoError(t, conn.Ping(ctx))
	require.NoError(t, conn.Close(ctx))
	assert.True(t, conn.Driver().(*fakeDriverConn).closed)
}

func TestNewRejectsOtherCredentials(t *testing.T) {
	ctx := context.Background()
	provider := sqlprovider.New(&fakeConnector{db: &fakeDB{}}, sqlprovider.ANSI)

	_, err := provider.Connect(ctx, c3p0.Credential{User: "alice", Password: "pw"})
	assert.Error(t, err)

	conn, err := provider.Connect(ctx, c3p0.Credential{})
	require.NoError(t, err)
	assert.Equal(t, `"a""b"`, conn.(*sqlprovider.Conn).QuoteIdentifier(`a"b`))
	assert.Equal(t, c3p0.ConnectionInvalid, provider.ClassifyError(errors.New("boom")))
}

func TestNewMySQL(t *testing.T) {
	provider, err := sqlprovider.NewMySQL("app:secret@tcp(db.example.com:3306)/orders")
	require.NoError(t, err)
	assert.Equal(t, c3p0.Credential{User: "app", Password: "secret"}, provider.DefaultCredential())

	_, err = sqlprovider.NewMySQL("not a dsn")
	assert.Error(t, err)
}

func TestMySQLClassifyError(t *testing.T) {
	provider, err := sqlprovider.NewMySQL("app:secret@tcp(localhost:3306)/orders")
	require.NoError(t, err)

	assert.Equal(t, c3p0.ConnectionOK, provider.ClassifyError(&mysql.MySQLError{Number: 1064, Message: "syntax"}))
	assert.Equal(t, c3p0.ConnectionInvalid, provider.ClassifyError(&mysql.MySQLError{Number: 2013}))
	assert.Equal(t, c3p0.DatabaseInvalid, provider.ClassifyError(&mysql.MySQLError{Number: 1049}))
	assert.Equal(t, c3p0.ConnectionInvalid, provider.ClassifyError(mysql.ErrInvalidConn))
	assert.Equal(t, c3p0.ConnectionInvalid, provider.ClassifyError(driver.ErrBadConn))
}

func TestMySQLLive(t *testing.T) {
	dsn := os.Getenv("C3P0_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping due to missing C3P0_TEST_MYSQL_DSN")
	}
	ctx := context.Background()

	provider, err := sqlprovider.NewMySQL(dsn)
	require.NoError(t, err)
	m, err := c3p0.NewManager(c3p0.DefaultConfig(provider))
	require.NoError(t, err)
	defer m.Close(false)

	conn, err := m.Acquire(ctx, provider.DefaultCredential())
	require.NoError(t, err)
	defer conn.Close(ctx)

	require.NoError(t, conn.Ping(ctx))
	require.NoError(t, conn.Exec(ctx, "SELECT 1"))
	assert.Error(t, conn.Exec(ctx, "SELEC 1"))
	require.NoError(t, conn.Exec(ctx, "SELECT 1"))
}
