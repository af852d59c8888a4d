package pgxprovider

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oss-evaluation-repository/swaldman-c3p0"
)

var stmtSeq atomic.Uint64

// Conn is a physical PostgreSQL connection.
type Conn struct {
	conn *pgx.Conn

	mu       sync.Mutex
	warnings []string
}

// Pgx returns the underlying connection.
func (c *Conn) Pgx() *pgx.Conn { return c.conn }

func (c *Conn) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *Conn) Exec(ctx context.Context, sql string) error {
	_, err := c.conn.Exec(ctx, sql)
	return err
}

func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// Prepare implements c3p0.StatementPreparer. Statements are named uniquely so they can be cached side by side.
func (c *Conn) Prepare(ctx context.Context, sql string) (c3p0.PreparedStatement, error) {
	name := "c3p0_" + strconv.FormatUint(stmtSeq.Add(1), 10)
	sd, err := c.conn.Prepare(ctx, name, sql)
	if err != nil {
		return nil, err
	}
	return &Stmt{conn: c.conn, name: name, sd: sd}, nil
}

// TakeWarnings implements c3p0.WarningReporter.
func (c *Conn) TakeWarnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.warnings
	c.warnings = nil
	return w
}

func (c *Conn) addWarning(w string) {
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	c.mu.Unlock()
}

// ServerVersion parses the server_version reported at connection startup.
func (c *Conn) ServerVersion() (*semver.Version, error) {
	s := c.conn.PgConn().ParameterStatus("server_version")
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	return semver.NewVersion(s)
}

// TableExists implements c3p0.CatalogConn. Only the current schema is searched.
func (c *Conn) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := c.conn.QueryRow(ctx,
		"select exists(select 1 from information_schema.tables where table_schema = current_schema() and table_name = $1)",
		table,
	).Scan(&exists)
	return exists, err
}

// QueryHasRows implements c3p0.CatalogConn.
func (c *Conn) QueryHasRows(ctx context.Context, sql string) (bool, error) {
	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return false, err
	}
	hasRows := rows.Next()
	rows.Close()
	return hasRows, rows.Err()
}

// QuoteIdentifier implements c3p0.CatalogConn.
func (c *Conn) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Stmt is a named prepared statement. Execute it by passing Name to the connection's Exec or Query.
type Stmt struct {
	conn *pgx.Conn
	name string
	sd   *pgconn.StatementDescription
}

func (s *Stmt) Name() string { return s.name }

func (s *Stmt) Description() *pgconn.StatementDescription { return s.sd }

// Close deallocates the statement.
func (s *Stmt) Close(ctx context.Context) error {
	return s.conn.Deallocate(ctx, s.name)
}
