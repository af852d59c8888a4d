package sqlprovider

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"

	"github.com/oss-evaluation-repository/swaldman-c3p0"
)

// Conn is a physical connection over a driver.Conn.
type Conn struct {
	conn    driver.Conn
	dialect Dialect
}

// Driver returns the underlying driver connection.
func (c *Conn) Driver() driver.Conn { return c.conn }

func (c *Conn) Ping(ctx context.Context) error {
	if v, ok := c.conn.(driver.Validator); ok && !v.IsValid() {
		return driver.ErrBadConn
	}
	if p, ok := c.conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return c.Exec(ctx, "SELECT 1")
}

func (c *Conn) Exec(ctx context.Context, sql string) error {
	if execer, ok := c.conn.(driver.ExecerContext); ok {
		_, err := execer.ExecContext(ctx, sql, nil)
		if !errors.Is(err, driver.ErrSkip) {
			return err
		}
	}

	stmt, err := c.prepare(ctx, sql)
	if err != nil {
		return err
	}
	defer stmt.Close()

	if se, ok := stmt.(driver.StmtExecContext); ok {
		_, err = se.ExecContext(ctx, nil)
		return err
	}
	_, err = stmt.Exec(nil)
	return err
}

func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close()
}

func (c *Conn) prepare(ctx context.Context, sql string) (driver.Stmt, error) {
	if p, ok := c.conn.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, sql)
	}
	return c.conn.Prepare(sql)
}

// Prepare implements c3p0.StatementPreparer.
func (c *Conn) Prepare(ctx context.Context, sql string) (c3p0.PreparedStatement, error) {
	stmt, err := c.prepare(ctx, sql)
	if err != nil {
		return nil, err
	}
	return &Stmt{stmt: stmt}, nil
}

// TableExists implements c3p0.CatalogConn.
func (c *Conn) TableExists(ctx context.Context, table string) (bool, error) {
	return c.hasRows(ctx, c.dialect.TableExistsQuery, []driver.NamedValue{{Ordinal: 1, Value: table}})
}

// QueryHasRows implements c3p0.CatalogConn.
func (c *Conn) QueryHasRows(ctx context.Context, sql string) (bool, error) {
	return c.hasRows(ctx, sql, nil)
}

// QuoteIdentifier implements c3p0.CatalogConn.
func (c *Conn) QuoteIdentifier(name string) string {
	return c.dialect.Quote(name)
}

func (c *Conn) hasRows(ctx context.Context, sql string, args []driver.NamedValue) (bool, error) {
	var rows driver.Rows
	var err error

	queryer, ok := c.conn.(driver.QueryerContext)
	if ok {
		rows, err = queryer.QueryContext(ctx, sql, args)
	}
	if !ok || errors.Is(err, driver.ErrSkip) {
		var stmt driver.Stmt
		stmt, err = c.prepare(ctx, sql)
		if err != nil {
			return false, err
		}
		defer stmt.Close()

		sq, ok := stmt.(driver.StmtQueryContext)
		if !ok {
			return false, errors.New("sqlprovider: driver statement cannot query with context")
		}
		rows, err = sq.QueryContext(ctx, args)
	}
	if err != nil {
		return false, err
	}
	defer rows.Close()

	dest := make([]driver.Value, len(rows.Columns()))
	err = rows.Next(dest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, io.EOF):
		return false, nil
	default:
		return false, err
	}
}

// Stmt is a prepared driver statement.
type Stmt struct {
	stmt driver.Stmt
}

// Driver returns the underlying driver statement.
func (s *Stmt) Driver() driver.Stmt { return s.stmt }

func (s *Stmt) Close(ctx context.Context) error {
	return s.stmt.Close()
}
