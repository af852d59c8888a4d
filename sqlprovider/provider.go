// Package sqlprovider opens connections for a c3p0 Manager from database/sql/driver connectors. NewMySQL builds one
// for MySQL with github.com/go-sql-driver/mysql.
package sqlprovider

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/oss-evaluation-repository/swaldman-c3p0"
)

// ConnectorFunc returns a connector that opens connections as cred. The null credential means the default user.
type ConnectorFunc func(cred c3p0.Credential) (driver.Connector, error)

// Dialect describes the SQL needed for the automatic test table.
type Dialect struct {
	// TableExistsQuery has one placeholder for the table name and returns a row if the table exists.
	TableExistsQuery string
	Quote            func(name string) string
}

// ANSI quotes identifiers with double quotes and looks tables up in information_schema.
var ANSI = Dialect{
	TableExistsQuery: "SELECT 1 FROM information_schema.tables WHERE table_name = ?",
	Quote:            func(name string) string { return `"` + strings.ReplaceAll(name, `"`, `""`) + `"` },
}

// MySQL quotes identifiers with backticks and looks tables up in the current database.
var MySQL = Dialect{
	TableExistsQuery: "SELECT 1 FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
	Quote:            func(name string) string { return "`" + strings.ReplaceAll(name, "`", "``") + "`" },
}

// Provider implements c3p0.Provider over driver connectors. It also implements c3p0.ErrorClassifier,
// c3p0.DefaultCredentialer and c3p0.SessionAdapter.
type Provider struct {
	connectorFor ConnectorFunc
	defaultCred  c3p0.Credential
	dialect      Dialect
	classify     func(err error) c3p0.TestResult
}

// New returns a Provider that opens connections with connector. It cannot connect as any other user than the one
// connector is configured for.
func New(connector driver.Connector, dialect Dialect) *Provider {
	return NewWithConnectorFunc(func(cred c3p0.Credential) (driver.Connector, error) {
		if !cred.IsNull() {
			return nil, fmt.Errorf("sqlprovider: connector does not support credential %s", cred)
		}
		return connector, nil
	}, c3p0.Credential{}, dialect)
}

// NewWithConnectorFunc returns a Provider that obtains a connector per credential from fn.
func NewWithConnectorFunc(fn ConnectorFunc, defaultCred c3p0.Credential, dialect Dialect) *Provider {
	return &Provider{connectorFor: fn, defaultCred: defaultCred, dialect: dialect, classify: classifyDriverError}
}

// NewMySQL returns a Provider for the MySQL data source name dsn. The user and password in dsn are the default
// credential.
func NewMySQL(dsn string) (*Provider, error) {
	config, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	p := NewWithConnectorFunc(func(cred c3p0.Credential) (driver.Connector, error) {
		c := config.Clone()
		if !cred.IsNull() {
			c.User = cred.User
			c.Passwd = cred.Password
		}
		return mysql.NewConnector(c)
	}, c3p0.Credential{User: config.User, Password: config.Passwd}, MySQL)
	p.classify = classifyMySQLError
	return p, nil
}

// Connect implements c3p0.Provider.
func (p *Provider) Connect(ctx context.Context, cred c3p0.Credential) (c3p0.PhysicalConn, error) {
	connector, err := p.connectorFor(cred)
	if err != nil {
		return nil, err
	}
	dc, err := connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: dc, dialect: p.dialect}, nil
}

// DefaultCredential implements c3p0.DefaultCredentialer.
func (p *Provider) DefaultCredential() c3p0.Credential {
	return p.defaultCred
}

// ClassifyError implements c3p0.ErrorClassifier.
func (p *Provider) ClassifyError(err error) c3p0.TestResult {
	return p.classify(err)
}

// SupportsSessionBoundaries implements c3p0.SessionAdapter. Boundaries are supported by drivers that can reset a
// session.
func (p *Provider) SupportsSessionBoundaries(conn c3p0.PhysicalConn) bool {
	c, ok := conn.(*Conn)
	if !ok {
		return false
	}
	_, ok = c.conn.(driver.SessionResetter)
	return ok
}

// BeginRequest implements c3p0.SessionAdapter. Sessions need no preparation.
func (p *Provider) BeginRequest(ctx context.Context, conn c3p0.PhysicalConn) error {
	return nil
}

// EndRequest implements c3p0.SessionAdapter by resetting the driver session.
func (p *Provider) EndRequest(ctx context.Context, conn c3p0.PhysicalConn) error {
	c, ok := conn.(*Conn)
	if !ok {
		return fmt.Errorf("%w: %T", c3p0.ErrIncompatibleConnection, conn)
	}
	if r, ok := c.conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func classifyDriverError(err error) c3p0.TestResult {
	return c3p0.ConnectionInvalid
}

// classifyMySQLError treats server errors as harmless except those reporting a lost connection or an unusable server.
func classifyMySQLError(err error) c3p0.TestResult {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return c3p0.ConnectionInvalid
	}

	switch myErr.Number {
	case 1049, 1053, 1077: // unknown database, server shutdown, normal shutdown
		return c3p0.DatabaseInvalid
	case 1040, 1152, 1153, 1158, 1159, 1160, 1161, 2006, 2013: // too many connections, aborted or lost connection
		return c3p0.ConnectionInvalid
	default:
		return c3p0.ConnectionOK
	}
}
