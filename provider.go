package c3p0

import "context"

// Provider opens physical connections. It is the only required collaborator of a Manager.
type Provider interface {
	// Connect opens a physical connection as cred. The null credential means the provider's default user.
	Connect(ctx context.Context, cred Credential) (PhysicalConn, error)
}

// PhysicalConn is a raw database connection.
type PhysicalConn interface {
	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Exec executes sql, discarding any result.
	Exec(ctx context.Context, sql string) error

	Close(ctx context.Context) error
}

// PreparedStatement is a statement prepared on a PhysicalConn. Implementations must be comparable.
type PreparedStatement interface {
	Close(ctx context.Context) error
}

// StatementPreparer is implemented by physical connections that can prepare statements. It is required for the
// statement cache.
type StatementPreparer interface {
	Prepare(ctx context.Context, sql string) (PreparedStatement, error)
}

// WarningReporter is implemented by physical connections that collect server warnings. Warnings are logged and cleared
// after acquisition and on checkin.
type WarningReporter interface {
	TakeWarnings() []string
}

// SessionMarker is implemented by physical connections with native request boundary support.
type SessionMarker interface {
	BeginRequest(ctx context.Context) error
	EndRequest(ctx context.Context) error
}

// SessionAdapter is implemented by providers that can mark request boundaries on connections that do not implement
// SessionMarker themselves.
type SessionAdapter interface {
	SupportsSessionBoundaries(conn PhysicalConn) bool
	BeginRequest(ctx context.Context, conn PhysicalConn) error
	EndRequest(ctx context.Context, conn PhysicalConn) error
}

// CatalogConn is implemented by physical connections that can inspect the catalog. It is required for the automatic
// test table.
type CatalogConn interface {
	TableExists(ctx context.Context, table string) (bool, error)
	QueryHasRows(ctx context.Context, sql string) (bool, error)
	QuoteIdentifier(name string) string
}

// ErrorClassifier maps a driver error to a verdict on the connection or the whole database. It may be implemented by
// a PhysicalConn or a Provider. Errors are considered ConnectionInvalid when neither implements it.
type ErrorClassifier interface {
	ClassifyError(err error) TestResult
}

// PropertySource is implemented by providers that carry pool properties of their own, for example parameters embedded
// in a connection string. Its values rank below overrides and above defaults.
type PropertySource interface {
	PoolProperty(name string) (string, bool)
}

// DefaultCredentialer is implemented by providers that know their default user.
type DefaultCredentialer interface {
	DefaultCredential() Credential
}
