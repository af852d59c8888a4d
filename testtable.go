package c3p0

import (
	"context"
	"fmt"
	"unicode"
)

// validateTestTableName accepts letters, digits, '_' and '$', not starting with a digit. The name is interpolated into
// SQL so nothing else is allowed.
func validateTestTableName(name string) error {
	if name == "" {
		return &ConfigurationError{Property: "automaticTestTable", Msg: "empty table name"}
	}
	for i, r := range name {
		ok := unicode.IsLetter(r) || r == '_' || r == '$' || (i > 0 && unicode.IsDigit(r))
		if !ok {
			return &ConfigurationError{Property: "automaticTestTable", Msg: fmt.Sprintf("illegal character %q in table name %q", r, name)}
		}
	}
	return nil
}

// initAutomaticTestTable ensures table exists and is empty, creating it if absent, and returns the test query that
// selects from it.
func initAutomaticTestTable(ctx context.Context, provider Provider, cred Credential, table string) (query string, err error) {
	if err := validateTestTableName(table); err != nil {
		return "", err
	}

	conn, err := provider.Connect(ctx, cred)
	if err != nil {
		return "", &AcquireError{User: cred.String(), Err: err}
	}
	defer func() {
		if closeErr := conn.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	catalog, ok := conn.(CatalogConn)
	if !ok {
		return "", &ConfigurationError{Property: "automaticTestTable", Msg: "connections cannot inspect the catalog"}
	}

	exists, err := catalog.TableExists(ctx, table)
	if err != nil {
		return "", fmt.Errorf("check test table %s: %w", table, err)
	}

	quoted := catalog.QuoteIdentifier(table)
	query = "SELECT * FROM " + quoted
	if exists {
		hasRows, err := catalog.QueryHasRows(ctx, query)
		if err != nil {
			return "", fmt.Errorf("read test table %s: %w", table, err)
		}
		if hasRows {
			return "", &ConfigurationError{Property: "automaticTestTable", Msg: fmt.Sprintf("table %s exists and is not empty", table)}
		}
		return query, nil
	}

	if err := conn.Exec(ctx, "CREATE TABLE "+quoted+" ( a CHAR(1) )"); err != nil {
		return "", fmt.Errorf("create test table %s: %w", table, err)
	}
	return query, nil
}
