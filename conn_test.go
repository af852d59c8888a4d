package c3p0_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepareWithoutStatementCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := defaultPool(t, testConfig(newFakeProvider()))

	conn, err := p.Checkout(ctx)
	require.NoError(t, err)
	defer conn.Close(ctx)

	stmt, err := conn.Prepare(ctx, "select 1")
	require.NoError(t, err)
	assert.Equal(t, "select 1", stmt.SQL())

	raw := stmt.Raw().(*fakeStmt)
	require.NoError(t, stmt.Close(ctx))
	assert.True(t, raw.closed.Load())
	assert.NoError(t, stmt.Close(ctx))
}

func TestPrepareUsesStatementCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	config := testConfig(newFakeProvider())
	config.Pool.MaxPoolSize = 1
	config.Pool.MaxStatements = 10
	p := defaultPool(t, config)

	conn, err := p.Checkout(ctx)
	require.NoError(t, err)

	stmt, err := conn.Prepare(ctx, "select 1")
	require.NoError(t, err)
	first := stmt.Raw()
	require.NoError(t, stmt.Close(ctx))
	assert.False(t, first.(*fakeStmt).closed.Load())

	stmt, err = conn.Prepare(ctx, "select 1")
	require.NoError(t, err)
	assert.Same(t, first, stmt.Raw())

	s := p.Stat()
	assert.Equal(t, 1, s.NumStatements)
	assert.Equal(t, 1, s.NumStatementsCheckedOut)
	assert.Equal(t, 1, s.NumConnectionsWithCachedStatements)

	// Statements left open are returned with the connection.
	require.NoError(t, conn.Close(ctx))
	assert.Equal(t, 0, p.Stat().NumStatementsCheckedOut)

	conn, err = p.Checkout(ctx)
	require.NoError(t, err)
	stmt, err = conn.Prepare(ctx, "select 1")
	require.NoError(t, err)
	assert.Same(t, first, stmt.Raw())
	require.NoError(t, conn.Close(ctx))
}

func TestEvictedStatementsAreClosedByConnectionOwner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	config := testConfig(newFakeProvider())
	config.Pool.MaxPoolSize = 1
	config.Pool.MaxStatements = 1
	p := defaultPool(t, config)

	conn, err := p.Checkout(ctx)
	require.NoError(t, err)

	var raws []*fakeStmt
	for i := 0; i < 20; i++ {
		stmt, err := conn.Prepare(ctx, fmt.Sprintf("select %d", i))
		require.NoError(t, err)
		raws = append(raws, stmt.Raw().(*fakeStmt))
		require.NoError(t, stmt.Close(ctx))
		require.NoError(t, conn.Exec(ctx, "select 1"))
	}

	// Each statement is evicted by the next Prepare and closed by the one after it.
	for i, raw := range raws {
		assert.False(t, raw.overlapped.Load(), "statement %d", i)
		assert.Equal(t, i < 18, raw.closed.Load(), "statement %d", i)
	}
	assert.Equal(t, 1, p.Stat().NumInvalidatedStatements)

	require.NoError(t, conn.Close(ctx))
	assert.True(t, raws[18].closed.Load())
	assert.False(t, raws[19].closed.Load())
	assert.Equal(t, 0, p.Stat().NumInvalidatedStatements)
}

func TestDestroyedConnectionClosesCachedStatements(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := newFakeProvider()
	config := testConfig(provider)
	config.Pool.MaxStatementsPerConnection = 5
	config.StatementCacheNumDeferredCloseThreads = 1
	p := defaultPool(t, config)

	conn, err := p.Checkout(ctx)
	require.NoError(t, err)
	stmt, err := conn.Prepare(ctx, "select 1")
	require.NoError(t, err)
	raw := stmt.Raw().(*fakeStmt)
	require.NoError(t, stmt.Close(ctx))

	s := p.Stat()
	assert.Equal(t, 1, s.StatementDestroyerNumConnectionsInUse)
	assert.Equal(t, 0, s.StatementDestroyerNumDeferredCloses)

	conn.Invalidate(ctx, c3p0.ConnectionInvalid)
	require.NoError(t, conn.Close(ctx))

	assert.True(t, raw.closed.Load())
	assert.Equal(t, 0, p.Stat().NumStatements)
}

func TestConnInvalidateDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := newFakeProvider()
	p := defaultPool(t, testConfig(provider))
	waitForIdle(t, p, 1)

	conn, err := p.Checkout(ctx)
	require.NoError(t, err)
	conn.Invalidate(ctx, c3p0.DatabaseInvalid)
	assert.Equal(t, 1, p.Stat().NumUnclosedOrphanedConnections)
	require.NoError(t, conn.Close(ctx))
	assert.True(t, conn.Physical().(*fakeConn).closed.Load())
}

func TestClosedConnRejectsWork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := defaultPool(t, testConfig(newFakeProvider()))

	conn, err := p.Checkout(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))

	_, err = conn.Prepare(ctx, "select 1")
	assert.ErrorIs(t, err, c3p0.ErrClosed)
	assert.ErrorIs(t, conn.Ping(ctx), c3p0.ErrClosed)
}
