package c3p0_test

import (
	"context"
	"testing"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerPanicsWithoutDefaultConfig(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { c3p0.NewManager(&c3p0.Config{Provider: newFakeProvider()}) })
}

func TestNewManagerRequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := c3p0.NewManager(c3p0.DefaultConfig(nil))
	var cerr *c3p0.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "provider", cerr.Property)
}

func TestNewManagerUnknownTaskRunnerFactory(t *testing.T) {
	t.Parallel()

	config := testConfig(newFakeProvider())
	config.TaskRunnerFactoryName = "missing"
	_, err := c3p0.NewManager(config)
	var cerr *c3p0.ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestManagerPoolPerCredential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, testConfig(newFakeProvider()))

	alice := c3p0.Credential{User: "alice", Password: "secret"}
	bob := c3p0.Credential{User: "bob", Password: "hunter2"}

	pa, err := m.Pool(ctx, alice)
	require.NoError(t, err)
	pb, err := m.Pool(ctx, bob)
	require.NoError(t, err)
	again, err := m.Pool(ctx, alice)
	require.NoError(t, err)

	assert.NotSame(t, pa, pb)
	assert.Same(t, pa, again)
	assert.Equal(t, 2, m.NumManagedCredentials())
	assert.ElementsMatch(t, []c3p0.Credential{alice, bob}, m.ManagedCredentials())

	found, err := m.LookupPool(bob)
	require.NoError(t, err)
	assert.Same(t, pb, found)

	_, err = m.LookupPool(c3p0.Credential{User: "carol"})
	assert.ErrorIs(t, err, c3p0.ErrPoolNotFound)
}

func TestManagerConnectionsUseTheirCredential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, testConfig(newFakeProvider()))

	alice := c3p0.Credential{User: "alice", Password: "secret"}
	conn, err := m.Acquire(ctx, alice)
	require.NoError(t, err)
	defer conn.Close(ctx)

	assert.Equal(t, alice, conn.Physical().(*fakeConn).cred)
}

func TestManagerBadCredentialFailsPoolConstruction(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.users = map[string]string{"alice": "secret"}
	m := newManager(t, testConfig(provider))

	_, err := m.Pool(context.Background(), c3p0.Credential{User: "alice", Password: "wrong"})
	var aerr *c3p0.AcquireError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 0, m.NumManagedCredentials())
}

func TestManagerDefaultPool(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	config := testConfig(newFakeProvider())
	config.Overrides = map[string]string{"user": "alice", "password": "secret"}
	m := newManager(t, config)

	p, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, c3p0.Credential{User: "alice", Password: "secret"}, p.Credential())

	same, err := m.Pool(ctx, c3p0.Credential{User: "alice", Password: "secret"})
	require.NoError(t, err)
	assert.Same(t, p, same)
}

func TestManagerIncompleteDefaultCredentialFallsBackToNull(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.users = map[string]string{"alice": "secret"}
	config := testConfig(provider)
	config.Overrides = map[string]string{"user": "alice"}
	m := newManager(t, config)

	p, err := m.DefaultPool(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Credential().IsNull())
}

func TestManagerConfigResolution(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := newFakeProvider()
	provider.props = map[string]string{"maxPoolSize": "7", "maxIdleTime": "30", "minPoolSize": "1"}

	config := testConfig(provider)
	config.Overrides = map[string]string{"maxPoolSize": "5", "minPoolSize": "2"}
	config.UserOverrides = map[string]map[string]string{"bob": {"maxPoolSize": "4"}}
	m := newManager(t, config)

	p, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Config().MaxPoolSize)
	assert.Equal(t, 2, p.Config().MinPoolSize)
	assert.Equal(t, 30*time.Second, p.Config().MaxIdleTime)

	bob, err := m.Pool(ctx, c3p0.Credential{User: "bob", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, 4, bob.Config().MaxPoolSize)
	assert.Equal(t, 2, bob.Config().MinPoolSize)
}

func TestManagerInvalidOverrideFailsPool(t *testing.T) {
	t.Parallel()

	config := testConfig(newFakeProvider())
	config.Overrides = map[string]string{"minPoolSize": "10", "maxPoolSize": "2"}
	m := newManager(t, config)

	_, err := m.DefaultPool(context.Background())
	var cerr *c3p0.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "minPoolSize", cerr.Property)
}

func TestManagerUnknownNamesFailPool(t *testing.T) {
	t.Parallel()

	for _, prop := range []string{"connectionTesterName", "connectionCustomizerName"} {
		config := testConfig(newFakeProvider())
		config.Overrides = map[string]string{prop: "missing"}
		m := newManager(t, config)

		_, err := m.DefaultPool(context.Background())
		var cerr *c3p0.ConfigurationError
		require.ErrorAs(t, err, &cerr, prop)
		assert.Equal(t, prop, cerr.Property)
	}
}

func TestManagerSoftResetAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := newFakeProvider()
	m := newManager(t, testConfig(provider))

	p, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	waitForIdle(t, p, 1)

	m.SoftResetAll()
	require.Eventually(t, func() bool { return provider.conn(1).closed.Load() }, time.Second, time.Millisecond)
	waitForIdle(t, p, 1)
	assert.GreaterOrEqual(t, provider.numConns(), 2)
}

func TestManagerClose(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := newFakeProvider()
	m, err := c3p0.NewManager(testConfig(provider))
	require.NoError(t, err)

	p, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	conn, err := p.Checkout(ctx)
	require.NoError(t, err)

	m.Close(false)
	m.Close(false)

	assert.True(t, conn.Physical().(*fakeConn).closed.Load())
	assert.NoError(t, conn.Close(ctx))

	_, err = m.DefaultPool(ctx)
	assert.ErrorIs(t, err, c3p0.ErrClosed)
	_, err = p.Checkout(ctx)
	assert.ErrorIs(t, err, c3p0.ErrClosed)
}

func TestManagerCloseDrainsCheckedOutConnections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := newFakeProvider()
	m, err := c3p0.NewManager(testConfig(provider))
	require.NoError(t, err)

	p, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	conn, err := p.Checkout(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		m.Close(true)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close returned before the connection was returned")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, conn.Close(ctx))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.True(t, conn.Physical().(*fakeConn).closed.Load())
}

func TestManagerCloseWaitsForQueuedDestroys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	customizer := &countingCustomizer{destroyDelay: 20 * time.Millisecond}
	registry := c3p0.NewRegistry()
	registry.RegisterConnectionCustomizer("slow", customizer)

	provider := newFakeProvider()
	config := testConfig(provider)
	config.Registry = registry
	config.NumHelperThreads = 1
	config.Pool.MinPoolSize = 0
	config.Pool.InitialPoolSize = 0
	config.Pool.ConnectionCustomizerName = "slow"
	m, err := c3p0.NewManager(config)
	require.NoError(t, err)

	p, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	var conns []*c3p0.Conn
	for i := 0; i < 3; i++ {
		conn, err := p.Checkout(ctx)
		require.NoError(t, err)
		conns = append(conns, conn)
	}
	for _, conn := range conns {
		require.NoError(t, conn.Close(ctx))
	}

	p.Reset()
	m.Close(true)

	require.Equal(t, 3, provider.numConns())
	for id := 1; id <= 3; id++ {
		assert.True(t, provider.conn(id).closed.Load(), "connection %d", id)
	}
	assert.EqualValues(t, 3, customizer.destroy.Load())
}

func TestExhaustedPoolDoesNotBlockOtherCredentials(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	config := testConfig(newFakeProvider())
	config.UserOverrides = map[string]map[string]string{"alice": {"maxPoolSize": "1"}}
	m := newManager(t, config)

	alice := c3p0.Credential{User: "alice", Password: "a"}
	bob := c3p0.Credential{User: "bob", Password: "b"}

	held, err := m.Acquire(ctx, alice)
	require.NoError(t, err)
	defer held.Close(ctx)
	pa, err := m.LookupPool(alice)
	require.NoError(t, err)

	waiterCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	waitErr := make(chan error, 1)
	go func() {
		_, err := m.Acquire(waiterCtx, alice)
		waitErr <- err
	}()
	require.Eventually(t, func() bool { return pa.Stat().NumThreadsAwaitingCheckout == 1 }, time.Second, time.Millisecond)

	bobCtx, bobCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer bobCancel()
	conn, err := m.Acquire(bobCtx, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, conn.Physical().(*fakeConn).cred)
	require.NoError(t, conn.Close(ctx))

	assert.Error(t, <-waitErr)
}

func TestSlowPoolCreationDoesNotBlockExistingPools(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	provider := newFakeProvider()
	m := newManager(t, testConfig(provider))

	alice := c3p0.Credential{User: "alice", Password: "a"}
	bob := c3p0.Credential{User: "bob", Password: "b"}
	pa, err := m.Pool(ctx, alice)
	require.NoError(t, err)

	gate := provider.gate("bob")
	created := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.Pool(ctx, bob)
			created <- err
		}()
	}
	require.Eventually(t, func() bool { return provider.gated.Load() >= 1 }, time.Second, time.Millisecond)

	found := make(chan *c3p0.Pool, 1)
	go func() {
		p, _ := m.Pool(ctx, alice)
		found <- p
	}()
	select {
	case p := <-found:
		assert.Same(t, pa, p)
	case <-time.After(time.Second):
		t.Fatal("existing pool blocked behind pool creation")
	}
	assert.Equal(t, 1, m.NumManagedCredentials())

	close(gate)
	require.NoError(t, <-created)
	require.NoError(t, <-created)
	assert.Equal(t, 2, m.NumManagedCredentials())
}

func TestPoolCloseRemovesItFromManager(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newManager(t, testConfig(newFakeProvider()))

	p, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	p.Close(false)

	assert.Equal(t, 0, m.NumManagedCredentials())
	fresh, err := m.DefaultPool(ctx)
	require.NoError(t, err)
	assert.NotSame(t, p, fresh)
}

func TestManagerStat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	config := testConfig(newFakeProvider())
	config.DataSourceName = "orders"
	m := newManager(t, config)

	pa, err := m.Pool(ctx, c3p0.Credential{User: "alice", Password: "a"})
	require.NoError(t, err)
	pb, err := m.Pool(ctx, c3p0.Credential{User: "bob", Password: "b"})
	require.NoError(t, err)
	waitForIdle(t, pa, 1)
	waitForIdle(t, pb, 1)

	conn, err := pa.Checkout(ctx)
	require.NoError(t, err)
	defer conn.Close(ctx)

	s := m.Stat()
	assert.Equal(t, "orders", s.DataSourceName)
	assert.NotEmpty(t, s.IdentityToken)
	assert.Equal(t, 2, s.NumUserPools)
	assert.Len(t, s.Pools, 2)
	assert.Equal(t, 1, s.NumBusyConnections)
	assert.Equal(t, s.Pools[0].NumConnections+s.Pools[1].NumConnections, s.NumConnections)
	assert.Equal(t, 3, s.HelperRunner.Workers)
	assert.Nil(t, s.DeferredCloseRunner)
}
