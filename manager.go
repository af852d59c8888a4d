package c3p0

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/oss-evaluation-repository/swaldman-c3p0/taskrunner"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
	"golang.org/x/sync/errgroup"
)

// Manager owns one Pool per Credential and the background workers they share.
type Manager struct {
	id        string
	config    *Config
	registry  *Registry
	logger    tracelog.Leveled
	startTime time.Time

	runner         taskrunner.Runner
	deferredRunner taskrunner.Runner
	scheduler      *taskrunner.Scheduler

	mu                 sync.Mutex
	pools              map[Credential]*Pool
	creating           map[Credential]*poolCreation
	defaultCred        Credential
	defaultCredChecked bool
	closed             bool
}

// NewManager creates a Manager. config must have been created by DefaultConfig. No connections are opened until a
// Pool is requested.
func NewManager(config *Config) (*Manager, error) {
	// Default values are set in DefaultConfig. Panic to catch construction from scratch.
	if !config.createdByDefaultConfig {
		panic("config must be created by DefaultConfig")
	}
	if config.Provider == nil {
		return nil, &ConfigurationError{Property: "provider", Msg: "a provider is required"}
	}
	config = config.Copy()

	registry := config.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	factoryName := config.TaskRunnerFactoryName
	if factoryName == "" {
		factoryName = DefaultName
	}
	factory, ok := registry.TaskRunnerFactory(factoryName)
	if !ok {
		return nil, &ConfigurationError{Property: "taskRunnerFactoryName", Msg: "no task runner factory registered as " + factoryName}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	name := config.DataSourceName
	if name == "" {
		name = id.String()
	}

	logger := tracelog.Leveled{Logger: config.Logger, Level: config.LogLevel}.With(map[string]any{"dataSource": name})
	m := &Manager{
		id:        id.String(),
		config:    config,
		registry:  registry,
		logger:    logger,
		startTime: time.Now(),
		scheduler: taskrunner.NewScheduler(),
		pools:     make(map[Credential]*Pool),
		creating:  make(map[Credential]*poolCreation),
	}
	m.runner = factory.NewRunner(taskrunner.Options{
		NumWorkers:  max(config.NumHelperThreads, 1),
		MaxTaskTime: config.MaxAdministrativeTaskTime,
		Label:       name + "-helper",
		Logger:      logger,
	})
	if config.StatementCacheNumDeferredCloseThreads > 0 {
		m.deferredRunner = factory.NewRunner(taskrunner.Options{
			NumWorkers:  config.StatementCacheNumDeferredCloseThreads,
			MaxTaskTime: config.MaxAdministrativeTaskTime,
			Label:       name + "-deferred-close",
			Logger:      logger,
		})
	}

	logger.Log(context.Background(), tracelog.LogLevelInfo, "manager created", map[string]any{"identityToken": m.id, "numHelperThreads": config.NumHelperThreads})
	return m, nil
}

// IdentityToken uniquely identifies the manager.
func (m *Manager) IdentityToken() string { return m.id }

// DataSourceName returns the configured name, or the identity token if none was configured.
func (m *Manager) DataSourceName() string {
	if m.config.DataSourceName != "" {
		return m.config.DataSourceName
	}
	return m.id
}

// Pool returns the sub-pool for cred, creating it on first use. Concurrent callers for a credential whose pool is
// being created wait for that creation. Pools of other credentials stay reachable meanwhile.
func (m *Manager) Pool(ctx context.Context, cred Credential) (*Pool, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if p, ok := m.pools[cred]; ok {
		m.mu.Unlock()
		return p, nil
	}
	if c, ok := m.creating[cred]; ok {
		m.mu.Unlock()
		select {
		case <-c.done:
			return c.pool, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	isDefault := cred == m.defaultCredentialLocked(ctx)
	c := &poolCreation{done: make(chan struct{})}
	m.creating[cred] = c
	m.mu.Unlock()

	p, err := newPool(ctx, m, cred, isDefault)

	m.mu.Lock()
	delete(m.creating, cred)
	closed := m.closed
	if err == nil && !closed {
		m.pools[cred] = p
	}
	m.mu.Unlock()

	if err == nil && closed {
		p.close(false)
		p, err = nil, ErrClosed
	}
	c.pool, c.err = p, err
	close(c.done)
	return p, err
}

// poolCreation is a sub-pool under construction.
type poolCreation struct {
	done chan struct{}
	pool *Pool
	err  error
}

// LookupPool returns the existing sub-pool for cred or ErrPoolNotFound.
func (m *Manager) LookupPool(cred Credential) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	p, ok := m.pools[cred]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p, nil
}

// DefaultPool returns the sub-pool for the default credential.
func (m *Manager) DefaultPool(ctx context.Context) (*Pool, error) {
	m.mu.Lock()
	cred := m.defaultCredentialLocked(ctx)
	m.mu.Unlock()
	return m.Pool(ctx, cred)
}

// Acquire checks out a connection from the sub-pool for cred.
func (m *Manager) Acquire(ctx context.Context, cred Credential) (*Conn, error) {
	p, err := m.Pool(ctx, cred)
	if err != nil {
		return nil, err
	}
	return p.Checkout(ctx)
}

// defaultCredentialLocked determines the default credential once. A credential with only one of user and password
// set is checked by opening a connection and replaced by the null credential if that fails.
func (m *Manager) defaultCredentialLocked(ctx context.Context) Credential {
	if m.defaultCredChecked {
		return m.defaultCred
	}
	m.defaultCredChecked = true

	cred := m.config.configuredDefaultCredential()
	if (cred.User == "") != (cred.Password == "") {
		conn, err := m.config.Provider.Connect(ctx, cred)
		if err != nil {
			m.logger.Log(ctx, tracelog.LogLevelInfo, "incomplete default credential was rejected, using the provider default", map[string]any{"user": cred.String(), "err": err})
			cred = Credential{}
		} else if err := conn.Close(ctx); err != nil {
			m.logger.Log(ctx, tracelog.LogLevelDebug, "failed to close default credential check connection", map[string]any{"err": err})
		}
	}
	m.defaultCred = cred
	return cred
}

// ManagedCredentials returns the credentials that have a sub-pool.
func (m *Manager) ManagedCredentials() []Credential {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds := make([]Credential, 0, len(m.pools))
	for cred := range m.pools {
		creds = append(creds, cred)
	}
	return creds
}

// NumManagedCredentials returns the number of sub-pools.
func (m *Manager) NumManagedCredentials() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pools)
}

// SoftResetAll resets every sub-pool.
func (m *Manager) SoftResetAll() {
	for _, p := range m.snapshot() {
		p.Reset()
	}
}

func (m *Manager) snapshot() []*Pool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	return pools
}

func (m *Manager) forget(p *Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pools[p.cred] == p {
		delete(m.pools, p.cred)
	}
}

// Close closes every sub-pool and stops the background workers. If drain is true it waits for checked-out
// connections to be returned. Close is idempotent.
func (m *Manager) Close(drain bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.pools = make(map[Credential]*Pool)
	creating := make([]*poolCreation, 0, len(m.creating))
	for _, c := range m.creating {
		creating = append(creating, c)
	}
	m.mu.Unlock()

	// Pools still under construction close themselves once they see the manager is closed.
	for _, c := range creating {
		<-c.done
	}

	var g errgroup.Group
	for _, p := range pools {
		p := p
		g.Go(func() error {
			p.close(drain)
			return nil
		})
	}
	_ = g.Wait()

	m.runner.Close(!drain)
	if m.deferredRunner != nil {
		m.deferredRunner.Close(!drain)
	}
	m.scheduler.Stop()
	m.logger.Log(context.Background(), tracelog.LogLevelInfo, "manager closed", nil)
}
