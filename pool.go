package c3p0

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0/resourcepool"
	"github.com/oss-evaluation-repository/swaldman-c3p0/stmtcache"
	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// Pool is the sub-pool of connections for one credential. Pools are created by a Manager.
type Pool struct {
	manager    *Manager
	id         string
	cred       Credential
	cfg        PoolConfig
	provider   Provider
	strategy   testStrategy
	customizer ConnectionCustomizer
	session    sessionBoundaries
	logger     tracelog.Leveled

	rp     *resourcepool.Pool[*pooledConn]
	scache *stmtcache.Cache[*pooledConn]

	mu              sync.Mutex
	resurrectable   map[*pooledConn]struct{}
	lastTestFailure error
	closeOnce       sync.Once
}

// newPool builds the sub-pool for cred. isDefault reports whether cred is the manager's default credential.
func newPool(ctx context.Context, m *Manager, cred Credential, isDefault bool) (*Pool, error) {
	logger := m.logger.With(map[string]any{"user": cred.String()})

	cfg, err := m.config.resolvePoolConfig(ctx, cred, logger)
	if err != nil {
		return nil, err
	}

	query := cfg.PreferredTestQuery
	if cfg.AutomaticTestTable != "" {
		tableQuery, err := initAutomaticTestTable(ctx, m.config.Provider, cred, cfg.AutomaticTestTable)
		if err != nil {
			return nil, err
		}
		if query != "" {
			logger.Log(ctx, tracelog.LogLevelWarn, "automaticTestTable overrides preferredTestQuery", map[string]any{"preferredTestQuery": query, "automaticTestTable": cfg.AutomaticTestTable})
		}
		query = tableQuery
	} else if !isDefault {
		if err := ensureFirstAcquisition(ctx, m.config.Provider, cred); err != nil {
			return nil, err
		}
	}

	strategy, err := selectTestStrategy(ctx, &cfg, query, m.registry, logger)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		manager:       m,
		id:            m.id + "/" + cred.String(),
		cred:          cred,
		cfg:           cfg,
		provider:      m.config.Provider,
		strategy:      strategy,
		logger:        logger,
		resurrectable: make(map[*pooledConn]struct{}),
	}

	if cfg.ConnectionCustomizerName != "" {
		customizer, ok := m.registry.ConnectionCustomizer(cfg.ConnectionCustomizerName)
		if !ok {
			return nil, &ConfigurationError{Property: "connectionCustomizerName", Msg: "no connection customizer registered as " + cfg.ConnectionCustomizerName}
		}
		p.customizer = customizer
	}

	scacheConfig := stmtcache.Config{
		MaxStatements:              cfg.MaxStatements,
		MaxStatementsPerConnection: cfg.MaxStatementsPerConnection,
		DeferredCloseRunner:        m.deferredRunner,
		Logger:                     logger,
	}
	if scacheConfig.Enabled() {
		p.scache, err = stmtcache.New[*pooledConn](p.prepareStatement, scacheConfig)
		if err != nil {
			return nil, err
		}
	}

	p.rp, err = resourcepool.New[*pooledConn]((*lifecycle)(p), resourcepool.Config{
		MinSize:                    cfg.MinPoolSize,
		MaxSize:                    cfg.MaxPoolSize,
		StartSize:                  cfg.InitialPoolSize,
		IncrementSize:              cfg.AcquireIncrement,
		IdleTestPeriod:             cfg.IdleConnectionTestPeriod,
		MaxIdleTime:                cfg.MaxIdleTime,
		ExcessMaxIdleTime:          cfg.MaxIdleTimeExcessConnections,
		MaxAge:                     cfg.MaxConnectionAge,
		ExpirationEnforcementDelay: cfg.PropertyCycle,
		DestroyOverdueTime:         cfg.UnreturnedConnectionTimeout,
		DebugStoreCheckoutStack:    cfg.DebugUnreturnedConnectionStackTraces,
		ForceSynchronousCheckins:   cfg.ForceSynchronousCheckins,
		AcquireRetryAttempts:       cfg.AcquireRetryAttempts,
		AcquireRetryDelay:          cfg.AcquireRetryDelay,
		BreakOnAcquireFailure:      cfg.BreakAfterAcquireFailure,
		Runner:                     m.runner,
		Scheduler:                  m.scheduler,
		Logger:                     logger,
		Label:                      p.id,
	})
	if err != nil {
		return nil, &ConfigurationError{Msg: "cannot build pool", Err: err}
	}

	logger.Log(ctx, tracelog.LogLevelInfo, "pool created", map[string]any{
		"minPoolSize":     cfg.MinPoolSize,
		"maxPoolSize":     cfg.MaxPoolSize,
		"initialPoolSize": cfg.InitialPoolSize,
		"statementCache":  scacheConfig.Enabled(),
	})
	return p, nil
}

// ensureFirstAcquisition opens and closes a connection as cred so a bad credential fails pool construction rather
// than every later checkout.
func ensureFirstAcquisition(ctx context.Context, provider Provider, cred Credential) error {
	conn, err := provider.Connect(ctx, cred)
	if err != nil {
		return &AcquireError{User: cred.String(), Err: err}
	}
	return conn.Close(ctx)
}

// ID identifies the pool in logs and to connection customizers.
func (p *Pool) ID() string { return p.id }

// Credential returns the credential connections are opened with.
func (p *Pool) Credential() Credential { return p.cred }

// Config returns the resolved tunables of the pool.
func (p *Pool) Config() PoolConfig { return p.cfg }

// Checkout returns a connection. It waits up to CheckoutTimeout, or indefinitely if that is 0, or until ctx is done.
// The connection must be returned with Conn.Close.
func (p *Pool) Checkout(ctx context.Context) (*Conn, error) {
	for {
		pc, err := p.rp.Checkout(ctx, p.cfg.CheckoutTimeout)
		if err != nil {
			return nil, p.checkoutError(err)
		}

		if p.scache != nil {
			pc.mu.Lock()
			pc.marked = p.scache.TryMarkConnectionInUse(pc)
			marked := pc.marked
			pc.mu.Unlock()

			// The statement cache is still closing statements on this connection. Put it back and take another.
			if !marked {
				if err := p.rp.Checkin(pc); err != nil {
					p.logger.Log(ctx, tracelog.LogLevelDebug, "failed to return busy connection", map[string]any{"err": err})
				}
				continue
			}
		}

		return &Conn{pool: p, pc: pc}, nil
	}
}

func (p *Pool) checkoutError(err error) error {
	var acquireErr *resourcepool.AcquireError
	switch {
	case errors.Is(err, resourcepool.ErrTimeout):
		return &TimeoutError{Timeout: p.cfg.CheckoutTimeout}
	case errors.Is(err, resourcepool.ErrClosed):
		return ErrClosed
	case errors.Is(err, resourcepool.ErrBroken):
		return &AcquireError{User: p.cred.String(), Broken: true, Err: p.rp.Stat().LastAcquireFailure()}
	case errors.As(err, &acquireErr):
		return &AcquireError{User: p.cred.String(), Err: acquireErr.Err}
	default:
		return err
	}
}

func (p *Pool) checkin(ctx context.Context, pc *pooledConn) error {
	err := p.rp.Checkin(pc)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, resourcepool.ErrClosed):
		p.logger.Log(ctx, tracelog.LogLevelDebug, "connection returned to closed pool", nil)
		return nil
	default:
		rse := &ResourceStateError{Msg: "checkin of a connection the pool does not manage", Err: err}
		p.logger.Log(ctx, tracelog.LogLevelError, "invalid checkin", map[string]any{"err": err})
		return rse
	}
}

// handleConnError classifies an error raised by a checked-out connection and invalidates it accordingly.
func (p *Pool) handleConnError(ctx context.Context, pc *pooledConn, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	p.invalidate(ctx, pc, classifyError(err, pc.physical, p.provider), err)
}

func (p *Pool) invalidate(ctx context.Context, pc *pooledConn, result TestResult, err error) {
	switch result {
	case ConnectionInvalid:
		if p.cfg.AttemptResurrectOnCheckin {
			p.logger.Log(ctx, tracelog.LogLevelDebug, "connection invalidated, will retest on checkin", map[string]any{"err": err})
			p.markResurrectable(pc)
			return
		}
		p.logger.Log(ctx, tracelog.LogLevelDebug, "connection invalidated", map[string]any{"err": err})
		if markErr := p.rp.MarkBroken(pc); markErr != nil {
			p.logger.Log(ctx, tracelog.LogLevelDebug, "failed to mark connection broken", map[string]any{"err": markErr})
		}
	case DatabaseInvalid:
		p.logger.Log(ctx, tracelog.LogLevelWarn, "database invalidated, resetting pool", map[string]any{"err": err})
		p.Reset()
	}
}

// Reset destroys every connection and repopulates the pool. Idle connections are closed immediately and checked-out
// connections when they are returned. Reset also clears a broken pool.
func (p *Pool) Reset() {
	if p.rp != nil {
		p.rp.Reset()
	}
}

// Close closes the pool and removes it from its Manager. If drain is true Close waits for checked-out connections to
// be returned. Otherwise they are closed immediately.
func (p *Pool) Close(drain bool) {
	p.manager.forget(p)
	p.close(drain)
}

func (p *Pool) close(drain bool) {
	p.closeOnce.Do(func() {
		p.rp.Close(drain)
		if p.scache != nil {
			if err := p.scache.Close(context.Background()); err != nil {
				p.logger.Log(context.Background(), tracelog.LogLevelDebug, "failed to close statement cache", map[string]any{"err": err})
			}
		}
		p.logger.Log(context.Background(), tracelog.LogLevelInfo, "pool closed", nil)
	})
}

// EffectivePropertyCycle returns the period of the expiration sweep, or 0 if none runs.
func (p *Pool) EffectivePropertyCycle() time.Duration {
	return p.rp.EffectiveExpirationEnforcementDelay()
}
