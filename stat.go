package c3p0

import (
	"time"

	"github.com/oss-evaluation-repository/swaldman-c3p0/taskrunner"
)

// PoolStat is a snapshot of one sub-pool. Statement cache counts are 0 without a cache. The destroyer counts are -1
// unless statements are closed by a deferred close runner.
type PoolStat struct {
	User string `json:"user"`

	NumConnections                 int `json:"numConnections"`
	NumIdleConnections             int `json:"numIdleConnections"`
	NumBusyConnections             int `json:"numBusyConnections"`
	NumUnclosedOrphanedConnections int `json:"numUnclosedOrphanedConnections"`
	NumPendingAcquires             int `json:"numPendingAcquires"`
	NumThreadsAwaitingCheckout     int `json:"numThreadsAwaitingCheckout"`
	TargetSize                     int `json:"targetSize"`

	NumAcquiredConnections  int64 `json:"numAcquiredConnections"`
	NumDestroyedConnections int64 `json:"numDestroyedConnections"`
	NumReclaimedConnections int64 `json:"numReclaimedConnections"`
	NumFailedCheckouts      int64 `json:"numFailedCheckouts"`
	NumFailedCheckins       int64 `json:"numFailedCheckins"`
	NumFailedIdleTests      int64 `json:"numFailedIdleTests"`

	LastAcquisitionFailure    string `json:"lastAcquisitionFailure,omitempty"`
	LastCheckoutFailure       string `json:"lastCheckoutFailure,omitempty"`
	LastCheckinFailure        string `json:"lastCheckinFailure,omitempty"`
	LastIdleTestFailure       string `json:"lastIdleTestFailure,omitempty"`
	LastConnectionTestFailure string `json:"lastConnectionTestFailure,omitempty"`

	Broken                 bool          `json:"broken"`
	StartTime              time.Time     `json:"startTime"`
	UpTime                 time.Duration `json:"upTime"`
	EffectivePropertyCycle time.Duration `json:"effectivePropertyCycle"`

	NumStatements                                      int `json:"numStatements"`
	NumStatementsCheckedOut                            int `json:"numStatementsCheckedOut"`
	NumConnectionsWithCachedStatements                 int `json:"numConnectionsWithCachedStatements"`
	NumInvalidatedStatements                           int `json:"numInvalidatedStatements"`
	StatementDestroyerNumConnectionsInUse              int `json:"statementDestroyerNumConnectionsInUse"`
	StatementDestroyerNumConnectionsWithDeferredCloses int `json:"statementDestroyerNumConnectionsWithDeferredCloses"`
	StatementDestroyerNumDeferredCloses                int `json:"statementDestroyerNumDeferredCloses"`
}

// Stat returns a snapshot of the pool.
func (p *Pool) Stat() PoolStat {
	rs := p.rp.Stat()
	s := PoolStat{
		User:                                  p.cred.String(),
		NumConnections:                        rs.TotalResources(),
		NumIdleConnections:                    rs.IdleResources(),
		NumBusyConnections:                    rs.CheckedOutResources(),
		NumUnclosedOrphanedConnections:        rs.OrphanedResources(),
		NumPendingAcquires:                    rs.PendingAcquires(),
		NumThreadsAwaitingCheckout:            rs.CheckoutWaiters(),
		TargetSize:                            rs.TargetSize(),
		NumAcquiredConnections:                rs.AcquireCount(),
		NumDestroyedConnections:               rs.DestroyCount(),
		NumReclaimedConnections:               rs.ReclaimedCount(),
		NumFailedCheckouts:                    rs.FailedCheckouts(),
		NumFailedCheckins:                     rs.FailedCheckins(),
		NumFailedIdleTests:                    rs.FailedIdleTests(),
		LastAcquisitionFailure:                errString(rs.LastAcquireFailure()),
		LastCheckoutFailure:                   errString(rs.LastCheckoutFailure()),
		LastCheckinFailure:                    errString(rs.LastCheckinFailure()),
		LastIdleTestFailure:                   errString(rs.LastIdleTestFailure()),
		Broken:                                rs.Broken(),
		StartTime:                             rs.StartTime(),
		UpTime:                                time.Since(rs.StartTime()),
		EffectivePropertyCycle:                rs.EffectiveExpirationEnforcementDelay(),
		StatementDestroyerNumConnectionsInUse: -1,
		StatementDestroyerNumConnectionsWithDeferredCloses: -1,
		StatementDestroyerNumDeferredCloses:                -1,
	}

	p.mu.Lock()
	s.LastConnectionTestFailure = errString(p.lastTestFailure)
	p.mu.Unlock()

	if c := p.scache; c != nil {
		s.NumStatements = c.NumStatements()
		s.NumStatementsCheckedOut = c.NumStatementsCheckedOut()
		s.NumConnectionsWithCachedStatements = c.NumConnectionsWithCachedStatements()
		s.NumInvalidatedStatements = c.NumInvalidated()
		s.StatementDestroyerNumConnectionsInUse = c.NumConnectionsInUse()
		s.StatementDestroyerNumConnectionsWithDeferredCloses = c.NumConnectionsWithDeferredCloses()
		s.StatementDestroyerNumDeferredCloses = c.NumDeferredCloses()
	}
	return s
}

// Stat is a snapshot of a Manager and all its sub-pools. The Num fields sum over the sub-pools.
type Stat struct {
	DataSourceName string        `json:"dataSourceName"`
	IdentityToken  string        `json:"identityToken"`
	StartTime      time.Time     `json:"startTime"`
	UpTime         time.Duration `json:"upTime"`
	NumUserPools   int           `json:"numUserPools"`

	NumConnections                 int   `json:"numConnections"`
	NumIdleConnections             int   `json:"numIdleConnections"`
	NumBusyConnections             int   `json:"numBusyConnections"`
	NumUnclosedOrphanedConnections int   `json:"numUnclosedOrphanedConnections"`
	NumThreadsAwaitingCheckout     int   `json:"numThreadsAwaitingCheckout"`
	NumFailedCheckouts             int64 `json:"numFailedCheckouts"`
	NumFailedCheckins              int64 `json:"numFailedCheckins"`
	NumFailedIdleTests             int64 `json:"numFailedIdleTests"`
	NumStatements                  int   `json:"numStatements"`

	HelperRunner        taskrunner.Stat  `json:"helperRunner"`
	DeferredCloseRunner *taskrunner.Stat `json:"deferredCloseRunner,omitempty"`

	Pools []PoolStat `json:"pools"`
}

// Stat returns a snapshot of the manager.
func (m *Manager) Stat() Stat {
	pools := m.snapshot()
	s := Stat{
		DataSourceName: m.DataSourceName(),
		IdentityToken:  m.id,
		StartTime:      m.startTime,
		UpTime:         time.Since(m.startTime),
		NumUserPools:   len(pools),
		HelperRunner:   m.runner.Stat(),
		Pools:          make([]PoolStat, 0, len(pools)),
	}
	if m.deferredRunner != nil {
		rs := m.deferredRunner.Stat()
		s.DeferredCloseRunner = &rs
	}

	for _, p := range pools {
		ps := p.Stat()
		s.NumConnections += ps.NumConnections
		s.NumIdleConnections += ps.NumIdleConnections
		s.NumBusyConnections += ps.NumBusyConnections
		s.NumUnclosedOrphanedConnections += ps.NumUnclosedOrphanedConnections
		s.NumThreadsAwaitingCheckout += ps.NumThreadsAwaitingCheckout
		s.NumFailedCheckouts += ps.NumFailedCheckouts
		s.NumFailedCheckins += ps.NumFailedCheckins
		s.NumFailedIdleTests += ps.NumFailedIdleTests
		s.NumStatements += ps.NumStatements
		s.Pools = append(s.Pools, ps)
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
