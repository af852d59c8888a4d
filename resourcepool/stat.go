package resourcepool

import "time"

// Stat is a snapshot of pool statistics.
type Stat struct {
	managed         int
	idle            int
	checkedOut      int
	orphaned        int
	pendingAcquires int
	waiters         int
	target          int
	broken          bool

	acquireCount    int64
	destroyCount    int64
	reclaimedCount  int64
	failedCheckouts int64
	failedCheckins  int64
	failedIdleTests int64

	lastAcquireFailure  error
	lastCheckoutFailure error
	lastCheckinFailure  error
	lastIdleTestFailure error

	startTime       time.Time
	expirationDelay time.Duration
}

// TotalResources returns the number of resources currently managed, including checked-out resources excluded by a
// reset or MarkBroken.
func (s *Stat) TotalResources() int { return s.managed }

func (s *Stat) IdleResources() int { return s.idle }

func (s *Stat) CheckedOutResources() int { return s.checkedOut }

// OrphanedResources returns the number of checked-out resources that will be destroyed on checkin.
func (s *Stat) OrphanedResources() int { return s.orphaned }

func (s *Stat) PendingAcquires() int { return s.pendingAcquires }

func (s *Stat) CheckoutWaiters() int { return s.waiters }

// TargetSize returns the size the pool is currently growing or shrinking toward.
func (s *Stat) TargetSize() int { return s.target }

func (s *Stat) Broken() bool { return s.broken }

// AcquireCount returns the cumulative count of successful resource acquisitions.
func (s *Stat) AcquireCount() int64 { return s.acquireCount }

func (s *Stat) DestroyCount() int64 { return s.destroyCount }

// ReclaimedCount returns the cumulative count of checked-out resources destroyed as overdue.
func (s *Stat) ReclaimedCount() int64 { return s.reclaimedCount }

func (s *Stat) FailedCheckouts() int64 { return s.failedCheckouts }

func (s *Stat) FailedCheckins() int64 { return s.failedCheckins }

func (s *Stat) FailedIdleTests() int64 { return s.failedIdleTests }

func (s *Stat) LastAcquireFailure() error { return s.lastAcquireFailure }

func (s *Stat) LastCheckoutFailure() error { return s.lastCheckoutFailure }

func (s *Stat) LastCheckinFailure() error { return s.lastCheckinFailure }

func (s *Stat) LastIdleTestFailure() error { return s.lastIdleTestFailure }

func (s *Stat) StartTime() time.Time { return s.startTime }

// EffectiveExpirationEnforcementDelay returns the period of the expiration sweep, or 0 if no sweep runs.
func (s *Stat) EffectiveExpirationEnforcementDelay() time.Duration { return s.expirationDelay }
