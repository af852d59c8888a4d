package c3p0

import (
	"context"
	"errors"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

// ConnectionCustomizer observes physical connections over their lifetime. poolID identifies the sub-pool. Errors from
// OnDestroy, OnCheckOut and OnCheckIn are logged and ignored unless they wrap ErrIncompatibleConnection. An error from
// OnAcquire fails the acquisition.
type ConnectionCustomizer interface {
	OnAcquire(ctx context.Context, conn PhysicalConn, poolID string) error
	OnDestroy(ctx context.Context, conn PhysicalConn, poolID string) error
	OnCheckOut(ctx context.Context, conn PhysicalConn, poolID string) error
	OnCheckIn(ctx context.Context, conn PhysicalConn, poolID string) error
}

// NopConnectionCustomizer implements ConnectionCustomizer with no-ops. Embed it to implement only some hooks.
type NopConnectionCustomizer struct{}

func (NopConnectionCustomizer) OnAcquire(context.Context, PhysicalConn, string) error  { return nil }
func (NopConnectionCustomizer) OnDestroy(context.Context, PhysicalConn, string) error  { return nil }
func (NopConnectionCustomizer) OnCheckOut(context.Context, PhysicalConn, string) error { return nil }
func (NopConnectionCustomizer) OnCheckIn(context.Context, PhysicalConn, string) error  { return nil }

// runCustomizerHook logs and swallows err unless it wraps ErrIncompatibleConnection.
func runCustomizerHook(ctx context.Context, logger tracelog.Leveled, hook string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIncompatibleConnection) {
		return err
	}
	logger.Log(ctx, tracelog.LogLevelWarn, "connection customizer failed", map[string]any{"hook": hook, "err": err})
	return nil
}
