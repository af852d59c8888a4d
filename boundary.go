package c3p0

import (
	"context"
	"sync"

	"github.com/oss-evaluation-repository/swaldman-c3p0/tracelog"
)

type sessionStrategy int

const (
	sessionNone sessionStrategy = iota
	sessionNative
	sessionAdapter
)

func (s sessionStrategy) String() string {
	switch s {
	case sessionNative:
		return "native"
	case sessionAdapter:
		return "adapter"
	default:
		return "none"
	}
}

// sessionBoundaries marks request boundaries on checkout and checkin. The strategy is negotiated once, on the first
// connection the sub-pool acquires.
type sessionBoundaries struct {
	once     sync.Once
	strategy sessionStrategy
	adapter  SessionAdapter
}

func (s *sessionBoundaries) negotiate(ctx context.Context, p *Pool, conn PhysicalConn) {
	s.once.Do(func() {
		mode := p.cfg.MarkSessionBoundaries
		switch {
		case mode == MarkSessionBoundariesNever:
			return
		case mode == MarkSessionBoundariesIfNoStatementCache && p.scache != nil:
			p.logger.Log(ctx, tracelog.LogLevelDebug, "statement cache enabled, not marking session boundaries", nil)
			return
		}

		if _, ok := conn.(SessionMarker); ok {
			s.strategy = sessionNative
		} else if adapter, ok := p.provider.(SessionAdapter); ok && adapter.SupportsSessionBoundaries(conn) {
			s.strategy = sessionAdapter
			s.adapter = adapter
		} else {
			p.logger.Log(ctx, tracelog.LogLevelWarn, "connections do not support session boundaries", nil)
		}
		p.logger.Log(ctx, tracelog.LogLevelDebug, "session boundary strategy", map[string]any{"strategy": s.strategy.String()})
	})
}

func (s *sessionBoundaries) begin(ctx context.Context, conn PhysicalConn) error {
	switch s.strategy {
	case sessionNative:
		if m, ok := conn.(SessionMarker); ok {
			return m.BeginRequest(ctx)
		}
	case sessionAdapter:
		return s.adapter.BeginRequest(ctx, conn)
	}
	return nil
}

func (s *sessionBoundaries) end(ctx context.Context, conn PhysicalConn) error {
	switch s.strategy {
	case sessionNative:
		if m, ok := conn.(SessionMarker); ok {
			return m.EndRequest(ctx)
		}
	case sessionAdapter:
		return s.adapter.EndRequest(ctx, conn)
	}
	return nil
}
