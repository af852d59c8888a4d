package stmtcache

// NumStatements returns the number of cached statements.
func (c *Cache[C]) NumStatements() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.global.Len()
}

// NumStatementsCheckedOut returns the number of statements currently lent out, cached or not.
func (c *Cache[C]) NumStatementsCheckedOut() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.uncached)
	for el := c.global.Front(); el != nil; el = el.Next() {
		if el.Value.(*entry[C]).checkedOut {
			n++
		}
	}
	return n
}

func (c *Cache[C]) NumConnectionsWithCachedStatements() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byConn)
}

func (c *Cache[C]) NumStatementsFor(conn C) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l := c.byConn[conn]; l != nil {
		return l.Len()
	}
	return 0
}

// NumInvalidated returns the number of evicted statements waiting for CloseInvalidated.
func (c *Cache[C]) NumInvalidated() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, stmts := range c.invalidated {
		n += len(stmts)
	}
	return n
}

// NumConnectionsInUse returns the number of connections marked in use, or -1 without a deferred-close runner.
func (c *Cache[C]) NumConnectionsInUse() int {
	if !c.Cautious() {
		return -1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inUse)
}

// NumConnectionsWithDeferredCloses returns the number of connections with statement closes pending, or -1 without a
// deferred-close runner.
func (c *Cache[C]) NumConnectionsWithDeferredCloses() int {
	if !c.Cautious() {
		return -1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deferred)
}

// NumDeferredCloses returns the number of pending statement closes, or -1 without a deferred-close runner.
func (c *Cache[C]) NumDeferredCloses() int {
	if !c.Cautious() {
		return -1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, count := range c.deferred {
		n += count
	}
	return n
}
