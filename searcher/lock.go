package searcher

// Reserve takes exclusive expansion rights on n. It fails if another worker
// holds n or n is fully explored. Lock mutexes are only ever acquired from a
// node toward its ancestors.
func (n *Node) Reserve() bool {
	n.lockMu.Lock()
	defer n.lockMu.Unlock()
	return n.reserve(false)
}

// ReserveExpandable is Reserve for a caller about to expand n. It also fails
// when n has no untried actions once the reservation is held, since another
// worker may have expanded the last one after the caller looked.
func (n *Node) ReserveExpandable() bool {
	n.lockMu.Lock()
	defer n.lockMu.Unlock()
	if !n.reserve(false) {
		return false
	}
	if n.UntriedCount() > 0 {
		return true
	}
	n.release()
	return false
}

func (n *Node) reserve(implicit bool) bool {
	if n.explored.Load() || n.locked.Load() {
		return false
	}
	n.locked.Store(true)
	n.implicit = implicit
	if n.parent != nil {
		n.parent.propagateLock()
	}
	return true
}

// saturated reports whether nothing under n is available to other workers:
// no untried actions and every child locked or fully explored, with at least
// one child locked.
func (n *Node) saturated() bool {
	n.RLock()
	defer n.RUnlock()
	if !n.untried.IsEmpty() {
		return false
	}
	anyLocked := false
	for _, c := range n.children {
		locked := c.locked.Load()
		if !locked && !c.explored.Load() {
			return false
		}
		anyLocked = anyLocked || locked
	}
	return anyLocked
}

func (n *Node) propagateLock() {
	n.lockMu.Lock()
	defer n.lockMu.Unlock()
	if n.saturated() {
		n.reserve(true)
	}
}

// Release gives up expansion rights on n. A node whose children are all
// unavailable stays locked on their behalf until one of them frees up.
func (n *Node) Release() {
	n.lockMu.Lock()
	defer n.lockMu.Unlock()
	n.release()
}

func (n *Node) release() {
	if !n.locked.Load() {
		return
	}
	if n.saturated() {
		n.implicit = true
		return
	}
	n.locked.Store(false)
	n.implicit = false
	if n.parent != nil {
		n.parent.propagateUnlock()
	}
}

func (n *Node) propagateUnlock() {
	n.lockMu.Lock()
	defer n.lockMu.Unlock()
	// Only locks taken on behalf of children are dropped here; a worker's own
	// reservation is released by that worker.
	if !n.locked.Load() || !n.implicit {
		return
	}
	n.release()
}

// LockedNodes returns every locked node in n's subtree.
func (n *Node) LockedNodes() []*Node {
	var locked []*Node
	n.Walk(func(cur *Node) bool {
		if cur.Locked() {
			locked = append(locked, cur)
		}
		return true
	})
	return locked
}
