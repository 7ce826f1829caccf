package incentive

// undoLog holds the values a multi-step trigger overwrote, so a failure in a
// later step can put the store back as it was.
type undoLog struct {
	pools      map[PoolID]priorPool
	boundaries map[tickSlot]priorBoundary
}

type priorPool struct {
	state  poolState
	exists bool
}

type priorBoundary struct {
	boundary Boundary
	exists   bool
}

// begin starts recording overwritten pool and boundary state.
func (s *Store) begin() {
	s.undo = &undoLog{
		pools:      make(map[PoolID]priorPool),
		boundaries: make(map[tickSlot]priorBoundary),
	}
}

// commit keeps everything written since begin.
func (s *Store) commit() {
	s.undo = nil
}

// rollback restores what was overwritten since begin. It is a no-op after
// commit.
func (s *Store) rollback() {
	if s.undo == nil {
		return
	}
	for id, prior := range s.undo.pools {
		if !prior.exists {
			delete(s.pools, id)
			continue
		}
		restored := prior.state
		s.pools[id] = &restored
	}
	for slot, prior := range s.undo.boundaries {
		if !prior.exists {
			delete(s.boundaries, slot)
			continue
		}
		s.boundaries[slot] = prior.boundary
	}
	s.undo = nil
}

// notePool records a pool's state before its first write since begin.
func (s *Store) notePool(id PoolID) {
	if s.undo == nil {
		return
	}
	if _, ok := s.undo.pools[id]; ok {
		return
	}
	ps, ok := s.pools[id]
	if !ok {
		s.undo.pools[id] = priorPool{}
		return
	}
	prior := *ps
	prior.global = orZero(ps.global)
	prior.rate = orZero(ps.rate)
	s.undo.pools[id] = priorPool{state: prior, exists: true}
}

func (s *Store) setBoundary(slot tickSlot, b Boundary) {
	if s.undo != nil {
		if _, ok := s.undo.boundaries[slot]; !ok {
			prev, exists := s.boundaries[slot]
			s.undo.boundaries[slot] = priorBoundary{boundary: prev, exists: exists}
		}
	}
	s.boundaries[slot] = b
}
