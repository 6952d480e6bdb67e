package proc

// Stoppoint is a location in the target where execution can be stopped.
type Stoppoint[I comparable] interface {
	ID() I
	Address() VirtualAddress
	IsEnabled() bool
	// Deallocate releases whatever the stoppoint installed in the target.
	// It is called when the stoppoint is removed from its collection.
	Deallocate() error
}

// StoppointCollection owns a set of stoppoints, kept in insertion order.
// Lookups are linear, collections are expected to be small.
type StoppointCollection[I comparable, T Stoppoint[I]] struct {
	points []T
}

// Push adds sp to the collection and returns it.
func (c *StoppointCollection[I, T]) Push(sp T) T {
	c.points = append(c.points, sp)
	return sp
}

func (c *StoppointCollection[I, T]) indexByID(id I) int {
	for i := range c.points {
		if c.points[i].ID() == id {
			return i
		}
	}
	return -1
}

func (c *StoppointCollection[I, T]) indexByAddress(addr VirtualAddress) int {
	for i := range c.points {
		if c.points[i].Address() == addr {
			return i
		}
	}
	return -1
}

func (c *StoppointCollection[I, T]) ContainsID(id I) bool {
	return c.indexByID(id) >= 0
}

func (c *StoppointCollection[I, T]) ContainsAddress(addr VirtualAddress) bool {
	return c.indexByAddress(addr) >= 0
}

// EnabledStoppointAtAddress returns true if there is an enabled stoppoint
// at addr.
func (c *StoppointCollection[I, T]) EnabledStoppointAtAddress(addr VirtualAddress) bool {
	i := c.indexByAddress(addr)
	return i >= 0 && c.points[i].IsEnabled()
}

func (c *StoppointCollection[I, T]) GetByID(id I) (T, error) {
	i := c.indexByID(id)
	if i < 0 {
		var zero T
		return zero, StoppointNotFoundError{Key: id}
	}
	return c.points[i], nil
}

func (c *StoppointCollection[I, T]) GetByAddress(addr VirtualAddress) (T, error) {
	i := c.indexByAddress(addr)
	if i < 0 {
		var zero T
		return zero, StoppointNotFoundError{Key: addr}
	}
	return c.points[i], nil
}

// RemoveByID deallocates the stoppoint with the given id and removes it.
// If deallocation fails the stoppoint stays in the collection.
func (c *StoppointCollection[I, T]) RemoveByID(id I) error {
	i := c.indexByID(id)
	if i < 0 {
		return StoppointNotFoundError{Key: id}
	}
	return c.removeAt(i)
}

// RemoveByAddress deallocates the stoppoint at addr and removes it.
// If deallocation fails the stoppoint stays in the collection.
func (c *StoppointCollection[I, T]) RemoveByAddress(addr VirtualAddress) error {
	i := c.indexByAddress(addr)
	if i < 0 {
		return StoppointNotFoundError{Key: addr}
	}
	return c.removeAt(i)
}

func (c *StoppointCollection[I, T]) removeAt(i int) error {
	if err := c.points[i].Deallocate(); err != nil {
		return err
	}
	copy(c.points[i:], c.points[i+1:])
	var zero T
	c.points[len(c.points)-1] = zero
	c.points = c.points[:len(c.points)-1]
	return nil
}

// ForEach calls fn on every stoppoint in insertion order. fn may modify
// the stoppoints but must not add or remove any.
func (c *StoppointCollection[I, T]) ForEach(fn func(T)) {
	for _, sp := range c.points {
		fn(sp)
	}
}

// All returns a snapshot of the stoppoints in insertion order.
func (c *StoppointCollection[I, T]) All() []T {
	r := make([]T, len(c.points))
	copy(r, c.points)
	return r
}

func (c *StoppointCollection[I, T]) Len() int {
	return len(c.points)
}

func (c *StoppointCollection[I, T]) Empty() bool {
	return len(c.points) == 0
}

// Deallocate deallocates and removes every stoppoint. The first error is
// returned, stoppoints that failed to deallocate are kept.
func (c *StoppointCollection[I, T]) Deallocate() error {
	var firstErr error
	kept := c.points[:0]
	for _, sp := range c.points {
		if err := sp.Deallocate(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			kept = append(kept, sp)
		}
	}
	for i := len(kept); i < len(c.points); i++ {
		var zero T
		c.points[i] = zero
	}
	c.points = kept
	return firstErr
}
