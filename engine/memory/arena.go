package memory

// Arena tracks the buffers rented during one scoped operation so a single
// deferred Release returns all of them, whatever path the operation exits on.
// An Arena is not safe for concurrent use.
type Arena struct {
	pool   *BufferPool
	rented [][]byte
}

func (bp *BufferPool) NewArena() *Arena {
	return &Arena{pool: bp}
}

func (a *Arena) Rent(n int) ([]byte, error) {
	buf, err := a.pool.Rent(n)
	if err != nil {
		return nil, err
	}
	a.rented = append(a.rented, buf)
	return buf, nil
}

// Detach stops tracking buf; the caller becomes responsible for returning it.
func (a *Arena) Detach(buf []byte) bool {
	for i, b := range a.rented {
		if sameBacking(b, buf) {
			a.rented = append(a.rented[:i], a.rented[i+1:]...)
			return true
		}
	}
	return false
}

// Release returns every tracked buffer to the pool. Safe to call more than once.
func (a *Arena) Release() {
	for _, b := range a.rented {
		a.pool.Return(b)
	}
	a.rented = a.rented[:0]
}

func sameBacking(a, b []byte) bool {
	a = a[:cap(a)]
	b = b[:cap(b)]
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return &a[0] == &b[0]
}
