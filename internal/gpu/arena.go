package gpu

// Arena maps small integer ids to backend objects. Ids start at 1 so the
// zero id stays the null handle, and freed ids are reused.
type Arena[T any] struct {
	items []T
	live  []bool
	free  []uint32
}

// Put stores v and returns its id.
func (a *Arena[T]) Put(v T) uint32 {
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		a.items[id-1] = v
		a.live[id-1] = true
		return id
	}
	a.items = append(a.items, v)
	a.live = append(a.live, true)
	return uint32(len(a.items))
}

// Get returns the object for id. ok is false for the null id and for ids
// that were never issued or already taken.
func (a *Arena[T]) Get(id uint32) (v T, ok bool) {
	if id == 0 || int(id) > len(a.items) || !a.live[id-1] {
		return v, false
	}
	return a.items[id-1], true
}

// Take removes id and returns its object.
func (a *Arena[T]) Take(id uint32) (v T, ok bool) {
	v, ok = a.Get(id)
	if !ok {
		return v, false
	}
	var zero T
	a.items[id-1] = zero
	a.live[id-1] = false
	a.free = append(a.free, id)
	return v, true
}

// Len is the number of live entries.
func (a *Arena[T]) Len() int {
	return len(a.items) - len(a.free)
}

// Each calls fn for every live entry.
func (a *Arena[T]) Each(fn func(id uint32, v T)) {
	for i, ok := range a.live {
		if ok {
			fn(uint32(i+1), a.items[i])
		}
	}
}
