package reader

// table is an id-keyed map that preserves insertion order. Finder scoring
// breaks ties by insertion order, so plain Go maps are not enough.
type table[T any] struct {
	byID  map[string]T
	order []string
}

func newTable[T any]() *table[T] {
	return &table[T]{byID: make(map[string]T)}
}

// put inserts v under id unless the id is already present. First write wins,
// matching the per-workspace/per-team store merge behavior.
func (t *table[T]) put(id string, v T) {
	if id == "" {
		return
	}
	if _, ok := t.byID[id]; ok {
		return
	}
	t.byID[id] = v
	t.order = append(t.order, id)
}

// replace overwrites id regardless of presence, keeping the original
// insertion position when the id already exists.
func (t *table[T]) replace(id string, v T) {
	if id == "" {
		return
	}
	if _, ok := t.byID[id]; !ok {
		t.order = append(t.order, id)
	}
	t.byID[id] = v
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.byID[id]
	return v, ok
}

func (t *table[T]) has(id string) bool {
	_, ok := t.byID[id]
	return ok
}

func (t *table[T]) len() int { return len(t.byID) }

// Values returns all entries in insertion order.
func (t *table[T]) Values() []T {
	out := make([]T, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

func (t *table[T]) ids() []string {
	return append([]string(nil), t.order...)
}

// filter keeps only the entries keep reports true for, preserving order.
func (t *table[T]) filter(keep func(id string, v T) bool) {
	kept := make([]string, 0, len(t.order))
	for _, id := range t.order {
		v := t.byID[id]
		if keep(id, v) {
			kept = append(kept, id)
		} else {
			delete(t.byID, id)
		}
	}
	t.order = kept
}
