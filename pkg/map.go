package pkg

type Map[K comparable, V any] map[K]V

func (m Map[K, V]) Get(key K) V {
	return m[key]
}

func (m Map[K, V]) Set(key K, value V) {
	m[key] = value
}

func (m Map[K, V]) Has(key K) bool {
	_, ok := m[key]
	return ok
}

func (m Map[K, V]) Delete(key K) {
	delete(m, key)
}

func (m Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Copy returns a shallow copy. Used for snapshot handoff: the copy can be
// read without holding the owner's lock while the original keeps mutating.
func (m Map[K, V]) Copy() Map[K, V] {
	c := make(Map[K, V], len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
