package bytecode

import (
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru"
)

// defaultCacheSize bounds how many distinct binaries' header tables a
// Loader keeps parsed. A vat typically dispatches many messages against
// a handful of binaries, so this is deliberately small.
const defaultCacheSize = 64

// Loader parses container headers, memoizing the result per binary.
// Per §4.6 step 1, the scheduler parses header tables on every message
// dispatch; the tables are small, but re-walking them on a hot path is
// wasted work once a binary has been seen — see SPEC_FULL.md §4.4.
type Loader struct {
	cache *lru.Cache
}

// NewLoader creates a Loader with the default cache size.
func NewLoader() *Loader {
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		// lru.New only errors on a non-positive size, which is a
		// programmer error, not a runtime condition.
		panic(err)
	}
	return &Loader{cache: cache}
}

// Load parses raw, returning a cached *Binary if raw's digest was seen
// before. The cache key only ever saves re-parsing work; it never
// changes what Load returns for a given input.
func (l *Loader) Load(raw []byte) (*Binary, error) {
	key := digest(raw)
	if cached, ok := l.cache.Get(key); ok {
		return cached.(*Binary), nil
	}

	bin, err := Load(raw)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, bin)
	return bin, nil
}

func digest(raw []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(raw)
	return h.Sum64()
}
