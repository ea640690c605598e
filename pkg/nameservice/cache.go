package nameservice

import (
	"sort"

	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

type cacheKey struct {
	guid      string
	transport wire.TransportMask
}

type cacheEntry struct {
	names    nameSet
	endpoint string
	timer    uint8
	priority uint32
	// expires is the tick at which the entry lapses, 0 for never.
	expires uint64
}

// cached is a snapshot of names leaving or entering the cache.
type cached struct {
	key      cacheKey
	names    []string
	endpoint string
	timer    uint8
	priority uint32
}

// answerCache remembers what remote daemons advertised, per GUID and
// transport.
type answerCache struct {
	entries map[cacheKey]*cacheEntry
}

func newAnswerCache() *answerCache {
	return &answerCache{entries: make(map[cacheKey]*cacheEntry)}
}

// answer describes one received answer after interest filtering.
type answer struct {
	key      cacheKey
	names    []string
	endpoint string
	timer    uint8
	complete bool
	priority uint32
	expires  uint64
}

// update applies an answer and returns the names that became visible, with
// their current endpoint, and the names that were withdrawn. Refreshing a
// known name at an unchanged endpoint only extends its lifetime.
func (c *answerCache) update(a answer) (fresh, gone []string) {
	e := c.entries[a.key]

	if a.timer == wire.TimerWithdraw {
		if e == nil {
			return nil, nil
		}
		for _, n := range a.names {
			if _, ok := e.names[n]; ok {
				delete(e.names, n)
				gone = append(gone, n)
			}
		}
		if len(e.names) == 0 {
			delete(c.entries, a.key)
		}
		return nil, gone
	}

	if e == nil {
		e = &cacheEntry{names: nameSet{}}
		c.entries[a.key] = e
	}
	moved := e.endpoint != a.endpoint
	e.endpoint = a.endpoint
	e.timer = a.timer
	e.priority = a.priority
	e.expires = a.expires

	incoming := nameSet{}
	for _, n := range a.names {
		incoming[n] = struct{}{}
		if _, ok := e.names[n]; !ok {
			e.names[n] = struct{}{}
			if !moved {
				fresh = append(fresh, n)
			}
		}
	}
	if a.complete {
		for n := range e.names {
			if _, ok := incoming[n]; !ok {
				delete(e.names, n)
				gone = append(gone, n)
			}
		}
		sort.Strings(gone)
	}
	if moved {
		fresh = e.names.sorted()
	}
	if len(e.names) == 0 {
		delete(c.entries, a.key)
	}
	return fresh, gone
}

// expire removes entries whose lifetime ended at or before now.
func (c *answerCache) expire(now uint64) []cached {
	var out []cached
	for k, e := range c.entries {
		if e.expires != 0 && e.expires <= now {
			out = append(out, snapshot(k, e))
			delete(c.entries, k)
		}
	}
	sortCached(out)
	return out
}

// removeGUID drops everything learned from guid.
func (c *answerCache) removeGUID(guid string) []cached {
	var out []cached
	for k, e := range c.entries {
		if k.guid == guid {
			out = append(out, snapshot(k, e))
			delete(c.entries, k)
		}
	}
	sortCached(out)
	return out
}

// match returns the cached names on transport t that pattern covers.
func (c *answerCache) match(t wire.TransportMask, pattern string) []cached {
	var out []cached
	for k, e := range c.entries {
		if k.transport != t {
			continue
		}
		var names []string
		for n := range e.names {
			if matchName(pattern, n) {
				names = append(names, n)
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			s := snapshot(k, e)
			s.names = names
			out = append(out, s)
		}
	}
	sortCached(out)
	return out
}

func (c *answerCache) len() int {
	n := 0
	for _, e := range c.entries {
		n += len(e.names)
	}
	return n
}

func snapshot(k cacheKey, e *cacheEntry) cached {
	return cached{key: k, names: e.names.sorted(), endpoint: e.endpoint, timer: e.timer, priority: e.priority}
}

func sortCached(cs []cached) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].key.guid != cs[j].key.guid {
			return cs[i].key.guid < cs[j].key.guid
		}
		return cs[i].key.transport < cs[j].key.transport
	})
}
