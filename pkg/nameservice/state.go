package nameservice

import (
	"path"
	"sort"
	"strings"

	"github.com/DeBrosOfficial/nameservice/pkg/wire"
)

// transports lists the single-transport bits a mask is split into.
var transports = []wire.TransportMask{wire.TransportTCP, wire.TransportUDP}

// eachTransport calls f for every single transport bit set in mask.
func eachTransport(mask wire.TransportMask, f func(t wire.TransportMask)) {
	for _, t := range transports {
		if mask.Has(t) {
			f(t)
		}
	}
}

type nameSet map[string]struct{}

func (s nameSet) sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// transportState holds the names one transport advertises and seeks.
type transportState struct {
	loud  nameSet
	quiet nameSet
	finds nameSet
}

// state is the advertisement/query state. The engine guards it with mu.
type state struct {
	byTransport map[wire.TransportMask]*transportState
}

func newState() *state {
	s := &state{byTransport: make(map[wire.TransportMask]*transportState)}
	for _, t := range transports {
		s.byTransport[t] = &transportState{loud: nameSet{}, quiet: nameSet{}, finds: nameSet{}}
	}
	return s
}

// advertise adds name to the loud or quiet set of every transport in mask.
// A name lives in at most one of the two sets per transport. It reports the
// transports whose sets changed.
func (s *state) advertise(mask wire.TransportMask, name string, quiet bool) wire.TransportMask {
	var changed wire.TransportMask
	eachTransport(mask, func(t wire.TransportMask) {
		ts := s.byTransport[t]
		add, del := ts.loud, ts.quiet
		if quiet {
			add, del = ts.quiet, ts.loud
		}
		if _, ok := add[name]; ok {
			return
		}
		delete(del, name)
		add[name] = struct{}{}
		changed |= t
	})
	return changed
}

// cancelAdvertise removes name from both sets. It reports the transports
// that had it.
func (s *state) cancelAdvertise(mask wire.TransportMask, name string) wire.TransportMask {
	var changed wire.TransportMask
	eachTransport(mask, func(t wire.TransportMask) {
		ts := s.byTransport[t]
		_, loud := ts.loud[name]
		_, quiet := ts.quiet[name]
		if loud || quiet {
			delete(ts.loud, name)
			delete(ts.quiet, name)
			changed |= t
		}
	})
	return changed
}

// find registers a search pattern. It reports the transports where the
// pattern is new.
func (s *state) find(mask wire.TransportMask, pattern string) wire.TransportMask {
	var changed wire.TransportMask
	eachTransport(mask, func(t wire.TransportMask) {
		ts := s.byTransport[t]
		if _, ok := ts.finds[pattern]; !ok {
			ts.finds[pattern] = struct{}{}
			changed |= t
		}
	})
	return changed
}

func (s *state) cancelFind(mask wire.TransportMask, pattern string) wire.TransportMask {
	var changed wire.TransportMask
	eachTransport(mask, func(t wire.TransportMask) {
		ts := s.byTransport[t]
		if _, ok := ts.finds[pattern]; ok {
			delete(ts.finds, pattern)
			changed |= t
		}
	})
	return changed
}

func (s *state) loudNames(t wire.TransportMask) []string {
	return s.byTransport[t].loud.sorted()
}

func (s *state) findPatterns(t wire.TransportMask) []string {
	return s.byTransport[t].finds.sorted()
}

// advertised reports whether name is advertised, loudly or quietly, on any
// transport in mask.
func (s *state) advertised(mask wire.TransportMask, name string) bool {
	found := false
	eachTransport(mask, func(t wire.TransportMask) {
		ts := s.byTransport[t]
		if _, ok := ts.loud[name]; ok {
			found = true
		}
		if _, ok := ts.quiet[name]; ok {
			found = true
		}
	})
	return found
}

// matchAdvertised returns the local names on transport t matched by any of
// the requested patterns.
func (s *state) matchAdvertised(t wire.TransportMask, patterns []string) []string {
	ts := s.byTransport[t]
	out := nameSet{}
	for _, set := range []nameSet{ts.loud, ts.quiet} {
		for name := range set {
			for _, p := range patterns {
				if matchName(p, name) {
					out[name] = struct{}{}
					break
				}
			}
		}
	}
	return out.sorted()
}

// interesting returns the names on transport t that some local find covers.
func (s *state) interesting(t wire.TransportMask, names []string) []string {
	ts := s.byTransport[t]
	var out []string
	for _, n := range names {
		for p := range ts.finds {
			if matchName(p, n) {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func (s *state) empty() bool {
	for _, ts := range s.byTransport {
		if len(ts.loud)+len(ts.quiet)+len(ts.finds) > 0 {
			return false
		}
	}
	return true
}

// matchName matches a bus name against a pattern where '*' and '?' are
// wildcards. Bus names contain no '/' or '\\', so path.Match applies as is.
func matchName(pattern, name string) bool {
	if !isWildcard(pattern) {
		return pattern == name
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

func isWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}
