package share

import (
	"sort"
	"sync"
)

// Set is an in-memory collection of share descriptors keyed by mountpoint.
// It plays the framework role of owning descriptors for the agent and CLI.
type Set struct {
	mu     sync.Mutex
	shares map[string]*Share
}

func NewSet() *Set {
	return &Set{shares: map[string]*Share{}}
}

// Put returns the descriptor for a mountpoint, creating it if needed.
func (st *Set) Put(mountpoint string) *Share {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.shares[mountpoint]
	if !ok {
		s = &Share{Mountpoint: mountpoint}
		st.shares[mountpoint] = s
	}
	return s
}

// Get returns the descriptor for a mountpoint, or nil if unknown.
func (st *Set) Get(mountpoint string) *Share {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.shares[mountpoint]
}

// Remove drops the descriptor for a mountpoint.
func (st *Set) Remove(mountpoint string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.shares, mountpoint)
}

// All returns the descriptors ordered by mountpoint.
func (st *Set) All() []*Share {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Share, 0, len(st.shares))
	for _, s := range st.shares {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mountpoint < out[j].Mountpoint })
	return out
}
