package workspace

import (
	"sync"
)

/*
	RevisionMap remembers, per workspace, the short hash of the commit
	last checked out there.  Keys are workspace paths relative to the
	workspace root ("github.com/polydawn/rio/head").

	It lives only in memory.  After a restart entries come back as
	workspaces are opened again; until then, translated locations carry
	the raw revision segment of the path instead.
*/
type RevisionMap struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewRevisionMap() *RevisionMap {
	return &RevisionMap{m: make(map[string]string)}
}

func (r *RevisionMap) Set(workspace string, shortHash string) {
	r.mu.Lock()
	r.m[workspace] = shortHash
	r.mu.Unlock()
}

func (r *RevisionMap) Get(workspace string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[workspace]
	return v, ok
}

// Copy of the current entries.
func (r *RevisionMap) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}
