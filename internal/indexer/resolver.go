package indexer

import "sync"

// nameIndex maps a declared symbol's bare name to the symbol IDs that
// declare it, so the analyzer's cross-file call resolution (C7's Resolver)
// has something to resolve against. internal/graph.Graph keeps no such
// index itself (confirmed by reading graph.go: only the ID-keyed symbols
// map) so the indexer, which already has every symbol in hand right after
// analysis, builds and maintains one incrementally per file.
type nameIndex struct {
	mu      sync.RWMutex
	byName  map[string][]string            // name -> symbol ids, across all files
	byFile  map[string]map[string]struct{} // file path -> set of symbol ids it owns
}

func newNameIndex() *nameIndex {
	return &nameIndex{
		byName: make(map[string][]string),
		byFile: make(map[string]map[string]struct{}),
	}
}

// Resolve implements analyze.Resolver: the first declaration registered
// under name wins, an intentional heuristic since true cross-file
// resolution would require import-aware scoping the analyzer doesn't have.
func (n *nameIndex) Resolve(name string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ids, ok := n.byName[name]
	if !ok || len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// replaceFile drops path's previously indexed names and installs the new
// set, mirroring graph.Graph.ReplaceFile's atomic-per-file swap so the name
// index never drifts out of sync with the graph it backs.
func (n *nameIndex) replaceFile(path string, names []nameEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if owned, ok := n.byFile[path]; ok {
		for id := range owned {
			n.removeIDLocked(id)
		}
	}

	owned := make(map[string]struct{}, len(names))
	for _, e := range names {
		n.byName[e.Name] = append(n.byName[e.Name], e.ID)
		owned[e.ID] = struct{}{}
	}
	n.byFile[path] = owned
}

// nameEntry is the (name, id) pair recorded for one symbol.
type nameEntry struct {
	Name string
	ID   string
}

func (n *nameIndex) removeIDLocked(id string) {
	for name, ids := range n.byName {
		filtered := ids[:0]
		for _, existing := range ids {
			if existing != id {
				filtered = append(filtered, existing)
			}
		}
		if len(filtered) == 0 {
			delete(n.byName, name)
		} else {
			n.byName[name] = filtered
		}
	}
}
