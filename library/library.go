// Package library holds the shader assets available to the mixer: the
// built-in samples, user additions, and imports from files, Shadertoy
// export bundles, and the Shadertoy API.
package library

import (
	"fmt"
	"sort"
	"sync"

	"github.com/richinsley/goshadermixer/shader"
)

// Asset is an immutable shader source with display metadata.
type Asset struct {
	ID          string
	Name        string
	Category    string
	Description string
	Source      string
	Provenance  shader.Provenance
	Custom      bool
}

// Defaults for fields an added asset leaves empty.
const (
	DefaultName        = "Custom Shader"
	DefaultCategory    = "custom"
	DefaultDescription = "Custom shader code"
)

// Library is a set of assets in insertion order. It is safe for concurrent
// use.
type Library struct {
	mu     sync.RWMutex
	assets map[string]Asset
	order  []string
	seq    int
}

// New returns a library preloaded with the built-in assets.
func New() *Library {
	l := Empty()
	for _, a := range Builtins() {
		l.put(a)
	}
	return l
}

// Empty returns a library with no assets.
func Empty() *Library {
	return &Library{assets: make(map[string]Asset)}
}

func (l *Library) put(a Asset) {
	if _, ok := l.assets[a.ID]; !ok {
		l.order = append(l.order, a.ID)
	}
	l.assets[a.ID] = a
}

// Add stores a custom asset and returns it with its ID and defaults filled
// in. An empty ID is replaced with the next "custom-N".
func (l *Library) Add(a Asset) Asset {
	l.mu.Lock()
	defer l.mu.Unlock()

	if a.ID == "" {
		for {
			l.seq++
			a.ID = fmt.Sprintf("custom-%d", l.seq)
			if _, taken := l.assets[a.ID]; !taken {
				break
			}
		}
	}
	if a.Name == "" {
		a.Name = DefaultName
	}
	if a.Category == "" {
		a.Category = DefaultCategory
	}
	if a.Description == "" {
		a.Description = DefaultDescription
	}
	a.Provenance = shader.DetectProvenance(a.Source)
	a.Custom = true
	l.put(a)
	return a
}

// Get looks up an asset by ID.
func (l *Library) Get(id string) (Asset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[id]
	return a, ok
}

// Remove deletes an asset and reports whether it existed.
func (l *Library) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.assets[id]; !ok {
		return false
	}
	delete(l.assets, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns every asset in insertion order.
func (l *Library) All() []Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Asset, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.assets[id])
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (l *Library) Categories() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]bool)
	var cats []string
	for _, a := range l.assets {
		if !seen[a.Category] {
			seen[a.Category] = true
			cats = append(cats, a.Category)
		}
	}
	sort.Strings(cats)
	return cats
}
