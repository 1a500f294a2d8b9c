// Package registry implements the artefact repository (static declarations)
// and live instance registry (C6), split as spec.md §4.6 describes and
// ported from original_source's src/repository/artefact.rs Repository and
// Registry types. The declaration Repository reuses the teacher's generic
// pkg/repo.Repository[T,ID] interface shape with a fresh in-memory backing
// store (the teacher's Neo4j-backed implementation has no role here).
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/fluxcore/fluxcore/pkg/url"
)

// Artefact is any declared, spawnable resource: a compiled pipeline query,
// an on-ramp/off-ramp config, or a binding declaration.
type Artefact interface {
	// Equal reports whether two declarations are identical, used to make
	// PublishArtefact idempotent on a re-publish of the same declaration.
	Equal(other Artefact) bool
}

// Spawner constructs a live instance (an Address) from a declared
// Artefact; registered per ResourceType so Registry.EnsureInstance can
// dispatch without a type switch over every kind.
type Spawner func(ctx context.Context, decl Artefact, u url.TremorURL) (Address, error)

// Address is the live handle to a spawned artefact instance: a pipeline
// actor's mailbox, an on-ramp/off-ramp driver handle, or (for bindings,
// which are pure) a clone of the declaration itself.
type Address interface {
	// Link applies a mapping delegated from the binding resolver; it
	// returns only an error.
	Link(ctx context.Context, mappings map[url.TremorURL][]url.TremorURL) error
	// Unlink is the inverse of Link; returns true once this address's
	// connection set is empty, signalling it may be torn down.
	Unlink(ctx context.Context, mappings map[url.TremorURL][]url.TremorURL) (empty bool, err error)
}

// ErrConflict reports publishing a URL already bound to a different
// declaration.
type ErrConflict struct{ URL url.TremorURL }

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("registry: %s already published with a different declaration", e.URL)
}

// ErrInUse reports unpublishing an artefact that still has live instances.
type ErrInUse struct{ URL url.TremorURL }

func (e *ErrInUse) Error() string {
	return fmt.Sprintf("registry: %s has live instances, unpublish refused", e.URL)
}

// ErrNotFound reports a lookup miss.
type ErrNotFound struct{ URL url.TremorURL }

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("registry: %s not found", e.URL)
}

// Repository holds static artefact declarations keyed by their
// artefact-scoped TremorURL (instance/port trimmed).
type Repository struct {
	mu    sync.RWMutex
	decls map[string]Artefact
	// refs counts live instances per artefact URL, gating Unpublish.
	refs map[string]int
}

// NewRepository constructs an empty, in-memory Repository.
func NewRepository() *Repository {
	return &Repository{decls: map[string]Artefact{}, refs: map[string]int{}}
}

// PublishArtefact inserts decl under u (trimmed to artefact scope).
// Re-publishing an identical declaration is a no-op (idempotent);
// publishing a different declaration under the same URL is ErrConflict.
func (r *Repository) PublishArtefact(u url.TremorURL, decl Artefact) error {
	key := u.TrimToArtefact().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.decls[key]; ok {
		if existing.Equal(decl) {
			return nil
		}
		return &ErrConflict{URL: u}
	}
	r.decls[key] = decl
	return nil
}

// FindArtefact looks up a declaration by its artefact-scoped URL.
func (r *Repository) FindArtefact(u url.TremorURL) (Artefact, bool) {
	key := u.TrimToArtefact().String()
	r.mu.RLock()
	defer r.mu.RUnlock()
	decl, ok := r.decls[key]
	return decl, ok
}

// UnpublishArtefact removes a declaration, refusing if any live instance
// still references it.
func (r *Repository) UnpublishArtefact(u url.TremorURL) error {
	key := u.TrimToArtefact().String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.decls[key]; !ok {
		return &ErrNotFound{URL: u}
	}
	if r.refs[key] > 0 {
		return &ErrInUse{URL: u}
	}
	delete(r.decls, key)
	delete(r.refs, key)
	return nil
}

func (r *Repository) incRef(u url.TremorURL) {
	key := u.TrimToArtefact().String()
	r.mu.Lock()
	r.refs[key]++
	r.mu.Unlock()
}

func (r *Repository) decRef(u url.TremorURL) {
	key := u.TrimToArtefact().String()
	r.mu.Lock()
	if r.refs[key] > 0 {
		r.refs[key]--
	}
	r.mu.Unlock()
}

// Registry is the actor-style owner of live instances: changes to the
// instance map serialize through a single mutex (the Address Link/Unlink
// calls themselves run outside it), mirroring the teacher's single-goroutine-owns-state pattern used
// elsewhere (and the original's message-passing Registry actor).
type Registry struct {
	mu        sync.Mutex
	repo      *Repository
	spawners  map[url.ResourceType]Spawner
	instances map[string]Address
}

// NewRegistry constructs a Registry backed by repo, with spawners
// registered per resource type (see pkg/ramp and pkg/pipeline for the
// concrete Spawner implementations wired at startup).
func NewRegistry(repo *Repository, spawners map[url.ResourceType]Spawner) *Registry {
	return &Registry{repo: repo, spawners: spawners, instances: map[string]Address{}}
}

// EnsureInstance returns the live Address for u's instance, spawning it
// from the repository declaration on first use.
func (reg *Registry) EnsureInstance(ctx context.Context, u url.TremorURL) (Address, error) {
	// Ensure operates at instance scope; the port (if any) only matters
	// once we get to Link, so it is dropped here rather than required.
	u = u.TrimToInstance()
	key := u.String()

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if addr, ok := reg.instances[key]; ok {
		return addr, nil
	}

	decl, ok := reg.repo.FindArtefact(u)
	if !ok {
		return nil, &ErrNotFound{URL: u}
	}
	spawner, ok := reg.spawners[u.Type]
	if !ok {
		return nil, fmt.Errorf("registry: no spawner registered for resource type %s", u.Type)
	}
	addr, err := spawner(ctx, decl, u)
	if err != nil {
		return nil, fmt.Errorf("registry: spawn %s: %w", u, err)
	}
	reg.instances[key] = addr
	reg.repo.incRef(u)
	return addr, nil
}

// Link ensures src then delegates to its Address's Link implementation.
func (reg *Registry) Link(ctx context.Context, src url.TremorURL, mappings map[url.TremorURL][]url.TremorURL) error {
	addr, err := reg.EnsureInstance(ctx, src)
	if err != nil {
		return err
	}
	return addr.Link(ctx, mappings)
}

// Unlink delegates to src's Address's Unlink; if the address reports its
// connection set is now empty, the instance is removed from the registry
// and the artefact's reference count is decremented.
func (reg *Registry) Unlink(ctx context.Context, src url.TremorURL, mappings map[url.TremorURL][]url.TremorURL) error {
	key := src.TrimToInstance().String()
	reg.mu.Lock()
	addr, ok := reg.instances[key]
	reg.mu.Unlock()
	if !ok {
		return &ErrNotFound{URL: src}
	}
	empty, err := addr.Unlink(ctx, mappings)
	if err != nil {
		return err
	}
	if empty {
		reg.mu.Lock()
		delete(reg.instances, key)
		reg.mu.Unlock()
		reg.repo.decRef(src)
	}
	return nil
}

// Lookup returns the live Address for an already-ensured instance, under
// the same mutex the mutating operations take.
func (reg *Registry) Lookup(u url.TremorURL) (Address, bool) {
	key := u.TrimToInstance().String()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	addr, ok := reg.instances[key]
	return addr, ok
}
