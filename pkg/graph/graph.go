// Package graph implements the friend graph: a registry of users to their
// friend sets, serialized by a single lock.
//
// Every friendship is stored on both sides. A user never appears in its own
// friend set. Users are created lazily the first time an operation names them
// and are never removed.
package graph

import (
	"sync"

	"github.com/alextanhongpin/friendlist/domain"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// friendSet preserves insertion order for rendering.
type friendSet = orderedmap.OrderedMap[string, struct{}]

type Option func(*Graph)

// WithObserver registers an observer for committed changes.
func WithObserver(o domain.ChangeObserver) Option {
	return func(g *Graph) {
		g.observers = append(g.observers, o)
	}
}

type Graph struct {
	mu        sync.Mutex
	users     *orderedmap.OrderedMap[string, *friendSet]
	edges     int
	observers []domain.ChangeObserver

	// committed numbers each batch of changes under mu. Batches are handed
	// to observers strictly in that order.
	committed  uint64
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	delivered  uint64
}

func New(opts ...Option) *Graph {
	g := &Graph{
		users: orderedmap.New[string, *friendSet](),
	}
	g.notifyCond = sync.NewCond(&g.notifyMu)
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// AddObserver registers an observer after construction.
func (g *Graph) AddObserver(o domain.ChangeObserver) {
	g.mu.Lock()
	g.observers = append(g.observers, o)
	g.mu.Unlock()
}

// Update runs fn with the graph lock held for its whole duration. Changes
// made by fn are kept even if fn returns an error. Observers are notified
// after the lock is released, one batch at a time and in commit order.
// Observers must not modify the graph.
func (g *Graph) Update(fn func(tx *Tx) error) error {
	seq, changes, observers, err := g.update(fn)
	if len(changes) == 0 {
		return err
	}

	g.notifyMu.Lock()
	for g.delivered+1 != seq {
		g.notifyCond.Wait()
	}
	g.notifyMu.Unlock()

	defer func() {
		g.notifyMu.Lock()
		g.delivered = seq
		g.notifyMu.Unlock()
		g.notifyCond.Broadcast()
	}()

	for _, o := range observers {
		o.Observe(changes)
	}

	return err
}

func (g *Graph) update(fn func(tx *Tx) error) (uint64, []domain.Change, []domain.ChangeObserver, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tx := &Tx{g: g}
	defer tx.close()

	err := fn(tx)

	var seq uint64
	if len(tx.changes) > 0 {
		g.committed++
		seq = g.committed
	}

	return seq, tx.changes, g.observers, err
}

func (g *Graph) EnsureUser(id string) {
	_ = g.Update(func(tx *Tx) error {
		tx.EnsureUser(id)
		return nil
	})
}

func (g *Graph) FriendsOf(id string) (friends domain.FriendList, err error) {
	_ = g.Update(func(tx *Tx) error {
		friends, err = tx.FriendsOf(id)
		return nil
	})
	return
}

func (g *Graph) AddFriendship(a, b string) {
	_ = g.Update(func(tx *Tx) error {
		tx.AddFriendship(a, b)
		return nil
	})
}

func (g *Graph) RemoveFriendship(a, b string) {
	_ = g.Update(func(tx *Tx) error {
		tx.RemoveFriendship(a, b)
		return nil
	})
}

func (g *Graph) BatchAddFriendships(a string, peers []string) {
	_ = g.Update(func(tx *Tx) error {
		tx.BatchAddFriendships(a, peers)
		return nil
	})
}

func (g *Graph) BatchRemoveFriendships(a string, peers []string) {
	_ = g.Update(func(tx *Tx) error {
		tx.BatchRemoveFriendships(a, peers)
		return nil
	})
}

// Stats reports the number of registered users and undirected edges.
func (g *Graph) Stats() (users, edges int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.users.Len(), g.edges
}
