package graph

import (
	"github.com/alextanhongpin/friendlist/domain"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Tx is a view of the graph valid only inside the Update callback that
// received it.
type Tx struct {
	g       *Graph
	changes []domain.Change
	closed  bool
}

func (tx *Tx) close() {
	tx.closed = true
}

func (tx *Tx) check() {
	if tx.closed {
		panic("graph: transaction used after Update returned")
	}
}

func (tx *Tx) ensure(id string) *friendSet {
	if set, ok := tx.g.users.Get(id); ok {
		return set
	}

	set := orderedmap.New[string, struct{}]()
	tx.g.users.Set(id, set)

	return set
}

// EnsureUser registers id with an empty friend set. Registering an existing
// user is a no-op.
func (tx *Tx) EnsureUser(id string) {
	tx.check()
	tx.ensure(id)
}

// FriendsOf returns the friends of id in insertion order, or
// domain.ErrUserNotFound if id was never registered.
func (tx *Tx) FriendsOf(id string) (domain.FriendList, error) {
	tx.check()

	set, ok := tx.g.users.Get(id)
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	friends := make(domain.FriendList, 0, set.Len())
	for pair := set.Oldest(); pair != nil; pair = pair.Next() {
		friends = append(friends, pair.Key)
	}

	return friends, nil
}

// AddFriendship creates the edge a-b on both sides. Self edges are dropped.
func (tx *Tx) AddFriendship(a, b string) {
	tx.check()

	if a == b {
		return
	}

	as := tx.ensure(a)
	bs := tx.ensure(b)

	_, existed := as.Set(b, struct{}{})
	bs.Set(a, struct{}{})
	if existed {
		return
	}

	tx.g.edges++
	tx.changes = append(tx.changes, domain.Change{
		Kind:   domain.ChangeBefriended,
		User:   a,
		Friend: b,
	})
}

// RemoveFriendship deletes the edge a-b if a lists b. The reverse side is
// cleaned up when present.
func (tx *Tx) RemoveFriendship(a, b string) {
	tx.check()

	as, ok := tx.g.users.Get(a)
	if !ok {
		return
	}
	if _, had := as.Delete(b); !had {
		return
	}

	if bs, ok := tx.g.users.Get(b); ok {
		bs.Delete(a)
	}

	tx.g.edges--
	tx.changes = append(tx.changes, domain.Change{
		Kind:   domain.ChangeUnfriended,
		User:   a,
		Friend: b,
	})
}

// BatchAddFriendships registers a and adds an edge to every peer, in order.
func (tx *Tx) BatchAddFriendships(a string, peers []string) {
	tx.check()

	tx.ensure(a)
	for _, p := range peers {
		tx.AddFriendship(a, p)
	}
}

func (tx *Tx) BatchRemoveFriendships(a string, peers []string) {
	tx.check()

	for _, p := range peers {
		tx.RemoveFriendship(a, p)
	}
}
