package usecase

import (
	"context"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/alextanhongpin/friendlist/pkg/graph"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches bounds the crawls of a single introduce call.
const maxConcurrentFetches = 8

// FriendService runs each route as one step against the graph. An empty user
// is treated as an empty operation: nothing is touched and nothing returned.
type FriendService struct {
	graph *graph.Graph
	peers domain.PeerFetcher
}

func NewFriendService(g *graph.Graph, peers domain.PeerFetcher) *FriendService {
	return &FriendService{
		graph: g,
		peers: peers,
	}
}

// FindFriendsFor registers user if needed and returns its friends.
func (f *FriendService) FindFriendsFor(user string) domain.FriendList {
	if user == "" {
		return nil
	}

	var friends domain.FriendList
	_ = f.graph.Update(func(tx *graph.Tx) error {
		tx.EnsureUser(user)
		friends = mustFriendsOf(tx, user)
		return nil
	})

	return friends
}

// Befriend connects user with every listed friend and returns the resulting
// friend list of user.
func (f *FriendService) Befriend(user string, friends domain.FriendList) domain.FriendList {
	if user == "" {
		return nil
	}

	var result domain.FriendList
	_ = f.graph.Update(func(tx *graph.Tx) error {
		tx.BatchAddFriendships(user, friends.Without(user))
		result = mustFriendsOf(tx, user)
		return nil
	})

	return result
}

// Unfriend removes the edges between user and every listed friend and
// returns the resulting friend list of user.
func (f *FriendService) Unfriend(user string, friends domain.FriendList) domain.FriendList {
	if user == "" {
		return nil
	}

	var result domain.FriendList
	_ = f.graph.Update(func(tx *graph.Tx) error {
		tx.EnsureUser(user)
		tx.BatchRemoveFriendships(user, friends)
		result = mustFriendsOf(tx, user)
		return nil
	})

	return result
}

// Introduce fetches the friend lists of the given friends from the peer and
// befriends user with all of them. The fetches run without the graph lock.
// If any fetch fails the graph is left untouched and the error returned.
//
// No edge between user and the introduced friends themselves is created.
func (f *FriendService) Introduce(ctx context.Context, user string, friends domain.FriendList, p domain.Peer) (domain.FriendList, error) {
	if user == "" {
		return nil, nil
	}

	fetched := make([]domain.FriendList, len(friends))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, friend := range friends {
		g.Go(func() error {
			list, err := f.peers.FetchFriends(gctx, p, friend)
			if err != nil {
				return err
			}
			fetched[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var result domain.FriendList
	_ = f.graph.Update(func(tx *graph.Tx) error {
		tx.EnsureUser(user)
		for _, list := range fetched {
			tx.BatchAddFriendships(user, list.Without(user))
		}
		result = mustFriendsOf(tx, user)
		return nil
	})

	return result, nil
}

// mustFriendsOf is only called after user was registered in the same
// transaction.
func mustFriendsOf(tx *graph.Tx, user string) domain.FriendList {
	friends, err := tx.FriendsOf(user)
	if err != nil {
		panic(err)
	}
	return friends
}
