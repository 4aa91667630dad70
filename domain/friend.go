package domain

import (
	"context"
	"errors"
	"strings"
)

var ErrUserNotFound = errors.New("domain: user not found")

// FriendList is an ordered sequence of user identifiers. On the wire it is
// the identifiers joined by a newline.
type FriendList []string

// ParseFriendList splits a newline-separated parameter value. Empty entries
// and trailing carriage returns are dropped.
func ParseFriendList(s string) FriendList {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, "\n")
	out := make(FriendList, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSuffix(p, "\r")
		if p == "" {
			continue
		}
		out = append(out, p)
	}

	return out
}

func (l FriendList) String() string {
	return strings.Join(l, "\n")
}

// Without returns a copy of the list with every occurrence of id removed.
func (l FriendList) Without(id string) FriendList {
	out := make(FriendList, 0, len(l))
	for _, f := range l {
		if f != id {
			out = append(out, f)
		}
	}
	return out
}

type ChangeKind string

var (
	ChangeBefriended ChangeKind = "befriended"
	ChangeUnfriended ChangeKind = "unfriended"
)

// Change describes one edge that was created or removed.
type Change struct {
	Kind   ChangeKind `json:"type"`
	User   string     `json:"user"`
	Friend string     `json:"friend"`
}

// Involves reports whether the change touches the given user on either side.
func (c Change) Involves(user string) bool {
	return c.User == user || c.Friend == user
}

// Peer is another instance of this service.
type Peer struct {
	Host string
	Port string
}

// PeerFetcher fetches a user's friend list from a peer instance.
type PeerFetcher interface {
	FetchFriends(ctx context.Context, peer Peer, user string) (FriendList, error)
}

// ChangeObserver is notified of committed graph changes, after the graph lock
// has been released.
type ChangeObserver interface {
	Observe(changes []Change)
}

type ChangeObserverFunc func(changes []Change)

func (f ChangeObserverFunc) Observe(changes []Change) {
	f(changes)
}
