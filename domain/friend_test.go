package domain_test

import (
	"testing"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/stretchr/testify/assert"
)

func TestParseFriendList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want domain.FriendList
	}{
		{"empty", "", nil},
		{"single", "bob", domain.FriendList{"bob"}},
		{"many", "bob\ncarol", domain.FriendList{"bob", "carol"}},
		{"blank lines", "\nbob\n\ncarol\n", domain.FriendList{"bob", "carol"}},
		{"crlf", "bob\r\ncarol", domain.FriendList{"bob", "carol"}},
		{"keeps order and duplicates", "carol\nbob\ncarol", domain.FriendList{"carol", "bob", "carol"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.ParseFriendList(tt.in)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFriendListString(t *testing.T) {
	assert.Equal(t, "", domain.FriendList(nil).String())
	assert.Equal(t, "bob\ncarol", domain.FriendList{"bob", "carol"}.String())
}

func TestFriendListWithout(t *testing.T) {
	l := domain.FriendList{"alice", "bob", "alice"}
	assert.Equal(t, domain.FriendList{"bob"}, l.Without("alice"))
	assert.Equal(t, domain.FriendList{"alice", "bob", "alice"}, l)
}

func TestChangeInvolves(t *testing.T) {
	c := domain.Change{Kind: domain.ChangeBefriended, User: "alice", Friend: "bob"}
	assert.True(t, c.Involves("alice"))
	assert.True(t, c.Involves("bob"))
	assert.False(t, c.Involves("carol"))
}
