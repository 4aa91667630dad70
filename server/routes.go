package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/alextanhongpin/friendlist/pkg/peer"
	"github.com/julienschmidt/httprouter"
)

// placeholder is served for any unknown path.
const placeholder = "alice\nbob"

type FriendService interface {
	FindFriendsFor(user string) domain.FriendList
	Befriend(user string, friends domain.FriendList) domain.FriendList
	Unfriend(user string, friends domain.FriendList) domain.FriendList
	Introduce(ctx context.Context, user string, friends domain.FriendList, p domain.Peer) (domain.FriendList, error)
}

var routeNames = map[string]string{
	"/friends":   "friends",
	"/befriend":  "befriend",
	"/unfriend":  "unfriend",
	"/introduce": "introduce",
}

func routeName(path string) string {
	if name, ok := routeNames[path]; ok {
		return name
	}
	return "default"
}

// NewRouter returns the friend protocol routes. Parameters are read from the
// request form: the URI query and, for form-encoded POSTs, the body.
func NewRouter(svc FriendService) http.Handler {
	router := httprouter.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleMethodNotAllowed = false
	router.HandleOPTIONS = false

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		router.Handle(method, "/friends", newHandleFriends(svc))
		router.Handle(method, "/befriend", newHandleBefriend(svc))
		router.Handle(method, "/unfriend", newHandleUnfriend(svc))
		router.Handle(method, "/introduce", newHandleIntroduce(svc))
	}
	router.NotFound = http.HandlerFunc(handleDefault)

	return router
}

func newHandleFriends(svc FriendService) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeFriends(w, svc.FindFriendsFor(r.FormValue("user")))
	}
}

func newHandleBefriend(svc FriendService) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		friends := domain.ParseFriendList(r.FormValue("friends"))
		writeFriends(w, svc.Befriend(r.FormValue("user"), friends))
	}
}

func newHandleUnfriend(svc FriendService) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		friends := domain.ParseFriendList(r.FormValue("friends"))
		writeFriends(w, svc.Unfriend(r.FormValue("user"), friends))
	}
}

func newHandleIntroduce(svc FriendService) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		p := domain.Peer{
			Host: r.FormValue("host"),
			Port: r.FormValue("port"),
		}
		friends := domain.ParseFriendList(r.FormValue("friend"))

		result, err := svc.Introduce(r.Context(), r.FormValue("user"), friends, p)
		if err != nil {
			var perr *peer.Error
			if errors.As(err, &perr) {
				clientError(w, http.StatusBadGateway, perr.Error(), "Friendlist could not fetch friends from the peer")
				return
			}

			clientError(w, http.StatusInternalServerError, err.Error(), "Friendlist failed to introduce friends")
			return
		}

		writeFriends(w, result)
	}
}

func handleDefault(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", contentType)
	io.WriteString(w, placeholder)
}

func writeFriends(w http.ResponseWriter, friends domain.FriendList) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, friends.String())
}
