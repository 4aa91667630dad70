// Package peer fetches friend lists from other instances of this service.
//
// Each fetch opens a new connection, sends one HTTP/1.0 GET for
// /friends?user=<id> and reads exactly Content-Length bytes of body.
package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/alextanhongpin/friendlist/domain"
	"github.com/alextanhongpin/friendlist/pkg/metrics"
)

const (
	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	ErrMissingContentLength = errors.New("peer: missing content length")
	ErrBodyTooLarge         = errors.New("peer: body too large")
	ErrTruncatedBody        = errors.New("peer: truncated body")
)

type Kind int

const (
	KindUnavailable Kind = iota + 1
	KindMalformed
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindMalformed:
		return "malformed"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Error is returned for every failed fetch.
type Error struct {
	Kind Kind
	Peer domain.Peer
	User string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("peer: %s: fetch friends of %q from %s: %v",
		e.Kind, e.User, net.JoinHostPort(e.Peer.Host, e.Peer.Port), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var _ domain.PeerFetcher = (*Client)(nil)

type Client struct {
	Timeout      time.Duration
	MaxBodyBytes int64

	dialer *net.Dialer
	logger *slog.Logger
}

func New(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		Timeout:      timeout,
		MaxBodyBytes: maxBodyBytes,
		dialer:       &net.Dialer{},
		logger:       logger.With("component", "peer"),
	}
}

// FetchFriends returns the friend list of user as served by the peer.
func (c *Client) FetchFriends(ctx context.Context, p domain.Peer, user string) (domain.FriendList, error) {
	start := time.Now()

	friends, err := c.fetch(ctx, p, user)

	outcome := "ok"
	var perr *Error
	if errors.As(err, &perr) {
		outcome = perr.Kind.String()
	}
	metrics.RecordPeerFetch(outcome, time.Since(start).Seconds())

	if err != nil {
		c.logger.Warn("fetch failed", "host", p.Host, "port", p.Port, "user", user, "error", err)
		return nil, err
	}

	c.logger.Debug("fetched friends", "host", p.Host, "port", p.Port, "user", user, "count", len(friends))

	return friends, nil
}

func (c *Client) fetch(ctx context.Context, p domain.Peer, user string) (domain.FriendList, error) {
	fail := func(kind Kind, err error) error {
		return &Error{Kind: kind, Peer: p, User: user, Err: err}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	addr := net.JoinHostPort(p.Host, p.Port)
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fail(KindUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	target := "/friends?user=" + url.QueryEscape(user)
	if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.0\r\nHost: %s\r\n\r\n", target, addr); err != nil {
		return nil, fail(KindUnavailable, err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return nil, fail(classify(err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(KindStatus, fmt.Errorf("unexpected status %q", resp.Status))
	}
	if resp.ContentLength < 0 {
		return nil, fail(KindMalformed, ErrMissingContentLength)
	}

	limit := c.MaxBodyBytes
	if limit <= 0 {
		limit = maxBodyBytes
	}
	if resp.ContentLength > limit {
		return nil, fail(KindMalformed, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, resp.ContentLength))
	}

	body := make([]byte, resp.ContentLength)
	if _, err := io.ReadFull(resp.Body, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fail(KindMalformed, fmt.Errorf("%w: %v", ErrTruncatedBody, err))
		}
		return nil, fail(classify(err), err)
	}

	return domain.ParseFriendList(string(body)), nil
}

// classify maps transport failures to KindUnavailable and everything else,
// such as a garbled status line or header block, to KindMalformed.
func classify(err error) Kind {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindUnavailable
	}
	return KindMalformed
}
