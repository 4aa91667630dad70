package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/alextanhongpin/friendlist/pkg/metrics"
	"github.com/google/uuid"
)

const (
	lingerTimeout  = 500 * time.Millisecond
	maxLingerBytes = 256 << 10
)

// protocolError is a malformed or unsupported request. It is answered with
// an error page before any routing happens.
type protocolError struct {
	status  int
	cause   string
	longmsg string
}

func (e *protocolError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.status, e.longmsg, e.cause)
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	logger := s.logger.With(
		slog.String("conn_id", uuid.New().String()),
		slog.String("remote_addr", conn.RemoteAddr().String()),
	)
	logger.Info("accepted connection")

	start := time.Now()
	br := bufio.NewReader(conn)

	if s.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(start.Add(s.opts.ReadTimeout))
	}

	res, route := s.handle(conn, br, logger)
	if res == nil {
		return
	}
	conn.SetReadDeadline(time.Time{})

	status := res.statusCode()
	if err := res.writeTo(conn, s.opts.Name); err != nil {
		// The client went away; nothing else to do for this connection.
		logger.Warn("write response failed", slog.String("error", err.Error()))
	}
	metrics.RecordRequest(route, strconv.Itoa(status), time.Since(start).Seconds())

	logger.Info("request served",
		slog.String("route", route),
		slog.Int("status", status),
		slog.Duration("elapsed", time.Since(start)),
	)

	linger(conn, br)
}

// handle reads one request and produces its response. A nil response means
// the connection ended before a request line arrived.
func (s *Server) handle(conn net.Conn, br *bufio.Reader, logger *slog.Logger) (*response, string) {
	res := newResponse()

	req, err := s.readRequest(br)
	if err != nil {
		var perr *protocolError
		if errors.As(err, &perr) {
			logger.Info("rejected request",
				slog.Int("status", perr.status),
				slog.String("cause", perr.cause),
			)
			clientError(res, perr.status, perr.cause, perr.longmsg)
			return res, "error"
		}

		if !errors.Is(err, io.EOF) {
			logger.Warn("read request failed", slog.String("error", err.Error()))
		}
		return nil, ""
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	defer cancel()

	req = req.WithContext(ctx)
	req.RemoteAddr = conn.RemoteAddr().String()

	if err := req.ParseForm(); err != nil {
		logger.Debug("malformed form", slog.String("error", err.Error()))
	}
	logger.Debug("request",
		slog.String("method", req.Method),
		slog.String("uri", req.RequestURI),
		slog.Any("form", req.Form),
	)

	s.dispatch(res, req, logger)

	return res, routeName(req.URL.Path)
}

func (s *Server) dispatch(res *response, req *http.Request, logger *slog.Logger) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("handler panicked",
				slog.Any("panic", v),
				slog.String("stack", string(debug.Stack())),
			)

			res.reset()
			clientError(res, http.StatusInternalServerError, req.URL.Path, "Friendlist failed to handle the request")
		}
	}()

	s.handler.ServeHTTP(res, req)
}

func (s *Server) readRequest(br *bufio.Reader) (*http.Request, error) {
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}

	method, uri, version, ok := parseRequestLine(line)
	if !ok {
		return nil, &protocolError{
			status:  http.StatusBadRequest,
			cause:   line,
			longmsg: "Friendlist did not recognize the request",
		}
	}

	proto := strings.ToUpper(version)
	if proto != "HTTP/1.0" && proto != "HTTP/1.1" {
		return nil, &protocolError{
			status:  http.StatusNotImplemented,
			cause:   version,
			longmsg: "Friendlist does not implement that version",
		}
	}

	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, &protocolError{
			status:  http.StatusNotImplemented,
			cause:   method,
			longmsg: "Friendlist does not implement that method",
		}
	}

	header, err := tp.ReadMIMEHeader()
	// A client may half-close right after the request line.
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &protocolError{
			status:  http.StatusBadRequest,
			cause:   err.Error(),
			longmsg: "Friendlist could not read the request headers",
		}
	}

	u, err := url.ParseRequestURI(uri)
	if err != nil {
		return nil, &protocolError{
			status:  http.StatusBadRequest,
			cause:   uri,
			longmsg: "Friendlist did not recognize the request target",
		}
	}

	major, minor, _ := http.ParseHTTPVersion(proto)
	req := &http.Request{
		Method:     method,
		URL:        u,
		Proto:      proto,
		ProtoMajor: major,
		ProtoMinor: minor,
		Header:     http.Header(header),
		Host:       header.Get("Host"),
		RequestURI: uri,
		Body:       http.NoBody,
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	if method == http.MethodPost {
		n, err := contentLength(req.Header)
		if err != nil {
			return nil, &protocolError{
				status:  http.StatusBadRequest,
				cause:   err.Error(),
				longmsg: "Friendlist did not recognize the content length",
			}
		}
		if n > s.opts.MaxBodyBytes {
			return nil, &protocolError{
				status:  http.StatusRequestEntityTooLarge,
				cause:   strconv.FormatInt(n, 10),
				longmsg: "Friendlist does not accept bodies that large",
			}
		}

		req.ContentLength = n
		if n > 0 {
			req.Body = io.NopCloser(io.LimitReader(br, n))
		}
	}

	return req, nil
}

// parseRequestLine splits "METHOD URI VERSION". Anything other than three
// tokens is malformed.
func parseRequestLine(line string) (method, uri, version string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", "", false
	}

	return fields[0], fields[1], fields[2], true
}

func contentLength(h http.Header) (int64, error) {
	cl := strings.TrimSpace(h.Get("Content-Length"))
	if cl == "" {
		return 0, nil
	}

	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid content length %q", cl)
	}

	return n, nil
}

type closeWriter interface {
	CloseWrite() error
}

// linger half-closes the connection and drains unread input for a moment so
// that closing does not reset the connection before the client has read the
// response.
func linger(conn net.Conn, br *bufio.Reader) {
	cw, ok := conn.(closeWriter)
	if !ok {
		return
	}

	cw.CloseWrite()
	conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.Copy(io.Discard, io.LimitReader(br, maxLingerBytes))
}
