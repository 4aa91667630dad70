package server

import (
	"bufio"
	"bytes"
	"fmt"
	"html"
	"io"
	"net/http"
)

const contentType = "text/html; charset=utf-8"

// response buffers what a handler writes so that it can be rendered with an
// exact Content-length once the handler returns.
type response struct {
	status int
	header http.Header
	body   bytes.Buffer
}

var _ http.ResponseWriter = (*response)(nil)

func newResponse() *response {
	return &response{header: make(http.Header)}
}

func (r *response) Header() http.Header {
	return r.header
}

func (r *response) WriteHeader(status int) {
	if r.status != 0 {
		return
	}
	r.status = status
}

func (r *response) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(p)
}

func (r *response) reset() {
	r.status = 0
	r.header = make(http.Header)
	r.body.Reset()
}

func (r *response) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// writeTo renders the response. The connection is always closed afterwards,
// so every response says so.
func (r *response) writeTo(w io.Writer, serverName string) error {
	status := r.statusCode()
	ct := r.header.Get("Content-Type")
	if ct == "" {
		ct = contentType
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "HTTP/1.0 %d %s\r\n", status, http.StatusText(status))
	fmt.Fprintf(bw, "Server: %s\r\n", serverName)
	fmt.Fprintf(bw, "Connection: close\r\n")
	fmt.Fprintf(bw, "Content-length: %d\r\n", r.body.Len())
	fmt.Fprintf(bw, "Content-type: %s\r\n\r\n", ct)
	bw.Write(r.body.Bytes())

	return bw.Flush()
}

// clientError writes the HTML error page naming the cause.
func clientError(w http.ResponseWriter, status int, cause, longmsg string) {
	body := "<html><title>Friendlist Error</title><body bgcolor=ffffff>\r\n" +
		fmt.Sprintf("%d %s", status, http.StatusText(status)) +
		"<p>" + html.EscapeString(longmsg) + ": " + html.EscapeString(cause) +
		"<hr><em>Friendlist Server</em>\r\n"

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	io.WriteString(w, body)
}
