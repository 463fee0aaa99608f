package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server tuned for the records API: header reads are
// bounded so a stalled client cannot pin a connection, and writes get enough
// room for large history pages.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
