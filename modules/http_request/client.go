package http_request

import (
	"net/http"
	"time"
)

// sharedClient is reused by every http unit of a process so thread-mode runs
// share connections. It has no overall timeout; the node timeout bounds each
// request through its context.
var sharedClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}
