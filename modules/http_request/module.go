// Package http_request provides the "http" unit: it prints the node's label,
// sends one request and writes the response body to the node's output. A
// response status of 400 or above fails the node.
package http_request

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/handlers"
)

// Module implements the handlers.Module interface for this package.
type Module struct {
	// Client sends the requests. Nil means the shared default client.
	Client *http.Client
}

// Unit sends one request.
type Unit struct {
	Label  string
	Method string
	URL    string
	Client *http.Client
}

// Execute prints the label line, sends the request and copies the body to
// out. The node's context bounds the whole exchange.
func (u *Unit) Execute(ctx context.Context, out io.Writer) error {
	logger := ctxlog.FromContext(ctx).With("method", u.Method, "url", u.URL)
	if u.Label != "" {
		if _, err := fmt.Fprintln(out, u.Label); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, u.Method, u.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	logger.Debug("Making HTTP request.")
	resp, err := u.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	logger.Debug("Received HTTP response.", "status", resp.Status)

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s", u.Method, u.URL, resp.Status)
	}
	return nil
}

// New is the factory for the http kind.
func (m *Module) New(p dag.Payload) (handlers.Unit, error) {
	if p.URL == "" {
		return nil, errors.New("http node needs a url")
	}
	target, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("url scheme must be http or https, got %q", target.Scheme)
	}

	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}
	client := m.Client
	if client == nil {
		client = sharedClient
	}
	return &Unit{Label: p.Label, Method: method, URL: p.URL, Client: client}, nil
}

// Register registers the unit with the handler registry.
func (m *Module) Register(h *handlers.Handlers) {
	h.Register(dag.KindHTTP, m.New)
}
