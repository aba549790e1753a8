package http_request

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/specialistvlad/shmdag/internal/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s ok\n", r.Method)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func resolve(t *testing.T, p dag.Payload) handlers.Unit {
	t.Helper()
	h := handlers.NewWithModules(&Module{})
	u, err := h.Resolve(p)
	require.NoError(t, err)
	return u
}

func TestExecute(t *testing.T) {
	srv := newServer(t)

	t.Run("success", func(t *testing.T) {
		u := resolve(t, dag.Payload{Kind: dag.KindHTTP, Label: "ping", URL: srv.URL + "/ok"})
		var out bytes.Buffer
		require.NoError(t, u.Execute(context.Background(), &out))
		assert.Equal(t, "ping\nGET ok\n", out.String())
	})

	t.Run("method", func(t *testing.T) {
		u := resolve(t, dag.Payload{Kind: dag.KindHTTP, URL: srv.URL + "/ok", Method: "post"})
		var out bytes.Buffer
		require.NoError(t, u.Execute(context.Background(), &out))
		assert.Equal(t, "POST ok\n", out.String())
	})

	t.Run("error status fails the node", func(t *testing.T) {
		u := resolve(t, dag.Payload{Kind: dag.KindHTTP, Label: "gone", URL: srv.URL + "/missing"})
		var out bytes.Buffer
		err := u.Execute(context.Background(), &out)
		assert.ErrorContains(t, err, "404 Not Found")
		assert.Contains(t, out.String(), "nope")
	})

	t.Run("cancellation", func(t *testing.T) {
		u := resolve(t, dag.Payload{Kind: dag.KindHTTP, URL: srv.URL + "/slow"})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := u.Execute(ctx, &bytes.Buffer{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNew_Rejects(t *testing.T) {
	h := handlers.NewWithModules(&Module{})
	for name, p := range map[string]dag.Payload{
		"no url":     {Kind: dag.KindHTTP},
		"bad scheme": {Kind: dag.KindHTTP, URL: "ftp://example.com/x"},
		"unparsable": {Kind: dag.KindHTTP, URL: "http://[::1"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.Resolve(p)
			assert.Error(t, err)
		})
	}
}
