// Package mgmttest provides a fake HTTP management endpoint for tests.
package mgmttest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/hal-console/dmr-framework/dmr"
	"github.com/hal-console/dmr-framework/operations/optest"
)

// Server is a management endpoint answering POST /management with the scripted answers of an
// optest.Dispatcher. Failed outcomes are sent with status 500 like a real server does. A
// transport error scripted on the dispatcher becomes a 503 without a DMR body.
type Server struct {
	*httptest.Server

	// Dispatcher scripts the answers. Requests are recorded on it as well.
	Dispatcher *optest.Dispatcher

	mu    sync.Mutex
	trees []*dmr.ModelNode
}

// Option configures a Server.
type Option func(*gin.Engine)

// WithBasicAuth makes the server require the given credentials.
func WithBasicAuth(username, password string) Option {
	return func(g *gin.Engine) {
		g.Use(gin.BasicAuth(gin.Accounts{username: password}))
	}
}

// NewServer starts a Server that is closed when the test ends. A nil d answers every request
// with success.
func NewServer(t testing.TB, d *optest.Dispatcher, opts ...Option) *Server {
	t.Helper()

	if d == nil {
		d = optest.NewDispatcher()
	}
	s := &Server{Dispatcher: d}

	gin.SetMode(gin.TestMode)
	g := gin.New()
	for _, opt := range opts {
		opt(g)
	}
	g.POST("/management", s.handle)

	s.Server = httptest.NewServer(g)
	t.Cleanup(s.Close)

	return s
}

func (s *Server) handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	tree, err := dmr.ParseJSON(body)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	req, err := dmr.FromModelNode(tree)
	if err != nil {
		c.Data(http.StatusInternalServerError, "application/json", failure(err.Error()))
		return
	}

	s.mu.Lock()
	s.trees = append(s.trees, tree)
	s.mu.Unlock()

	res, err := s.Dispatcher.Dispatch(c.Request.Context(), req)
	if err != nil {
		c.String(http.StatusServiceUnavailable, err.Error())
		return
	}
	data, err := res.ModelNode().MarshalJSON()
	if err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if !res.Succeeded() {
		status = http.StatusInternalServerError
	}
	c.Data(status, "application/json", data)
}

func failure(description string) []byte {
	data, _ := optest.Failure(description).ModelNode().MarshalJSON()

	return data
}

// Requests returns the request trees received so far, in order.
func (s *Server) Requests() []*dmr.ModelNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*dmr.ModelNode, len(s.trees))
	for i, t := range s.trees {
		out[i] = t.Clone()
	}

	return out
}
