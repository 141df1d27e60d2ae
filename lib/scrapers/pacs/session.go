package pacs

import (
	"context"
	"sync"

	"pacs-preloader/lib/dompage"
)

// Hidden inputs the vendor page keeps its session state in.
const (
	sessionUserInput  = "webUserName"
	sessionTokenInput = "sessionHash"
)

// Session is the per-page-lifetime authentication context. The routing
// host is not present anywhere in the page markup: it is learned from
// the first successful detail-page response and treated as authoritative
// for the rest of the page's lifetime. A page reload means a new
// Session.
type Session struct {
	UserID string
	Token  string

	mu          sync.Mutex
	routingHost string
}

// RoutingHost returns the learned routing host, or "" when no detail
// response has been seen yet.
func (s *Session) RoutingHost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routingHost
}

// learnRoutingHost records the routing host from a detail response.
// The first learned value wins.
func (s *Session) learnRoutingHost(host string) {
	if host == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routingHost == "" {
		s.routingHost = host
	}
}

// ProbeSession extracts the session fields from the hosting document.
// ok is false when the page carries no session, which is a normal state
// (the user is not logged in yet), not an error.
func ProbeSession(ctx context.Context, doc dompage.Document) (*Session, bool, error) {
	ctx, span := tracer.Start(ctx, "ProbeSession")
	defer span.End()

	snapshot, err := doc.Snapshot(ctx)
	if err != nil {
		return nil, false, err
	}

	user := snapshot.Find("input[name=" + sessionUserInput + "]").AttrOr("value", "")
	token := snapshot.Find("input[name=" + sessionTokenInput + "]").AttrOr("value", "")
	if user == "" || token == "" {
		return nil, false, nil
	}

	return &Session{UserID: user, Token: token}, true, nil
}
