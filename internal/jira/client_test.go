package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"tickler/internal/tickler"
)

// newTestServer serves one issue with the given number of comments, paged
// by the client's maxResults.
func newTestServer(t *testing.T, issueJSON string, comments int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/api/2/issue/OPS-1", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "me" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, issueJSON)
	})
	mux.HandleFunc("/rest/api/2/issue/OPS-1/comment", func(w http.ResponseWriter, r *http.Request) {
		startAt, _ := strconv.Atoi(r.URL.Query().Get("startAt"))
		maxResults, _ := strconv.Atoi(r.URL.Query().Get("maxResults"))
		end := min(startAt+maxResults, comments)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"startAt":%d,"maxResults":%d,"total":%d,"comments":[`, startAt, maxResults, comments)
		for i := startAt; i < end; i++ {
			if i > startAt {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"created":"c%d","updated":"u%d","author":{"displayName":"Ann"},"body":"body %d"}`, i, i, i)
		}
		fmt.Fprint(w, "]}")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchSnapshot(t *testing.T) {
	issue := `{"key":"OPS-1","fields":{"created":"2024-01-15T10:30:00.000+0000","status":{"name":"In Progress"},"description":"disk full"}}`
	srv := newTestServer(t, issue, 2)

	c, err := NewClient(srv.URL, "me", "secret", nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	snap, err := c.FetchSnapshot(context.Background(), "OPS-1")
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}

	if snap.ID != "OPS-1" || snap.Server != srv.URL {
		t.Errorf("identity = (%q, %q), want (%q, %q)", snap.ID, snap.Server, "OPS-1", srv.URL)
	}
	if snap.Status != "In Progress" {
		t.Errorf("Status = %q, want %q", snap.Status, "In Progress")
	}
	if snap.Description != "disk full" {
		t.Errorf("Description = %q, want %q", snap.Description, "disk full")
	}
	if len(snap.Comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(snap.Comments))
	}
	want := tickler.Comment{Created: "c1", Updated: "u1", Author: "Ann", Body: "body 1"}
	if snap.Comments[1] != want {
		t.Errorf("Comments[1] = %+v, want %+v", snap.Comments[1], want)
	}
}

func TestClient_FetchSnapshot_NullFields(t *testing.T) {
	issue := `{"key":"OPS-1","fields":{"created":"2024-01-15","status":null,"description":null}}`
	srv := newTestServer(t, issue, 0)

	c, _ := NewClient(srv.URL, "me", "secret", nil)
	snap, err := c.FetchSnapshot(context.Background(), "OPS-1")
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}

	if snap.Description != tickler.None {
		t.Errorf("Description = %q, want %q", snap.Description, tickler.None)
	}
	if snap.Status != tickler.None {
		t.Errorf("Status = %q, want %q", snap.Status, tickler.None)
	}
	if snap.Comments == nil || len(snap.Comments) != 0 {
		t.Errorf("Comments = %v, want empty non-nil slice", snap.Comments)
	}
}

func TestClient_FetchSnapshot_PagesComments(t *testing.T) {
	issue := `{"fields":{"created":"x","status":{"name":"Open"},"description":""}}`
	srv := newTestServer(t, issue, commentPageSize+5)

	c, _ := NewClient(srv.URL, "me", "secret", nil)
	snap, err := c.FetchSnapshot(context.Background(), "OPS-1")
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}

	if len(snap.Comments) != commentPageSize+5 {
		t.Fatalf("got %d comments, want %d", len(snap.Comments), commentPageSize+5)
	}
	for i, cm := range snap.Comments {
		if cm.Body != fmt.Sprintf("body %d", i) {
			t.Fatalf("Comments[%d].Body = %q, retrieval order not preserved", i, cm.Body)
		}
	}
}

func TestClient_FetchSnapshot_Errors(t *testing.T) {
	issue := `{"fields":{}}`
	srv := newTestServer(t, issue, 0)

	t.Run("bad credentials are AuthError", func(t *testing.T) {
		c, _ := NewClient(srv.URL, "me", "wrong", nil)
		_, err := c.FetchSnapshot(context.Background(), "OPS-1")

		var authErr *tickler.AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("FetchSnapshot() error = %v, want *AuthError", err)
		}
		if authErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("StatusCode = %d, want %d", authErr.StatusCode, http.StatusUnauthorized)
		}
	})

	t.Run("unknown ticket is TransportError", func(t *testing.T) {
		c, _ := NewClient(srv.URL, "me", "secret", nil)
		_, err := c.FetchSnapshot(context.Background(), "NOPE-9")

		var transportErr *tickler.TransportError
		if !errors.As(err, &transportErr) {
			t.Fatalf("FetchSnapshot() error = %v, want *TransportError", err)
		}
	})

	t.Run("unreachable server is TransportError", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		url := dead.URL
		dead.Close()

		c, _ := NewClient(url, "me", "secret", nil)
		_, err := c.FetchSnapshot(context.Background(), "OPS-1")

		var transportErr *tickler.TransportError
		if !errors.As(err, &transportErr) {
			t.Fatalf("FetchSnapshot() error = %v, want *TransportError", err)
		}
	})
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, server := range []string{"jira.example.com", "ftp://jira.example.com", "://"} {
		if _, err := NewClient(server, "u", "p", nil); err == nil {
			t.Errorf("NewClient(%q) expected error", server)
		}
	}
}
