// Package jira fetches ticket snapshots from the Jira REST API (v2).
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tickler/internal/tickler"
)

// commentPageSize is the maxResults requested per comment page.
const commentPageSize = 100

// Client is a minimal Jira REST client authenticating with basic auth
// (username + API token).
type Client struct {
	server   string
	base     *url.URL
	username string
	token    string
	http     *http.Client
}

// NewClient creates a Client for server. A nil httpClient uses one with a
// 30 second timeout.
func NewClient(server, username, token string, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(server, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server URL must be http or https: %s", server)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		server:   server,
		base:     base,
		username: username,
		token:    token,
		http:     httpClient,
	}, nil
}

type issueResponse struct {
	Fields struct {
		Created     *string `json:"created"`
		Description *string `json:"description"`
		Status      *struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

type commentPage struct {
	StartAt    int             `json:"startAt"`
	MaxResults int             `json:"maxResults"`
	Total      int             `json:"total"`
	Comments   []commentRecord `json:"comments"`
}

type commentRecord struct {
	Created *string `json:"created"`
	Updated *string `json:"updated"`
	Body    *string `json:"body"`
	Author  *struct {
		DisplayName string `json:"displayName"`
	} `json:"author"`
}

// FetchSnapshot retrieves the issue and all its comments. Snapshot.ID and
// Snapshot.Server are the identifiers as configured, so the fingerprint
// does not depend on how Jira echoes them back.
func (c *Client) FetchSnapshot(ctx context.Context, id string) (*tickler.TicketSnapshot, error) {
	var issue issueResponse
	q := url.Values{"fields": {"created,status,description"}}
	if err := c.get(ctx, id, q, &issue, "issue", id); err != nil {
		return nil, err
	}

	snap := &tickler.TicketSnapshot{
		ID:          id,
		Server:      c.server,
		Created:     tickler.Text(issue.Fields.Created),
		Description: tickler.Text(issue.Fields.Description),
		Status:      tickler.None,
		Comments:    []tickler.Comment{},
	}
	if issue.Fields.Status != nil {
		snap.Status = issue.Fields.Status.Name
	}

	comments, err := c.comments(ctx, id)
	if err != nil {
		return nil, err
	}
	snap.Comments = comments
	return snap, nil
}

// comments pages through the comment list in Jira's order.
func (c *Client) comments(ctx context.Context, id string) ([]tickler.Comment, error) {
	result := []tickler.Comment{}

	for startAt := 0; ; {
		q := url.Values{
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(commentPageSize)},
		}
		var page commentPage
		if err := c.get(ctx, id, q, &page, "issue", id, "comment"); err != nil {
			return nil, err
		}

		for _, r := range page.Comments {
			cm := tickler.Comment{
				Created: tickler.Text(r.Created),
				Updated: tickler.Text(r.Updated),
				Author:  tickler.None,
				Body:    tickler.Text(r.Body),
			}
			if r.Author != nil {
				cm.Author = r.Author.DisplayName
			}
			result = append(result, cm)
		}

		startAt += len(page.Comments)
		if len(page.Comments) == 0 || startAt >= page.Total {
			return result, nil
		}
	}
}

// get issues an authenticated GET against rest/api/2/<elem...> and decodes
// the JSON body into out.
func (c *Client) get(ctx context.Context, ticket string, query url.Values, out any, elem ...string) error {
	u := c.base.JoinPath(append([]string{"rest", "api", "2"}, elem...)...)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.SetBasicAuth(c.username, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &tickler.TransportError{Ticket: ticket, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &tickler.AuthError{Ticket: ticket, StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &tickler.TransportError{Ticket: ticket, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &tickler.TransportError{Ticket: ticket, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

var _ tickler.SnapshotFetcher = (*Client)(nil)
