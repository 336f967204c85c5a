// Package adminapi is a small HTTP client for the admin endpoints, used
// by the status subcommand and operator tooling.
package adminapi

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL *url.URL
	token   string
	hc      *http.Client
}

type ClientOptions struct {
	Addr     string
	Token    string
	Insecure bool
	Timeout  time.Duration
}

func NewClient(opt ClientOptions) (*Client, error) {
	if opt.Addr == "" {
		return nil, errors.New("addr is required")
	}
	if opt.Token == "" {
		return nil, errors.New("admin token is required")
	}
	u, err := url.Parse(opt.Addr)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if u.Host == "" {
		return nil, errors.New("invalid addr")
	}

	t := &http.Transport{}
	if strings.EqualFold(u.Scheme, "https") {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: opt.Insecure} //nolint:gosec
	}

	timeout := opt.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	hc := &http.Client{Transport: t, Timeout: timeout}
	return &Client{baseURL: u, token: opt.Token, hc: hc}, nil
}

type Session struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

type Incident struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	AccountID string `json:"accountId"`
	Kind      string `json:"kind"`
	Note      string `json:"note"`
	CreatedAt int64  `json:"createdAt"`
}

type LedgerEntry struct {
	ID        string          `json:"id"`
	TS        int64           `json:"ts"`
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	AccountID string          `json:"accountId"`
	Data      json.RawMessage `json:"data"`
	PrevHash  string          `json:"prevHash"`
	Hash      string          `json:"hash"`
}

type State struct {
	Sessions  []Session     `json:"sessions"`
	Incidents []Incident    `json:"incidents"`
	Ledger    []LedgerEntry `json:"ledger"`
}

// State fetches the current sessions, incidents, and ledger tail.
func (c *Client) State() (State, error) {
	var resp State
	if err := c.doJSON("GET", "/api/admin/state", nil, &resp); err != nil {
		return State{}, err
	}
	return resp, nil
}

// VerifyLedger asks the server to re-verify its hash chain.
func (c *Client) VerifyLedger() error {
	return c.doJSON("GET", "/api/admin/ledger/verify", nil, nil)
}

func (c *Client) doJSON(method, path string, body any, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	u := c.baseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequest(method, u.String(), buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&er)
		if er.Error != "" {
			return errors.New(er.Error)
		}
		return errors.New(resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
