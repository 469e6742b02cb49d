package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultEvalTimeout = 5 * time.Second

// brokenConnHints mark errors where the websocket itself failed rather than
// the page rejecting a script.
var brokenConnHints = []string{
	"not connected",
	"connection closed",
	"connection reset",
	"connection refused",
	"broken pipe",
	"websocket",
	"eof",
}

// tab is one page target plus the flat session attached to it, if any.
type tab struct {
	info TabInfo

	mu        sync.Mutex
	sessionID string
}

func (t *tab) session() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

func (t *tab) setSession(sid string) {
	t.mu.Lock()
	t.sessionID = sid
	t.mu.Unlock()
}

// Client enumerates page targets of one browser and hands out per-tab
// documents that run scripts and key events inside those tabs.
type Client struct {
	cdpURL      string
	evalTimeout time.Duration

	mu   sync.Mutex
	conn *browserConn
	tabs map[string]*tab
}

type evalEnvelope struct {
	OK           bool            `json:"ok"`
	Data         json.RawMessage `json:"data,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func NewClient(cdpURL string, evalTimeout time.Duration) *Client {
	if evalTimeout <= 0 {
		evalTimeout = defaultEvalTimeout
	}
	return &Client{
		cdpURL:      cdpURL,
		evalTimeout: evalTimeout,
		tabs:        make(map[string]*tab),
	}
}

// Connect dials the browser websocket and takes an initial tab listing.
// Calling it again replaces the connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.cdpURL == "" {
		return newError(CodeCDPUnavailable, "missing CDP URL", nil)
	}
	c.resetLocked()

	conn := newBrowserConn(c.cdpURL)
	conn.onDetach = c.forgetSession
	if err := conn.dial(ctx); err != nil {
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	c.conn = conn

	if err := c.syncLocked(ctx); err != nil {
		c.resetLocked()
		return newError(CodeCDPUnavailable, "connect to CDP failed", err)
	}
	slog.Info("cdpcontrol connected", "cdp_url", c.cdpURL, "pages", len(c.tabs))
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return nil
}

// resetLocked detaches every session, leaving the tabs themselves open, and
// drops the connection.
func (c *Client) resetLocked() {
	if c.conn != nil {
		for id, t := range c.tabs {
			sid := t.session()
			if sid == "" {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := c.conn.detach(ctx, sid); err != nil {
				slog.Debug("cdpcontrol detach on reset failed", "target_id", id, "error", err)
			}
			cancel()
			t.setSession("")
		}
		c.conn.close()
		c.conn = nil
	}
	c.tabs = make(map[string]*tab)
}

// ListTabs returns a fresh snapshot of every page target, sorted by id.
// Nothing is cached between calls beyond attached session ids.
func (c *Client) ListTabs(ctx context.Context) ([]TabInfo, error) {
	c.mu.Lock()
	err := c.syncLocked(ctx)
	out := make([]TabInfo, 0, len(c.tabs))
	for _, t := range c.tabs {
		out = append(out, t.info)
	}
	c.mu.Unlock()
	if err != nil {
		slog.Warn("cdpcontrol list tabs failed", "error", err)
		return nil, newError(CodeCDPUnavailable, "failed to list targets", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// syncLocked replaces the tab table with the browser's current pages,
// carrying over sessions of tabs that are still open.
func (c *Client) syncLocked(ctx context.Context) error {
	conn := c.conn
	if conn == nil {
		conn = newBrowserConn(c.cdpURL)
	}
	pages, err := conn.pages(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]*tab, len(pages))
	for _, p := range pages {
		t := c.tabs[p.ID]
		if t == nil {
			t = &tab{}
		}
		t.info = p
		next[p.ID] = t
	}
	c.tabs = next
	slog.Debug("cdpcontrol tab sync", "pages", len(next))
	return nil
}

// Attach resolves the tab and makes sure a flat CDP session exists for it.
// A tab that closed since it was listed yields CodeTabNotFound.
func (c *Client) Attach(ctx context.Context, tabID string) (*TabDocument, error) {
	tabID = strings.TrimSpace(tabID)
	if tabID == "" {
		return nil, newError(CodeValidation, "tab id is required", nil)
	}

	doc, err := c.resolve(ctx, tabID)
	if err != nil {
		return nil, err
	}
	if _, err := doc.sessionID(ctx); err != nil {
		return nil, err
	}
	return doc, nil
}

// resolve reconnects when needed and looks the tab up, re-listing once on a
// miss.
func (c *Client) resolve(ctx context.Context, tabID string) (*TabDocument, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || !c.conn.alive() {
		if err := c.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	t := c.tabs[tabID]
	if t == nil {
		if err := c.syncLocked(ctx); err != nil {
			return nil, newError(CodeCDPUnavailable, "failed to list targets", err)
		}
		if t = c.tabs[tabID]; t == nil {
			return nil, newError(CodeTabNotFound, "tab not found: "+tabID, nil)
		}
	}
	return &TabDocument{client: c, conn: c.conn, tab: t, targetID: tabID}, nil
}

// forgetSession runs when the browser reports a session gone.
func (c *Client) forgetSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.tabs {
		if t.session() == sessionID {
			t.setSession("")
			slog.Debug("cdpcontrol session detached by browser", "target_id", id, "session_id", sessionID)
		}
	}
}

func brokenConn(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errConnClosed) {
		return true
	}
	var pe *protocolError
	if errors.As(err, &pe) {
		return pe.targetGone()
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range brokenConnHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func buildIIFE(async bool, body string) string {
	prefix := "(function(){\n"
	if async {
		prefix = "(async function(){\n"
	}
	return prefix + `try {
` + body + `
} catch (err) {
return JSON.stringify({ok:false,error_code:"` + CodeEvalFailure + `",error_message:String(err && err.message || err)});
}
})()`
}

func wrapJSEval(body string) string { return buildIIFE(false, body) }
