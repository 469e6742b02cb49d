package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/tidwall/gjson"
)

var errConnClosed = errors.New("cdp: connection closed")

// protocolError is an error object returned by the browser for one command.
type protocolError struct {
	Method  string
	Message string
}

func (e *protocolError) Error() string { return fmt.Sprintf("cdp: %s: %s", e.Method, e.Message) }

func (e *protocolError) targetGone() bool {
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "no target with given id") || strings.Contains(msg, "no session with given id")
}

type request struct {
	ID        int64  `json:"id"`
	SessionID string `json:"sessionId,omitempty"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
}

// browserConn is a single browser-level websocket carrying flat sessions.
// chromedp's allocator would auto-attach to every target and enable domains
// on them; the controller only ever needs attach, evaluate and key input.
type browserConn struct {
	base string

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    net.Conn
	nextID  atomic.Int64
	waiting map[int64]chan []byte

	onDetach func(sessionID string)
}

func newBrowserConn(base string) *browserConn {
	return &browserConn{
		base:    strings.TrimRight(base, "/"),
		waiting: make(map[int64]chan []byte),
	}
}

func (b *browserConn) dial(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil
	}

	version, err := b.getJSON(ctx, "/json/version")
	if err != nil {
		return fmt.Errorf("cdp: read browser endpoint: %w", err)
	}
	wsURL := version.Get("webSocketDebuggerUrl").String()
	if wsURL == "" {
		return errors.New("cdp: /json/version has no webSocketDebuggerUrl")
	}

	slog.Debug("cdp dial", "ws_url", wsURL)
	conn, _, _, err := ws.Dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("cdp: dial %s: %w", wsURL, err)
	}
	b.conn = conn
	b.waiting = make(map[int64]chan []byte)
	go b.readLoop(conn)
	return nil
}

func (b *browserConn) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return
	}
	if err := b.conn.Close(); err != nil {
		slog.Debug("cdp close failed", "error", err)
	}
	b.conn = nil
}

func (b *browserConn) alive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *browserConn) readLoop(conn net.Conn) {
	for {
		frame, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("cdp read loop exit", "error", err)
			b.mu.Lock()
			if b.conn == conn {
				b.conn = nil
			}
			for id, ch := range b.waiting {
				close(ch)
				delete(b.waiting, id)
			}
			b.mu.Unlock()
			return
		}
		b.dispatch(frame)
	}
}

// dispatch hands a response to its caller. Of the events, only session
// detaches are of interest.
func (b *browserConn) dispatch(frame []byte) {
	msg := gjson.ParseBytes(frame)
	if id := msg.Get("id").Int(); id > 0 {
		b.mu.Lock()
		ch, ok := b.waiting[id]
		delete(b.waiting, id)
		b.mu.Unlock()
		if ok {
			ch <- frame
		}
		return
	}
	if msg.Get("method").String() != "Target.detachedFromTarget" || b.onDetach == nil {
		return
	}
	if sid := msg.Get("params.sessionId").String(); sid != "" {
		// onDetach takes client locks; a caller holding them may be waiting
		// on a frame this loop has yet to deliver.
		go b.onDetach(sid)
	}
}

func (b *browserConn) forget(id int64) {
	b.mu.Lock()
	delete(b.waiting, id)
	b.mu.Unlock()
}

// call sends one command, on the browser session when sessionID is empty,
// and returns its result object.
func (b *browserConn) call(ctx context.Context, sessionID, method string, params any) (gjson.Result, error) {
	req := request{ID: b.nextID.Add(1), SessionID: sessionID, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("cdp: encode %s: %w", method, err)
	}

	ch := make(chan []byte, 1)
	b.mu.Lock()
	conn := b.conn
	if conn != nil {
		b.waiting[req.ID] = ch
	}
	b.mu.Unlock()
	if conn == nil {
		return gjson.Result{}, errors.New("cdp: not connected")
	}

	b.writeMu.Lock()
	err = wsutil.WriteClientText(conn, payload)
	b.writeMu.Unlock()
	if err != nil {
		b.forget(req.ID)
		return gjson.Result{}, fmt.Errorf("cdp: send %s: %w", method, err)
	}

	select {
	case frame, ok := <-ch:
		if !ok {
			return gjson.Result{}, errConnClosed
		}
		resp := gjson.ParseBytes(frame)
		if msg := resp.Get("error.message"); msg.Exists() {
			return gjson.Result{}, &protocolError{Method: method, Message: msg.String()}
		}
		return resp.Get("result"), nil
	case <-ctx.Done():
		b.forget(req.ID)
		return gjson.Result{}, ctx.Err()
	}
}

func (b *browserConn) attach(ctx context.Context, targetID string) (string, error) {
	res, err := b.call(ctx, "", target.CommandAttachToTarget,
		target.AttachToTarget(target.ID(targetID)).WithFlatten(true))
	if err != nil {
		return "", err
	}
	sid := res.Get("sessionId").String()
	if sid == "" {
		return "", errors.New("cdp: attach returned no session id")
	}
	return sid, nil
}

// detach leaves the tab open.
func (b *browserConn) detach(ctx context.Context, sessionID string) error {
	_, err := b.call(ctx, "", target.CommandDetachFromTarget,
		target.DetachFromTarget().WithSessionID(target.SessionID(sessionID)))
	return err
}

// evaluate runs expr with a user gesture and returns the string it produced.
// Non-string values come back as raw JSON.
func (b *browserConn) evaluate(ctx context.Context, sessionID, expr string) (string, error) {
	params := runtime.Evaluate(expr).
		WithReturnByValue(true).
		WithAwaitPromise(true).
		WithUserGesture(true)
	res, err := b.call(ctx, sessionID, runtime.CommandEvaluate, params)
	if err != nil {
		return "", err
	}
	if exc := res.Get("exceptionDetails"); exc.Exists() {
		return "", fmt.Errorf("cdp: script threw: %s", exc.Get("text").String())
	}
	v := res.Get("result.value")
	if v.Type == gjson.String {
		return v.String(), nil
	}
	return v.Raw, nil
}

// pressKey sends keyDown then keyUp for one key with the given modifier bits.
func (b *browserConn) pressKey(ctx context.Context, sessionID, key, code string, keyCode, modifiers int) error {
	for _, typ := range []input.KeyType{input.KeyDown, input.KeyUp} {
		params := input.DispatchKeyEvent(typ).
			WithKey(key).
			WithCode(code).
			WithWindowsVirtualKeyCode(int64(keyCode)).
			WithModifiers(input.Modifier(modifiers))
		if _, err := b.call(ctx, sessionID, input.CommandDispatchKeyEvent, params); err != nil {
			return fmt.Errorf("cdp: %s %s: %w", typ, key, err)
		}
	}
	return nil
}

// pages lists page targets over HTTP, so it works without a websocket.
func (b *browserConn) pages(ctx context.Context) ([]TabInfo, error) {
	list, err := b.getJSON(ctx, "/json/list")
	if err != nil {
		return nil, err
	}
	var out []TabInfo
	list.ForEach(func(_, t gjson.Result) bool {
		if t.Get("type").String() == "page" {
			out = append(out, TabInfo{
				ID:    t.Get("id").String(),
				Title: t.Get("title").String(),
				URL:   t.Get("url").String(),
			})
		}
		return true
	})
	return out, nil
}

func (b *browserConn) getJSON(ctx context.Context, path string) (gjson.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+path, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("cdp: GET %s: HTTP %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("cdp: GET %s: invalid JSON", path)
	}
	return gjson.ParseBytes(body), nil
}
