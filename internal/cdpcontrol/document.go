package cdpcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// TabDocument is one tab's execution context: scripts evaluate in its page
// and trusted key events are delivered to its focused element.
type TabDocument struct {
	client   *Client
	conn     *browserConn
	tab      *tab
	targetID string
}

// TargetID returns the browser target the document is bound to.
func (d *TabDocument) TargetID() string { return d.targetID }

// sessionID returns the tab's flat session, attaching when there is none.
func (d *TabDocument) sessionID(ctx context.Context) (string, error) {
	d.tab.mu.Lock()
	defer d.tab.mu.Unlock()
	if d.tab.sessionID != "" {
		return d.tab.sessionID, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.client.evalTimeout)
	defer cancel()
	sid, err := d.conn.attach(ctx, d.targetID)
	if err != nil {
		var pe *protocolError
		if errors.As(err, &pe) && pe.targetGone() {
			return "", newError(CodeTabNotFound, "tab closed: "+d.targetID, err)
		}
		return "", newError(CodeCDPUnavailable, "attach to target failed", err)
	}
	d.tab.sessionID = sid
	slog.Debug("cdpcontrol session attached", "target_id", d.targetID, "session_id", sid)
	return sid, nil
}

// Evaluate wraps body in a try/catch IIFE, runs it in the tab and decodes the
// {ok,data,error_code,error_message} envelope the body returns into out.
func (d *TabDocument) Evaluate(ctx context.Context, body string, out any) error {
	sid, err := d.sessionID(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.client.evalTimeout)
	defer cancel()
	raw, err := d.conn.evaluate(ctx, sid, wrapJSEval(body))
	if err != nil {
		slog.Warn("cdpcontrol eval failed", "target_id", d.targetID, "error", err)
		return d.fail(ctx, err, "evaluation failed")
	}

	var env evalEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation envelope", err)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == "" {
			code = CodeEvalFailure
		}
		return newError(code, env.ErrorMessage, nil)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return newError(CodeEvalFailure, "invalid evaluation data", err)
	}
	return nil
}

// DispatchKey sends a trusted keyDown/keyUp pair to the tab.
func (d *TabDocument) DispatchKey(ctx context.Context, key, code string, keyCode, modifiers int) error {
	sid, err := d.sessionID(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, d.client.evalTimeout)
	defer cancel()
	if err := d.conn.pressKey(ctx, sid, key, code, keyCode, modifiers); err != nil {
		slog.Warn("cdpcontrol key dispatch failed", "target_id", d.targetID, "key", key, "error", err)
		return d.fail(ctx, err, "failed to dispatch trusted key event")
	}
	return nil
}

// fail maps a transport error to a CodedError and drops the session so the
// next call attaches fresh.
func (d *TabDocument) fail(ctx context.Context, err error, msg string) error {
	d.tab.setSession("")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newError(CodeEvalTimeout, "evaluation timed out", err)
	case brokenConn(err):
		return newError(CodeCDPUnavailable, msg, err)
	default:
		return newError(CodeEvalFailure, msg, err)
	}
}
