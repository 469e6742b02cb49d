// Package notify pushes session status messages to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultTitle = "colab agent"

// ntfy renders tags that name an emoji as that emoji.
var categoryTags = map[string]string{
	"info":    "information_source",
	"success": "white_check_mark",
	"error":   "rotating_light",
}

// Notifier posts status messages to one ntfy endpoint.
type Notifier struct {
	client   *http.Client
	endpoint string
	title    string
	quiet    bool
}

func New(client *http.Client, endpoint string) *Notifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{client: client, endpoint: strings.TrimSpace(endpoint), title: defaultTitle}
}

// Quiet drops info messages so only finished batches and failures are pushed.
func (n *Notifier) Quiet() *Notifier {
	n.quiet = true
	return n
}

// Publish sends message tagged with its category. Errors go out with high
// priority.
func (n *Notifier) Publish(ctx context.Context, message, category string) error {
	if n.quiet && category == "info" {
		return nil
	}
	h := http.Header{}
	h.Set("Title", n.title)
	if tag, ok := categoryTags[category]; ok {
		h.Set("Tags", tag+","+category)
	} else if category != "" {
		h.Set("Tags", category)
	}
	if category == "error" {
		h.Set("Priority", "high")
	}
	return Send(ctx, n.client, n.endpoint, message, h)
}

// Send POSTs message as text/plain with the given extra headers.
func Send(ctx context.Context, client *http.Client, endpoint, message string, header http.Header) error {
	if endpoint == "" {
		return errors.New("ntfy: endpoint is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
