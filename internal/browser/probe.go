package browser

import (
	"context"
	"fmt"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// ProbeResult describes a reachable browser.
type ProbeResult struct {
	Product  string        `json:"product"`
	Protocol string        `json:"protocol_version"`
	Pages    int           `json:"pages"`
	Latency  time.Duration `json:"latency_ns"`
}

// Probe connects to the browser at cdpURL through chromedp and counts page
// targets. The temporary target chromedp opens for the probe is excluded
// and closed on return.
func Probe(ctx context.Context, cdpURL string) (ProbeResult, error) {
	started := time.Now()

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cdpURL)
	defer allocCancel()
	tempCtx, tempCancel := chromedp.NewContext(allocCtx)
	defer tempCancel()

	var res ProbeResult
	err := chromedp.Run(tempCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		protocol, product, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		if err != nil {
			return err
		}
		res.Protocol = protocol
		res.Product = product
		return nil
	}))
	if err != nil {
		return ProbeResult{}, fmt.Errorf("connect to browser: %w", err)
	}

	targets, err := chromedp.Targets(tempCtx)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("list targets: %w", err)
	}
	var self target.ID
	if c := chromedp.FromContext(tempCtx); c != nil && c.Target != nil {
		self = c.Target.TargetID
	}
	res.Pages = countPages(targets, self)
	res.Latency = time.Since(started)
	return res, nil
}

func countPages(targets []*target.Info, exclude target.ID) int {
	n := 0
	for _, t := range targets {
		if t.Type == "page" && t.TargetID != exclude {
			n++
		}
	}
	return n
}
