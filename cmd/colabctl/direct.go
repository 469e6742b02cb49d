package main

import (
	"context"
	"errors"

	"github.com/dgnsrekt/colab_agent/internal/app"
	"github.com/dgnsrekt/colab_agent/internal/strategy"
)

var errNeedsController = errors.New("session state lives in the controller; drop --direct and start cmd/controller")

// directBackend drives the browser from this process. It has no session
// state machine, so run and stop are one-shot batches that wait for every tab.
type directBackend struct {
	app *app.App
}

func (d *directBackend) Close() { d.app.Close() }

func (d *directBackend) oneshot(ctx context.Context, kind strategy.Kind, keyword *string) (result, error) {
	view, err := d.app.Service.Oneshot(ctx, kind, keyword)
	if err != nil {
		return result{}, err
	}
	return result{Batch: &view}, nil
}

func (d *directBackend) Start(ctx context.Context, keyword *string, _ bool) (result, error) {
	return d.oneshot(ctx, strategy.Start, keyword)
}

func (d *directBackend) Stop(ctx context.Context, keyword *string, _ bool) (result, error) {
	return d.oneshot(ctx, strategy.Interrupt, keyword)
}

func (d *directBackend) Toggle(context.Context, *string) (result, error) {
	return result{}, errNeedsController
}

func (d *directBackend) Status(context.Context) (result, error) {
	return result{}, errNeedsController
}

func (d *directBackend) Batch(context.Context, string) (result, error) {
	return result{}, errNeedsController
}

func (d *directBackend) Tabs(ctx context.Context, keyword string) (result, error) {
	matches, err := d.app.Service.Tabs(ctx, keyword)
	if err != nil {
		return result{}, err
	}
	return result{Tabs: &tabList{Keyword: keyword, Tabs: matches}}, nil
}

func (d *directBackend) Keyword(ctx context.Context) (string, error) {
	return d.app.Service.Keyword(ctx)
}

func (d *directBackend) SetKeyword(ctx context.Context, keyword string) error {
	return d.app.Service.SetKeyword(ctx, keyword)
}
