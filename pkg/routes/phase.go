package routes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Reporter receives route phase failures. *sentry.Hub implements it.
type Reporter interface {
	CaptureException(err error) *sentry.EventID
}

// Summary describes a finished route phase
type Summary struct {
	Routes   int
	Rendered int
	Emitted  []string

	// Err joins every failure. Run does not return it; the build continues.
	Err error
}

// Phase renders routes after the build and emits the pages
type Phase struct {
	Emitter     Emitter
	PostProcess PostProcess
	Reporter    Reporter
	Logger      *zap.Logger
}

// Run renders and emits routes. Failures are not retried or returned: they are collected,
// logged once as a summary and reported, and the pages that did render are still emitted.
func (p *Phase) Run(ctx context.Context, renderer Renderer, routes []Route) Summary {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	summary := Summary{Routes: len(routes)}

	var errs []error
	rendered, err := p.render(ctx, renderer, routes)
	if err != nil {
		errs = append(errs, err)
	}
	summary.Rendered = len(rendered)

	for _, page := range rendered {
		if p.Emitter == nil {
			break
		}
		location, err := p.Emitter.Emit(ctx, page)
		if err != nil {
			errs = append(errs, fmt.Errorf("emit %s: %w", page.Route, err))
			continue
		}
		summary.Emitted = append(summary.Emitted, location)
	}

	summary.Err = errors.Join(errs...)
	if summary.Err != nil {
		logger.Error("Route prerendering failed",
			zap.Int("routes", summary.Routes),
			zap.Int("rendered", summary.Rendered),
			zap.Int("emitted", len(summary.Emitted)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(summary.Err))
		if p.Reporter != nil {
			p.Reporter.CaptureException(summary.Err)
		}
		return summary
	}

	logger.Info("Routes prerendered",
		zap.Int("routes", summary.Routes),
		zap.Int("emitted", len(summary.Emitted)),
		zap.Duration("duration", time.Since(start)))
	return summary
}

// render turns a renderer panic into an error
func (p *Phase) render(ctx context.Context, renderer Renderer, routes []Route) (rendered []Rendered, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	return renderer.Render(ctx, routes, p.PostProcess)
}
