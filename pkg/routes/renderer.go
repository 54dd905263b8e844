package routes

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"github.com/wehubfusion/Daedalus/pkg/sandbox"
	"github.com/wehubfusion/Daedalus/pkg/strategy"
	"go.uber.org/zap"
)

// DefaultOrigin is the origin route paths are resolved against
const DefaultOrigin = "http://localhost"

// SandboxRenderer renders routes with the in-process strategy. Every route gets its own
// sandbox and document.
type SandboxRenderer struct {
	// Artifact is the compiled prerender bundle
	Artifact *build.Artifact

	// Template is the document each route is rendered into. Empty means the default document.
	Template string

	// Origin prefixes route paths to form each document's URL
	Origin string

	Strategy strategy.Strategy
	Limiter  *concurrency.Limiter
	Logger   *zap.Logger
}

// Render renders every route, stopping early only when the limiter's breaker opens. The
// error joins every failure; successful routes are returned either way.
func (r *SandboxRenderer) Render(ctx context.Context, routes []Route, post PostProcess) ([]Rendered, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := r.Strategy
	if s == nil {
		s = strategy.NewInProcess(sandbox.Config{}, logger)
	}
	limiter := r.Limiter
	if limiter == nil {
		limiter = concurrency.NewLimiterFromConfig(concurrency.LoadConfig())
	}

	results := make([]Rendered, len(routes))
	errs := limiter.Each(ctx, len(routes), func(ctx context.Context, i int) error {
		route := routes[i]
		location, err := r.location(route.Path)
		if err != nil {
			return fmt.Errorf("route %s: %w", route.Path, err)
		}

		res, err := s.Execute(ctx, r.Artifact, strategy.Request{
			Template:    r.Template,
			Params:      route.Params,
			HasParams:   route.Params != nil,
			DocumentURL: location,
		})
		if err != nil {
			return fmt.Errorf("route %s: %w", route.Path, err)
		}
		html, err := res.Output()
		if err != nil {
			return fmt.Errorf("route %s: %w", route.Path, err)
		}

		out := Rendered{Route: route.Path, HTML: html, OutputPath: route.OutputPath}
		if out.OutputPath == "" {
			out.OutputPath = OutputPath(route.Path)
		}
		if post != nil {
			if out, err = post(out); err != nil {
				return fmt.Errorf("route %s: post-process: %w", route.Path, err)
			}
		}
		results[i] = out
		logger.Debug("Rendered route", zap.String("route", route.Path), zap.Int("bytes", len(out.HTML)))
		return nil
	})

	var rendered []Rendered
	for i, err := range errs {
		if err == nil {
			rendered = append(rendered, results[i])
		}
	}
	return rendered, errors.Join(errs...)
}

func (r *SandboxRenderer) location(route string) (string, error) {
	origin := r.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	base, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(route)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
