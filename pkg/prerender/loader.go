// Package prerender renders a client application at build time. For each loaded template it
// compiles the application as a sub-build of the running compilation, executes the bundle and
// returns the template with the rendered markup in place.
package prerender

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/strategy"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var documentRE = regexp.MustCompile(`(?i)<!doctype|<html[\s>]`)

// Loader prerenders templates against a parent compilation
type Loader struct {
	options  Options
	runner   *build.Runner
	strategy strategy.Strategy
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewLoader creates a loader. Invalid options are reported here rather than per invocation.
func NewLoader(options Options, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options.ApplyDefaults()
	if err := options.Validate(); err != nil {
		return nil, err
	}

	s, err := strategy.New(options.Strategy, logger.Named("strategy"))
	if err != nil {
		return nil, perrors.NewError(perrors.CodeConfiguration, "invalid strategy", err)
	}

	return &Loader{
		options: options,
		runner: build.NewRunner(build.RunnerConfig{
			AllowedCapabilities: options.AllowedCapabilities,
		}, logger.Named("build")),
		strategy: s,
		logger:   logger,
		tracer:   otel.Tracer("daedalus/prerender"),
	}, nil
}

// Load renders content, the text of the template module identified by request. The result is
// the rendered document or substituted content, formatted as configured.
func (l *Loader) Load(ctx context.Context, parent *build.Compilation, request, content string) (string, error) {
	id := uuid.NewString()
	logger := l.logger.With(
		zap.String("invocation_id", id),
		zap.String("request", request))

	ctx, span := l.tracer.Start(ctx, "prerender.Load",
		trace.WithAttributes(
			attribute.String("invocation.id", id),
			attribute.String("request", request),
			attribute.String("strategy", l.strategy.Name()),
		))
	defer span.End()

	start := time.Now()
	out, err := l.load(ctx, logger, parent, content)
	duration := time.Since(start)
	span.SetAttributes(attribute.Int64("processing.duration_ms", duration.Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Prerender failed",
			zap.String("code", perrors.Code(err)),
			zap.Duration("duration", duration),
			zap.Error(err))
		return "", err
	}

	formatted, err := l.format(out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetStatus(codes.Ok, "Prerendered")
	logger.Info("Prerendered",
		zap.Duration("duration", duration),
		zap.Int("bytes", len(formatted)))
	return formatted, nil
}

func (l *Loader) load(ctx context.Context, logger *zap.Logger, parent *build.Compilation, content string) (string, error) {
	if l.options.Disabled {
		logger.Debug("Prerendering disabled; passing content through")
		return content, nil
	}
	if parent == nil || parent.Compiler == nil {
		return "", perrors.ConfigurationError("parent compilation is required")
	}

	var directive *entry.Directive
	if d, ok := entry.ParseDirective(l.options.Directive, content); ok {
		directive = &d
	}

	artifact, err := l.compile(ctx, logger, parent, directive)
	if err != nil {
		return "", err
	}

	req := l.request(content, directive)
	executeCtx, executeSpan := l.tracer.Start(ctx, "prerender.execute",
		trace.WithAttributes(attribute.Bool("placeholder", req.Directive != nil)))
	defer executeSpan.End()

	res, err := l.strategy.Execute(executeCtx, artifact, req)
	if err != nil {
		executeSpan.RecordError(err)
		executeSpan.SetStatus(codes.Error, err.Error())
		return "", err
	}
	executeSpan.SetAttributes(attribute.Bool("inserted", res.Inserted))
	return res.Output()
}

// Compile runs the sub-build for the configured entry without rendering, so one bundle can
// render many documents
func (l *Loader) Compile(ctx context.Context, parent *build.Compilation) (*build.Artifact, error) {
	if parent == nil || parent.Compiler == nil {
		return nil, perrors.ConfigurationError("parent compilation is required")
	}
	return l.compile(ctx, l.logger, parent, nil)
}

func (l *Loader) compile(ctx context.Context, logger *zap.Logger, parent *build.Compilation, d *entry.Directive) (*build.Artifact, error) {
	e, err := l.entry(parent, d)
	if err != nil {
		return nil, err
	}
	logger.Debug("Resolved prerender entry", zap.String("entry", e.String()))

	ctx, span := l.tracer.Start(ctx, "prerender.compile",
		trace.WithAttributes(attribute.String("entry", e.String())))
	defer span.End()

	artifact, err := l.runner.Run(ctx, parent, e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if artifact == nil {
		logger.Warn("Sub-build produced no bundle; rendering empty output")
	}
	return artifact, nil
}

// entry picks the sub-build entry: a directive path or configured override, else the entry of
// the top-level compiler.
func (l *Loader) entry(parent *build.Compilation, d *entry.Directive) (entry.Entry, error) {
	root := build.RootCompiler(parent.Compiler)
	dir := root.Options.Context

	if e, ok := entry.Override(d, l.options.Entry, l.options.OverrideRoot, dir, l.options.CWD); ok {
		return e, nil
	}
	if root.Options.Entry.IsZero() {
		return entry.Entry{}, perrors.ConfigurationError("no prerender entry: the compiler has no entry and none was configured")
	}
	return entry.Normalize(dir, root.Options.Entry, "./"), nil
}

// request selects the render path. A configured template wins, then content that is itself
// an HTML document, then the directive token in content. Otherwise the default document.
func (l *Loader) request(content string, d *entry.Directive) strategy.Request {
	req := strategy.Request{
		DirectiveName: l.options.Directive,
		Params:        l.options.Params,
		HasParams:     l.options.Params != nil,
		DocumentURL:   l.options.DocumentURL,
	}
	switch {
	case l.options.TemplateContent != "":
		req.Template = l.options.TemplateContent
	case documentRE.MatchString(content):
		req.Template = content
	case d != nil:
		req.Source = content
		req.Directive = d
	}
	return req
}

func (l *Loader) format(out string) (string, error) {
	if l.options.As != AsString {
		return out, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return "", err
	}
	return "export default " + strings.TrimSuffix(buf.String(), "\n"), nil
}
