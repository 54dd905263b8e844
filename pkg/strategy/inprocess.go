package strategy

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/document"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	"github.com/wehubfusion/Daedalus/pkg/render"
	"github.com/wehubfusion/Daedalus/pkg/sandbox"
	"go.uber.org/zap"
)

// InProcess renders inside a fresh sandbox per request
type InProcess struct {
	config sandbox.Config
	logger *zap.Logger
}

// NewInProcess creates an in-process strategy. config is the base for every sandbox;
// DocumentURL is overridden per request when set.
func NewInProcess(config sandbox.Config, logger *zap.Logger) *InProcess {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Logger == nil {
		config.Logger = logger.Named("sandbox")
	}
	return &InProcess{config: config, logger: logger}
}

// Name returns the strategy kind
func (p *InProcess) Name() string { return KindSandbox }

// Execute evaluates the artifact and renders its best export
func (p *InProcess) Execute(ctx context.Context, artifact *build.Artifact, req Request) (Result, error) {
	token := entry.Pattern(req.directiveName())

	template := req.Template
	if req.Directive != nil {
		template = ""
	}
	doc, err := document.Parse(template, token)
	if err != nil {
		return Result{}, err
	}

	var res render.Result
	if artifact != nil {
		res, err = p.render(ctx, doc, artifact, req)
		if err != nil {
			return Result{}, err
		}
	} else {
		p.logger.Warn("no bundle to evaluate; rendering empty output")
	}

	if req.Directive != nil {
		return Result{Markup: render.Substitute(req.Source, *req.Directive, res)}, nil
	}
	if err := render.Inject(doc, res); err != nil {
		return Result{}, err
	}
	return Result{Document: doc, Inserted: res.Defined}, nil
}

func (p *InProcess) render(ctx context.Context, doc *document.Document, artifact *build.Artifact, req Request) (render.Result, error) {
	config := p.config
	if req.DocumentURL != "" {
		config.DocumentURL = req.DocumentURL
	}
	sb, err := sandbox.New(doc, config)
	if err != nil {
		return render.Result{}, err
	}
	defer sb.Close()

	exports, err := sb.Evaluate(ctx, artifact)
	if err != nil {
		return render.Result{}, err
	}
	return render.Resolve(ctx, sb, exports, req.params()...)
}
