package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/document"
	"github.com/wehubfusion/Daedalus/pkg/entry"
	perrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/render"
	"go.uber.org/zap"
)

const (
	// SourceFilename is the artifact as written into the workspace
	SourceFilename = "ssg-source.js"

	// RunnerFilename is the stub the external command executes
	RunnerFilename = "index.js"

	// ParamsFilename holds the JSON-encoded render params
	ParamsFilename = "ssg-params.json"

	maxStderr = 64 << 10
)

// runnerScript loads the artifact, renders its best export and writes the result to stdout
const runnerScript = `const ssg = require("./` + SourceFilename + `");
const params = %s;

function best(exports) {
  if (exports === null || (typeof exports !== "object")) return exports;
  if (exports.default) return exports.default;
  for (const key in exports) {
    if (key !== "__esModule") return exports[key];
  }
  return undefined;
}

const app = best(ssg);
Promise.resolve(typeof app === "function" ? app(...params) : app).then(
  (out) => {
    if (out !== undefined && out !== null) process.stdout.write(String(out));
  },
  (err) => {
    console.error((err && err.stack) || String(err));
    process.exitCode = 1;
  }
);
`

// ProcessConfig configures the external command
type ProcessConfig struct {
	// Command is the program executed with the workspace as working directory
	Command string `json:"command,omitempty" yaml:"command,omitempty"`

	// Args are passed to Command
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Env is appended to the inherited environment
	Env []string `json:"env,omitempty" yaml:"env,omitempty"`

	// Root is where workspaces are created. Empty means the system temp path.
	Root string `json:"root,omitempty" yaml:"root,omitempty"`
}

// ApplyDefaults sets default values for configuration fields
func (c *ProcessConfig) ApplyDefaults() {
	if c.Command == "" {
		c.Command = "node"
	}
	if len(c.Args) == 0 {
		c.Args = []string{RunnerFilename}
	}
}

// Validate checks if the configuration is valid
func (c *ProcessConfig) Validate() error {
	if strings.TrimSpace(c.Command) == "" {
		return perrors.ConfigurationError("process strategy requires a command")
	}
	if len(c.Args) == 0 {
		return perrors.ConfigurationError("process strategy requires arguments")
	}
	return nil
}

// Process renders by running the artifact in an external program
type Process struct {
	config ProcessConfig
	logger *zap.Logger
}

// NewProcess creates a process strategy. config is used as given: a missing command or
// arguments fails each Execute before anything is spawned.
func NewProcess(config ProcessConfig, logger *zap.Logger) *Process {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Process{config: config, logger: logger}
}

// Name returns the strategy kind
func (p *Process) Name() string { return KindProcess }

// Execute writes the artifact and runner into a fresh workspace, runs the command there and
// substitutes its standard output into the template. The workspace is removed afterwards
// whether or not the command succeeded.
func (p *Process) Execute(ctx context.Context, artifact *build.Artifact, req Request) (Result, error) {
	if err := p.config.Validate(); err != nil {
		return Result{}, err
	}

	var res render.Result
	if artifact != nil {
		out, err := p.run(ctx, artifact, req)
		if err != nil {
			return Result{}, err
		}
		res = render.Result{Markup: out, Defined: true}
	}
	return substitute(req, res)
}

func (p *Process) run(ctx context.Context, artifact *build.Artifact, req Request) (string, error) {
	ws, err := NewWorkspace(p.config.Root)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			p.logger.Warn("failed to remove workspace", zap.String("dir", ws.Dir), zap.Error(err))
		}
	}()

	if err := p.populate(ws, artifact, req); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, p.config.Command, p.config.Args...)
	cmd.Dir = ws.Dir
	cmd.Env = append(cmd.Environ(), p.config.Env...)
	var stdout bytes.Buffer
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	commandLine := strings.Join(append([]string{p.config.Command}, p.config.Args...), " ")
	p.logger.Debug("running external render",
		zap.String("command", commandLine),
		zap.String("dir", ws.Dir))

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", perrors.ProcessExitError(commandLine, err)
	}
	return stdout.String(), nil
}

func (p *Process) populate(ws *Workspace, artifact *build.Artifact, req Request) error {
	for name, src := range artifact.Assets {
		if name == artifact.Filename {
			continue
		}
		if err := ws.WriteFile(name, []byte(src)); err != nil {
			return err
		}
	}

	library := artifact.Library
	if library == "" {
		library = build.DefaultLibrary
	}
	source := artifact.Source + "\nmodule.exports = " + library + ";\n"
	if err := ws.WriteFile(SourceFilename, []byte(source)); err != nil {
		return err
	}

	params, err := json.Marshal(req.params())
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	if params == nil || string(params) == "null" {
		params = []byte("[]")
	}
	if err := ws.WriteFile(ParamsFilename, params); err != nil {
		return err
	}
	return ws.WriteFile(RunnerFilename, []byte(fmt.Sprintf(runnerScript, "require(\"./"+ParamsFilename+"\")")))
}

// substitute places the captured output at the directive token. Without a token in the
// template the output is injected at the document's insertion point.
func substitute(req Request, res render.Result) (Result, error) {
	if req.Directive != nil {
		return Result{Markup: render.Substitute(req.Source, *req.Directive, res)}, nil
	}

	template := req.Template
	if strings.TrimSpace(template) == "" {
		template = document.DefaultTemplate
	}
	if d, ok := entry.ParseDirective(req.directiveName(), template); ok {
		return Result{Markup: render.Substitute(template, d, res)}, nil
	}

	doc, err := document.Parse(template, entry.Pattern(req.directiveName()))
	if err != nil {
		return Result{}, err
	}
	if err := render.Inject(doc, res); err != nil {
		return Result{}, err
	}
	return Result{Document: doc, Inserted: res.Defined}, nil
}

// limitedBuffer keeps the first max bytes written to it
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string { return b.buf.String() }
