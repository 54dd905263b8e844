package build

import (
	"encoding/json"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// stdinFilename names the synthetic module that requires every entry in order
const stdinFilename = "daedalus-entry.js"

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var loaders = map[string]api.Loader{
	"js":      api.LoaderJS,
	"jsx":     api.LoaderJSX,
	"ts":      api.LoaderTS,
	"tsx":     api.LoaderTSX,
	"json":    api.LoaderJSON,
	"text":    api.LoaderText,
	"css":     api.LoaderCSS,
	"file":    api.LoaderFile,
	"dataurl": api.LoaderDataURL,
	"base64":  api.LoaderBase64,
	"empty":   api.LoaderEmpty,
	"copy":    api.LoaderCopy,
}

// entrySource builds the synthetic entry module. Every path is required in order so side
// effects run as with a multi-file entry, and the last module provides the exports.
func entrySource(paths []string) string {
	var b strings.Builder
	for i, p := range paths {
		quoted, _ := json.Marshal(p)
		if i == len(paths)-1 {
			b.WriteString("module.exports = require(")
		} else {
			b.WriteString("require(")
		}
		b.Write(quoted)
		b.WriteString(");\n")
	}
	return b.String()
}

func (c *Compiler) buildOptions(outfile string) api.BuildOptions {
	o := c.Options
	opts := api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   entrySource(c.entries),
			ResolveDir: o.Context,
			Sourcefile: stdinFilename,
			Loader:     api.LoaderJS,
		},
		AbsWorkingDir:     o.Context,
		Bundle:            true,
		Write:             false,
		Outfile:           outfile,
		LogLevel:          api.LogLevelSilent,
		Target:            targets[o.Target],
		Define:            o.Define,
		External:          o.External,
		MinifyWhitespace:  o.Minify,
		MinifyIdentifiers: o.Minify,
		MinifySyntax:      o.Minify,
	}

	switch o.Output.Format {
	case FormatIIFE:
		opts.Format = api.FormatIIFE
		opts.GlobalName = o.Output.Library
	case FormatCJS:
		opts.Format = api.FormatCommonJS
	default:
		opts.Format = api.FormatESModule
	}

	if o.Output.Platform == PlatformNode {
		opts.Platform = api.PlatformNode
	} else {
		opts.Platform = api.PlatformBrowser
	}

	if len(o.Loaders) > 0 {
		opts.Loader = make(map[string]api.Loader, len(o.Loaders))
		for ext, name := range o.Loaders {
			opts.Loader[ext] = loaders[name]
		}
	}

	for _, p := range o.Plugins {
		if p.Setup == nil {
			continue
		}
		opts.Plugins = append(opts.Plugins, api.Plugin{Name: p.Name, Setup: p.Setup})
	}

	return opts
}

// FormatDiagnostics renders esbuild messages the way esbuild prints them, one per entry
func FormatDiagnostics(msgs []api.Message) []string {
	if len(msgs) == 0 {
		return nil
	}
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{
		Kind:  api.ErrorMessage,
		Color: false,
	})
	out := make([]string, 0, len(formatted))
	for _, f := range formatted {
		out = append(out, strings.TrimRight(f, "\n"))
	}
	return out
}
