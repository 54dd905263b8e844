package entry

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// DefaultDirective is the placeholder name recognized in templates, as in {{HTML}}
const DefaultDirective = "HTML"

// OverrideRoot decides what an inline entry override is relative to
type OverrideRoot string

const (
	// RootCWD keeps the captured path verbatim, so the bundler resolves it from the working
	// directory the build runs in
	RootCWD OverrideRoot = "cwd"

	// RootContext rewrites the captured path relative to the build context
	RootContext OverrideRoot = "context"
)

var (
	patternsMu sync.Mutex
	patterns   = map[string]*regexp.Regexp{}
)

// Pattern returns the token regexp for a directive name: {{NAME}} or {{NAME: path}}
func Pattern(name string) *regexp.Regexp {
	if name == "" {
		name = DefaultDirective
	}
	patternsMu.Lock()
	defer patternsMu.Unlock()
	if re, ok := patterns[name]; ok {
		return re
	}
	re := regexp.MustCompile(`\{\{` + regexp.QuoteMeta(name) + `(?::\s*([^}]+?)\s*)?\}\}`)
	patterns[name] = re
	return re
}

// Directive is a placeholder token found in source content
type Directive struct {
	Name  string
	Token string
	Path  string
	Start int
	End   int
}

// ParseDirective finds the first directive token in content
func ParseDirective(name, content string) (Directive, bool) {
	re := Pattern(name)
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return Directive{}, false
	}
	d := Directive{
		Name:  name,
		Token: content[loc[0]:loc[1]],
		Start: loc[0],
		End:   loc[1],
	}
	if loc[2] >= 0 {
		d.Path = content[loc[2]:loc[3]]
	}
	return d, true
}

// Replace substitutes the first token occurrence in content
func (d Directive) Replace(content, with string) string {
	re := Pattern(d.Name)
	loc := re.FindStringIndex(content)
	if loc == nil {
		return content
	}
	return content[:loc[0]] + with + content[loc[1]:]
}

// Override computes the per-invocation entry. The captured directive path wins over the
// configured entry option; the last list item is used when configured holds several.
// Returns false when neither supplies a path and the parent's entry should be used.
func Override(d *Directive, configured []string, root OverrideRoot, context, cwd string) (Entry, bool) {
	custom := ""
	if d != nil && d.Path != "" {
		custom = d.Path
	} else if len(configured) > 0 {
		custom = configured[len(configured)-1]
	}
	custom = strings.TrimSpace(custom)
	if custom == "" {
		return Entry{}, false
	}

	if filepath.IsAbs(custom) {
		return Normalize(context, Single(custom), "./"), true
	}

	if root == RootCWD && cwd != "" && cwd != context {
		return Normalize(context, Single(filepath.Join(cwd, custom)), "./"), true
	}

	custom = strings.TrimPrefix(filepath.ToSlash(custom), "./")
	return Single("./" + custom), true
}
