package params

import (
	"regexp"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/madcore/madcore/pkg/telemetry"
)

var (
	blockPattern      = regexp.MustCompile(`\{\{(.*?)\}\}|\{%(.*?)%\}`)
	stringPattern     = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	identifierPattern = regexp.MustCompile(`(^|[^.|:\w])([A-Za-z_]\w*)`)

	tagNamePattern = regexp.MustCompile(`^[\s-]*(\w+)`)
	forPattern     = regexp.MustCompile(`^[\s-]*for\s+([A-Za-z_]\w*)(?:\s*,\s*([A-Za-z_]\w*))?\s+in\b`)
	assignPattern  = regexp.MustCompile(`([A-Za-z_]\w*)\s*=[^=]`)
	asPattern      = regexp.MustCompile(`\bas\s+([A-Za-z_]\w*)`)
)

// keywords are tag names and literals that never refer to a context value.
var keywords = map[string]bool{
	"if": true, "elif": true, "else": true, "endif": true,
	"for": true, "endfor": true, "in": true, "empty": true,
	"not": true, "and": true, "or": true, "is": true,
	"true": true, "false": true, "nil": true, "none": true,
	"True": true, "False": true, "None": true,
	"with": true, "endwith": true, "as": true, "set": true,
	"filter": true, "endfilter": true, "autoescape": true, "endautoescape": true,
	"comment": true, "endcomment": true, "spaceless": true, "endspaceless": true,
	"firstof": true, "now": true, "reversed": true, "sorted": true,
}

// TemplateExpander renders parameter values that contain placeholders.
type TemplateExpander struct {
	logger *telemetry.Logger
}

// NewTemplateExpander creates an expander. A nil logger discards diagnostics.
func NewTemplateExpander(logger *telemetry.Logger) *TemplateExpander {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &TemplateExpander{logger: logger}
}

// Expand renders template against vars. It never fails: a value that is not a
// template, references a name missing from vars, or does not parse or render
// is returned unchanged.
func (e *TemplateExpander) Expand(template string, vars map[string]string) string {
	if !isTemplate(template) {
		return template
	}

	for _, name := range referencedNames(template) {
		if _, ok := vars[name]; !ok {
			e.logger.Debugf("template %q references unknown name %s, keeping raw value", template, name)
			return template
		}
	}

	tpl, err := pongo2.FromString(template)
	if err != nil {
		e.logger.Debugf("template %q does not parse, keeping raw value: %v", template, err)
		return template
	}

	ctx := make(pongo2.Context, len(vars))
	for k, v := range vars {
		ctx[k] = v
	}
	out, err := tpl.Execute(ctx)
	if err != nil {
		e.logger.Debugf("template %q does not render, keeping raw value: %v", template, err)
		return template
	}
	return out
}

// referencedNames returns the context names used by the expressions and tags
// of template. Names bound by for, with and set tags are not context names;
// their scope is not tracked, so a bound name counts as known everywhere.
func referencedNames(template string) []string {
	blocks := blockPattern.FindAllStringSubmatch(template, -1)
	bound := boundNames(blocks)

	var names []string
	for _, block := range blocks {
		body := stringPattern.ReplaceAllString(block[1]+block[2], `""`)
		for _, m := range identifierPattern.FindAllStringSubmatch(body, -1) {
			if !keywords[m[2]] && !bound[m[2]] {
				names = append(names, m[2])
			}
		}
	}
	return names
}

// boundNames collects the variables that tags of the template define.
func boundNames(blocks [][]string) map[string]bool {
	bound := make(map[string]bool)
	for _, block := range blocks {
		body := stringPattern.ReplaceAllString(block[2], `""`)
		tag := tagNamePattern.FindStringSubmatch(body)
		if tag == nil {
			continue
		}
		switch tag[1] {
		case "for":
			if m := forPattern.FindStringSubmatch(body); m != nil {
				bound[m[1]] = true
				if m[2] != "" {
					bound[m[2]] = true
				}
			}
			bound["forloop"] = true
		case "with", "set":
			for _, m := range assignPattern.FindAllStringSubmatch(body, -1) {
				bound[m[1]] = true
			}
			for _, m := range asPattern.FindAllStringSubmatch(body, -1) {
				bound[m[1]] = true
			}
		}
	}
	return bound
}

func isTemplate(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%") || strings.Contains(s, "{#")
}
