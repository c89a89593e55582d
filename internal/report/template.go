// Package report binds the rendered table and map views into the final HTML
// document and writes it to disk.
package report

import (
	"embed"
	"html/template"
	"os"
	"text/template/parse"

	"github.com/rotisserie/eris"
)

// Slots every report template must reference.
const (
	SlotTable = "table_html"
	SlotMap   = "map_html"
)

// Optional metadata slots.
const (
	SlotTitle       = "title"
	SlotRegion      = "region"
	SlotGeneratedAt = "generated_at"
	SlotRunID       = "run_id"
	SlotDiagnostics = "diagnostics"
)

// Template errors.
var (
	ErrTemplateMissing = eris.New("report: template missing")
	ErrTemplateRender  = eris.New("report: template render failed")
)

//go:embed templates/report.html.tmpl
var templates embed.FS

const defaultTemplate = "templates/report.html.tmpl"

// LoadTemplate reads and parses the template at path. An empty path selects
// the built-in template.
func LoadTemplate(path string) (*template.Template, error) {
	var (
		src []byte
		err error
	)
	if path == "" {
		src, err = templates.ReadFile(defaultTemplate)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrapf(ErrTemplateMissing, "read %q: %v", path, err)
	}
	return ParseTemplate(path, string(src))
}

// ParseTemplate parses src and checks that it references both required
// slots.
func ParseTemplate(name, src string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, eris.Wrapf(ErrTemplateRender, "parse %q: %v", name, err)
	}

	used := make(map[string]bool)
	for _, tt := range t.Templates() {
		if tt.Tree != nil {
			collectFields(tt.Tree.Root, used, true)
		}
	}
	for _, slot := range []string{SlotTable, SlotMap} {
		if !used[slot] {
			return nil, eris.Wrapf(ErrTemplateRender, "template %q has no %s slot", name, slot)
		}
	}
	return t, nil
}

// collectFields records the top-level field names referenced under n. root
// reports whether dot is the template's data there; inside range and with
// it is rebound, so only $-rooted fields count.
func collectFields(n parse.Node, used map[string]bool, root bool) {
	switch n := n.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, c := range n.Nodes {
			collectFields(c, used, root)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, used, root)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				collectFields(arg, used, root)
			}
		}
	case *parse.FieldNode:
		if root && len(n.Ident) > 0 {
			used[n.Ident[0]] = true
		}
	case *parse.VariableNode:
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			used[n.Ident[1]] = true
		}
	case *parse.IfNode:
		collectBranch(&n.BranchNode, used, root, root)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, used, root, false)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, used, root, root && isDot(n.Pipe))
	case *parse.TemplateNode:
		collectFields(n.Pipe, used, root)
	}
}

func collectBranch(b *parse.BranchNode, used map[string]bool, root, bodyRoot bool) {
	collectFields(b.Pipe, used, root)
	collectFields(b.List, used, bodyRoot)
	collectFields(b.ElseList, used, root)
}

// isDot reports whether pipe is a bare {{ . }}.
func isDot(pipe *parse.PipeNode) bool {
	if pipe == nil || len(pipe.Decl) > 0 || len(pipe.Cmds) != 1 || len(pipe.Cmds[0].Args) != 1 {
		return false
	}
	_, ok := pipe.Cmds[0].Args[0].(*parse.DotNode)
	return ok
}
