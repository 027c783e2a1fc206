package chunker

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

type entity struct {
	name      string
	startLine int
	endLine   int
}

var tsLanguages = map[string]func() *sitter.Language{
	"go":         golang.GetLanguage,
	"python":     python.GetLanguage,
	"javascript": javascript.GetLanguage,
	"typescript": typescript.GetLanguage,
	"java":       java.GetLanguage,
}

// namedDeclNodeTypes are the tree-sitter node kinds, per grammar, whose
// first identifier child names a function/class/method entity.
var namedDeclNodeTypes = map[string][]string{
	"go":         {"function_declaration", "method_declaration", "type_declaration"},
	"python":     {"function_definition", "class_definition"},
	"javascript": {"function_declaration", "class_declaration", "method_definition"},
	"typescript": {"function_declaration", "class_declaration", "method_definition", "interface_declaration"},
	"java":       {"method_declaration", "class_declaration", "interface_declaration"},
}

// parseEntities runs tree-sitter over source and returns every named
// declaration node together with the source bytes, or ok=false when no
// grammar is registered for lang or the source fails to parse. Each node
// holds a reference to its parsed tree, so the tree stays alive for as long
// as the caller uses the nodes and is not closed here. Callers that need
// chunk boundaries and callers that only need name hints for an
// already-chunked unit share this single walk.
func parseEntities(content, lang string) (nodes []*sitter.Node, src []byte, ok bool) {
	langFn, registered := tsLanguages[lang]
	if !registered {
		return nil, nil, false
	}
	declTypes := namedDeclNodeTypes[lang]
	if len(declTypes) == 0 {
		return nil, nil, false
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(langFn())

	src = []byte(content)
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil || tree == nil {
		return nil, nil, false
	}

	declSet := make(map[string]bool, len(declTypes))
	for _, t := range declTypes {
		declSet[t] = true
	}

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if declSet[n.Type()] {
			nodes = append(nodes, n)
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())
	return nodes, src, true
}

// extractEntities returns named declarations with their line ranges, used
// to enrich the contextualized text with entity hints. It walks the same
// declarations chunkByEntities cuts chunk boundaries from, so every chunk
// it applies to names itself in its own hint list.
func extractEntities(content, lang string) []entity {
	nodes, src, ok := parseEntities(content, lang)
	if !ok {
		return nil
	}
	out := make([]entity, 0, len(nodes))
	for _, n := range nodes {
		if name := firstIdentifier(n, src); name != "" {
			out = append(out, entity{
				name:      name,
				startLine: int(n.StartPoint().Row) + 1,
				endLine:   int(n.EndPoint().Row) + 1,
			})
		}
	}
	return out
}

// chunkByEntities cuts chunk boundaries directly from tree-sitter's
// top-level named declarations (function/class/method nodes), slicing
// each chunk's text from the node's own byte range rather than
// re-deriving it from regex/brace-depth matching. ok is false only when
// no grammar is registered for lang or the source fails to parse — the
// caller falls back to chunkByBoundary in that case only.
func chunkByEntities(content, lang string) (units []boundaryUnit, ok bool) {
	nodes, src, ok := parseEntities(content, lang)
	if !ok {
		return nil, false
	}
	for _, n := range nodes {
		name := firstIdentifier(n, src)
		units = append(units, boundaryUnit{
			text:      string(src[n.StartByte():n.EndByte()]),
			startLine: int(n.StartPoint().Row) + 1,
			endLine:   int(n.EndPoint().Row) + 1,
			scopeName: name,
		})
	}
	return units, true
}

func firstIdentifier(n *sitter.Node, src []byte) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "identifier" || c.Type() == "type_identifier" || c.Type() == "property_identifier" {
			return c.Content(src)
		}
	}
	return ""
}

// entitiesInRange returns the names of entities whose range overlaps
// [startLine, endLine].
func entitiesInRange(entities []entity, startLine, endLine int) []string {
	var names []string
	seen := map[string]bool{}
	for _, e := range entities {
		if e.startLine > endLine || e.endLine < startLine {
			continue
		}
		if !seen[e.name] {
			seen[e.name] = true
			names = append(names, e.name)
		}
	}
	return names
}
