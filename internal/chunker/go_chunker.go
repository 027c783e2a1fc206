package chunker

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// chunkGo splits Go source on function and type-declaration boundaries using
// the standard library's own parser, falling back to nil (triggering the
// sliding-window fallback) when the source does not parse.
func chunkGo(content, filePath string) []boundaryUnit {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, content, parser.ParseComments)
	if err != nil {
		return nil
	}

	lines := strings.Split(content, "\n")
	lineSlice := func(start, end int) string {
		if start < 1 {
			start = 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start > end {
			return ""
		}
		return strings.Join(lines[start-1:end], "\n")
	}

	var units []boundaryUnit
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			startLine := fset.Position(d.Pos()).Line
			endLine := fset.Position(d.End()).Line
			scope := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				scope = receiverTypeName(d.Recv.List[0].Type) + "." + scope
			}
			units = append(units, boundaryUnit{
				text:      lineSlice(startLine, endLine),
				startLine: startLine,
				endLine:   endLine,
				scopeName: scope,
			})
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				startLine := fset.Position(d.Pos()).Line
				endLine := fset.Position(ts.End()).Line
				units = append(units, boundaryUnit{
					text:      lineSlice(startLine, endLine),
					startLine: startLine,
					endLine:   endLine,
					scopeName: ts.Name.Name,
				})
			}
		}
	}

	return units
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	default:
		return ""
	}
}
