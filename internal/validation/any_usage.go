// Package validation enforces the any-usage allowlist. Design documents
// cross the API as decoded JSON, so `any` is legitimate at those
// boundaries and nowhere else; every other occurrence needs an allowlist
// entry with an owner and a rationale.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Allowlist captures the approved any-usage locations.
type Allowlist struct {
	Version      int      `json:"version"`
	ExcludeGlobs []string `json:"exclude_globs"`
	Entries      []Entry  `json:"entries"`
}

// Entry scopes an exception to a file, optionally narrowed to named
// top-level symbols. Methods count under their receiver type.
type Entry struct {
	Path      string   `json:"path"`
	Symbols   []string `json:"symbols,omitempty"`
	Category  string   `json:"category"`
	Public    bool     `json:"public"`
	Rationale string   `json:"rationale"`
	Owner     string   `json:"owner"`
}

var categories = map[string]struct{}{
	"json-boundary":      {},
	"generic-constraint": {},
	"internal-helper":    {},
	"test-only":          {},
}

// Violation reports one disallowed any usage.
type Violation struct {
	File    string
	Line    int
	Symbol  string
	Message string
	Code    string
}

// LoadAllowlist reads and validates the allowlist from disk.
func LoadAllowlist(path string) (Allowlist, error) {
	// #nosec G304 -- allowlist path is provided by repo tooling during linting
	data, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, fmt.Errorf("read any allowlist: %w", err)
	}
	var list Allowlist
	if err := json.Unmarshal(data, &list); err != nil {
		return Allowlist{}, fmt.Errorf("parse any allowlist: %w", err)
	}
	if err := normalizeAllowlist(&list); err != nil {
		return Allowlist{}, err
	}
	return list, nil
}

// CheckAnyUsageFromFile loads the allowlist and scans the roots.
func CheckAnyUsageFromFile(listPath, baseDir string, roots []string) ([]Violation, error) {
	list, err := LoadAllowlist(listPath)
	if err != nil {
		return nil, err
	}
	return CheckAnyUsage(list, baseDir, roots)
}

// CheckAnyUsage walks the given roots and reports every any usage the
// allowlist does not cover.
func CheckAnyUsage(list Allowlist, baseDir string, roots []string) ([]Violation, error) {
	if len(roots) == 0 {
		return nil, errors.New("no roots provided for any usage validation")
	}
	if err := normalizeAllowlist(&list); err != nil {
		return nil, err
	}
	baseAbs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}
	index := buildIndex(list)
	var violations []Violation

	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		rootPath := root
		if !filepath.IsAbs(rootPath) {
			rootPath = filepath.Join(baseAbs, rootPath)
		}
		info, err := os.Stat(rootPath)
		if err != nil {
			return nil, fmt.Errorf("stat root %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("root %s is not a directory", root)
		}
		if err := filepath.WalkDir(rootPath, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() || !strings.HasSuffix(path, ".go") {
				return nil
			}
			rel, err := filepath.Rel(baseAbs, path)
			if err != nil {
				return err
			}
			rel = normalizePath(rel)
			if excluded(rel, list.ExcludeGlobs) || index.wholeFile[rel] {
				return nil
			}
			fileViolations, err := checkFile(path, rel, index)
			if err != nil {
				return err
			}
			violations = append(violations, fileViolations...)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return violations, nil
}

func normalizeAllowlist(list *Allowlist) error {
	if list.Version <= 0 {
		return errors.New("any allowlist version must be >= 1")
	}
	for i, entry := range list.Entries {
		entry.Path = normalizePath(entry.Path)
		if entry.Path == "" || entry.Path == "." {
			return fmt.Errorf("any allowlist entry %d missing path", i)
		}
		entry.Category = strings.TrimSpace(entry.Category)
		if entry.Category == "" {
			return fmt.Errorf("any allowlist entry %d missing category", i)
		}
		if _, ok := categories[entry.Category]; !ok {
			return fmt.Errorf("any allowlist entry %d has unknown category %q", i, entry.Category)
		}
		if entry.Owner = strings.TrimSpace(entry.Owner); entry.Owner == "" {
			return fmt.Errorf("any allowlist entry %d missing owner", i)
		}
		if entry.Rationale = strings.TrimSpace(entry.Rationale); entry.Rationale == "" {
			return fmt.Errorf("any allowlist entry %d missing rationale", i)
		}
		if entry.Public && entry.Category != "json-boundary" {
			return fmt.Errorf("any allowlist entry %d: public exceptions must be json-boundary", i)
		}
		entry.Symbols = trimSymbols(entry.Symbols)
		list.Entries[i] = entry
	}
	for i, glob := range list.ExcludeGlobs {
		list.ExcludeGlobs[i] = strings.TrimSpace(glob)
	}
	return nil
}

func normalizePath(p string) string {
	cleaned := filepath.ToSlash(filepath.Clean(strings.TrimSpace(p)))
	return strings.TrimPrefix(cleaned, "./")
}

func trimSymbols(symbols []string) []string {
	out := symbols[:0]
	for _, symbol := range symbols {
		if symbol = strings.TrimSpace(symbol); symbol != "" {
			out = append(out, symbol)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// allowIndex resolves exceptions: whole files, or named symbols per file.
type allowIndex struct {
	wholeFile map[string]bool
	symbols   map[string]map[string]struct{}
}

func buildIndex(list Allowlist) allowIndex {
	index := allowIndex{
		wholeFile: make(map[string]bool),
		symbols:   make(map[string]map[string]struct{}),
	}
	for _, entry := range list.Entries {
		if len(entry.Symbols) == 0 {
			index.wholeFile[entry.Path] = true
			continue
		}
		set, ok := index.symbols[entry.Path]
		if !ok {
			set = make(map[string]struct{})
			index.symbols[entry.Path] = set
		}
		for _, symbol := range entry.Symbols {
			set[symbol] = struct{}{}
		}
	}
	return index
}

func (index allowIndex) allows(relPath, symbol string) bool {
	if index.wholeFile[relPath] {
		return true
	}
	if symbol == "" {
		return false
	}
	set, ok := index.symbols[relPath]
	if !ok {
		return false
	}
	_, ok = set[symbol]
	return ok
}

func checkFile(path, relPath string, index allowIndex) ([]Violation, error) {
	// #nosec G304 -- path comes from walking validated roots
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments)
	if err != nil {
		return nil, err
	}
	constraints := collectConstraintSpans(file)
	decls := collectDeclSpans(file)
	uses := collectAnyIdents(file, constraints)
	if len(uses) == 0 {
		return nil, nil
	}
	lines := strings.Split(string(content), "\n")
	var violations []Violation
	for _, pos := range uses {
		position := fset.Position(pos)
		symbol := declFor(decls, pos)
		if index.allows(relPath, symbol) {
			continue
		}
		code := ""
		if position.Line > 0 && position.Line <= len(lines) {
			code = strings.TrimSpace(lines[position.Line-1])
		}
		violations = append(violations, Violation{
			File:    relPath,
			Line:    position.Line,
			Symbol:  symbol,
			Message: "disallowed any usage; add an allowlist entry or use a concrete type",
			Code:    code,
		})
	}
	return violations, nil
}

// span is a half-open position range inside one file.
type span struct {
	start token.Pos
	end   token.Pos
}

// collectConstraintSpans gathers type-parameter lists. `any` as a generic
// constraint is ordinary Go and never flagged.
func collectConstraintSpans(file *ast.File) []span {
	var spans []span
	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncType:
			spans = append(spans, fieldSpans(node.TypeParams)...)
		case *ast.TypeSpec:
			spans = append(spans, fieldSpans(node.TypeParams)...)
		}
		return true
	})
	return spans
}

func fieldSpans(fields *ast.FieldList) []span {
	if fields == nil {
		return nil
	}
	var spans []span
	for _, field := range fields.List {
		if field == nil || field.Type == nil {
			continue
		}
		spans = append(spans, span{start: field.Type.Pos(), end: field.Type.End()})
	}
	return spans
}

func collectAnyIdents(file *ast.File, constraints []span) []token.Pos {
	var uses []token.Pos
	var stack []ast.Node
	ast.Inspect(file, func(n ast.Node) bool {
		if n == nil {
			stack = stack[:len(stack)-1]
			return true
		}
		stack = append(stack, n)
		ident, ok := n.(*ast.Ident)
		if ok && ident.Name == "any" && isTypePosition(stack) && !within(ident.Pos(), constraints) {
			uses = append(uses, ident.Pos())
		}
		return true
	})
	return uses
}

func within(pos token.Pos, spans []span) bool {
	for _, s := range spans {
		if pos >= s.start && pos <= s.end {
			return true
		}
	}
	return false
}

// isTypePosition reports whether the identifier on top of the stack sits
// where a type is expected, which distinguishes the builtin `any` from a
// variable that merely shares the name.
func isTypePosition(stack []ast.Node) bool {
	if len(stack) < 2 {
		return false
	}
	parent := stack[len(stack)-2]
	child := stack[len(stack)-1]
	switch node := parent.(type) {
	case *ast.ArrayType:
		return node.Elt == child
	case *ast.MapType:
		return node.Key == child || node.Value == child
	case *ast.ChanType:
		return node.Value == child
	case *ast.StarExpr:
		return node.X == child
	case *ast.Ellipsis:
		return node.Elt == child
	case *ast.Field:
		return node.Type == child
	case *ast.ValueSpec:
		return node.Type == child
	case *ast.TypeSpec:
		return node.Type == child
	case *ast.TypeAssertExpr:
		return node.Type == child
	case *ast.IndexExpr:
		return node.Index == child
	case *ast.IndexListExpr:
		for _, index := range node.Indices {
			if index == child {
				return true
			}
		}
	case *ast.CallExpr:
		return node.Fun == child
	}
	return false
}

// declSpan maps a top-level declaration to the symbol name the allowlist
// scopes by. Methods resolve to their receiver type.
type declSpan struct {
	name string
	span
}

func collectDeclSpans(file *ast.File) []declSpan {
	var decls []declSpan
	for _, decl := range file.Decls {
		switch node := decl.(type) {
		case *ast.GenDecl:
			for _, s := range node.Specs {
				switch s := s.(type) {
				case *ast.TypeSpec:
					decls = append(decls, declSpan{name: s.Name.Name, span: span{start: s.Pos(), end: s.End()}})
				case *ast.ValueSpec:
					for _, name := range s.Names {
						decls = append(decls, declSpan{name: name.Name, span: span{start: s.Pos(), end: s.End()}})
					}
				}
			}
		case *ast.FuncDecl:
			name := node.Name.Name
			if node.Recv != nil && len(node.Recv.List) > 0 {
				if recv := receiverName(node.Recv.List[0].Type); recv != "" {
					name = recv
				}
			}
			decls = append(decls, declSpan{name: name, span: span{start: node.Pos(), end: node.End()}})
		}
	}
	return decls
}

func receiverName(expr ast.Expr) string {
	switch node := expr.(type) {
	case *ast.Ident:
		return node.Name
	case *ast.StarExpr:
		return receiverName(node.X)
	case *ast.IndexExpr:
		return receiverName(node.X)
	case *ast.IndexListExpr:
		return receiverName(node.X)
	}
	return ""
}

func declFor(decls []declSpan, pos token.Pos) string {
	for _, d := range decls {
		if pos >= d.start && pos <= d.end {
			return d.name
		}
	}
	return ""
}

func excluded(relPath string, globs []string) bool {
	for _, glob := range globs {
		if glob == "" {
			continue
		}
		if matched, err := matchGlob(glob, relPath); err == nil && matched {
			return true
		}
	}
	return false
}

// matchGlob supports ** across path separators, which path.Match does not.
func matchGlob(pattern, value string) (bool, error) {
	escaped := regexp.QuoteMeta(normalizePath(pattern))
	escaped = strings.ReplaceAll(escaped, `\*\*`, "<<ANY>>")
	escaped = strings.ReplaceAll(escaped, `\*`, `[^/]*`)
	escaped = strings.ReplaceAll(escaped, `\?`, `[^/]`)
	escaped = strings.ReplaceAll(escaped, "<<ANY>>", ".*")
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return false, err
	}
	return re.MatchString(normalizePath(value)), nil
}
