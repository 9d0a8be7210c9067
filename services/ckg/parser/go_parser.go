// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parser

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// GoParserOption configures a GoParser instance.
type GoParserOption func(*GoParser)

// WithGoMaxFileSize sets the maximum file size the parser will accept.
func WithGoMaxFileSize(bytes int64) GoParserOption {
	return func(p *GoParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// GoParser implements the Parser interface for Go source code.
//
// # Description
//
// GoParser uses tree-sitter to parse Go source files and extract entities:
// structs (mapped to Class), interfaces, functions and methods (mapped to
// Method), and struct fields. Struct nesting is expressed with CONTAINS
// relationships; call sites collected from function bodies are resolved
// against the batch by name and arity.
//
// # Thread Safety
//
// GoParser instances are safe for concurrent use. Each file parse creates
// its own tree-sitter parser instance internally.
type GoParser struct {
	maxFileSize int64
}

// NewGoParser creates a new GoParser with the given options.
func NewGoParser(opts ...GoParserOption) *GoParser {
	p := &GoParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFiles extracts entities and relationships from a batch of Go files.
//
// Individual file failures are recovered into Result.FileErrors; only a
// canceled context aborts the batch.
func (p *GoParser) ParseFiles(ctx context.Context, rootPath string, paths []string) (*Result, error) {
	return parseBatch(ctx, p, rootPath, paths)
}

// Language returns the canonical language tag for this parser.
func (p *GoParser) Language() string { return "go" }

// Extensions returns the file extensions this parser handles.
func (p *GoParser) Extensions() []string { return []string{".go"} }

func (p *GoParser) maxSize() int64 { return p.maxFileSize }

// extractFile parses one Go file into entities, structural relationships,
// and unresolved call sites / type references.
func (p *GoParser) extractFile(ctx context.Context, content []byte, filePath string) (*fileResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("tree-sitter returned nil root node")
	}

	fr := &fileResult{}
	if root.HasError() {
		// Partial extraction still proceeds; the error is reported
		// alongside whatever declarations parsed cleanly.
		fr.errors = append(fr.errors, "source contains syntax errors")
	}

	file := newFileEntity("go", filePath, content)
	fr.entities = append(fr.entities, file)

	// classByName links methods to their receiver type within this file.
	classByName := make(map[string]*entity.CodeEntity)

	// First pass: type declarations.
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child.Type() == "type_declaration" {
			p.extractTypeDecl(child, content, filePath, file, fr, classByName)
		}
	}

	// Second pass: functions and methods (receivers may resolve to types
	// declared later in the file, so types are indexed first).
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		switch child.Type() {
		case "function_declaration":
			p.extractFunction(child, content, filePath, file, fr)
		case "method_declaration":
			p.extractMethod(child, content, filePath, file, fr, classByName)
		}
	}

	return fr, nil
}

// extractTypeDecl extracts struct and interface declarations.
func (p *GoParser) extractTypeDecl(decl *sitter.Node, content []byte, filePath string, file *entity.CodeEntity, fr *fileResult, classByName map[string]*entity.CodeEntity) {
	for i := 0; i < int(decl.ChildCount()); i++ {
		spec := decl.Child(i)
		if spec.Type() != "type_spec" {
			continue
		}

		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil || typeNode == nil {
			continue
		}
		name := nodeText(nameNode, content)

		switch typeNode.Type() {
		case "struct_type":
			cls := p.newTypeEntity(entity.KindClass, name, filePath, spec)
			fr.entities = append(fr.entities, cls)
			fr.rels = append(fr.rels, containsEdge(file.ID, cls.ID, cls.StartLine))
			classByName[name] = cls
			p.extractStructFields(typeNode, content, filePath, cls, fr)

		case "interface_type":
			iface := p.newTypeEntity(entity.KindInterface, name, filePath, spec)
			fr.entities = append(fr.entities, iface)
			fr.rels = append(fr.rels, containsEdge(file.ID, iface.ID, iface.StartLine))
			p.extractInterfaceMembers(typeNode, content, filePath, iface, fr)
		}
	}
}

// newTypeEntity builds a Class or Interface entity from a type_spec node.
func (p *GoParser) newTypeEntity(kind entity.Kind, name, filePath string, spec *sitter.Node) *entity.CodeEntity {
	return &entity.CodeEntity{
		ID:            entity.GenerateID("go", filePath, name),
		Kind:          kind,
		Name:          name,
		QualifiedName: name,
		FilePath:      filePath,
		StartLine:     int(spec.StartPoint().Row + 1),
		EndLine:       int(spec.EndPoint().Row + 1),
		Visibility:    goVisibility(name),
		Language:      "go",
	}
}

// extractStructFields extracts named fields and embedded types.
//
// Embedded types become EXTENDS references (Go embedding is the closest
// analogue to inheritance this model carries); named field types become
// REFERENCES.
func (p *GoParser) extractStructFields(structType *sitter.Node, content []byte, filePath string, cls *entity.CodeEntity, fr *fileResult) {
	list := findChildOfType(structType, "field_declaration_list")
	if list == nil {
		return
	}

	for i := 0; i < int(list.ChildCount()); i++ {
		field := list.Child(i)
		if field.Type() != "field_declaration" {
			continue
		}

		typeNode := field.ChildByFieldName("type")
		line := int(field.StartPoint().Row + 1)

		var names []string
		for j := 0; j < int(field.ChildCount()); j++ {
			if c := field.Child(j); c.Type() == "field_identifier" {
				names = append(names, nodeText(c, content))
			}
		}

		if len(names) == 0 && typeNode != nil {
			// Embedded field: the type itself is the member.
			if tn := baseTypeName(nodeText(typeNode, content)); tn != "" {
				fr.typeRefs = append(fr.typeRefs, typeRef{
					SourceID: cls.ID,
					Name:     tn,
					Rel:      entity.RelExtends,
					Line:     line,
				})
			}
			continue
		}

		for _, name := range names {
			qn := cls.Name + "." + name
			f := &entity.CodeEntity{
				ID:            entity.GenerateID("go", filePath, qn),
				Kind:          entity.KindField,
				Name:          name,
				QualifiedName: qn,
				FilePath:      filePath,
				StartLine:     line,
				EndLine:       int(field.EndPoint().Row + 1),
				Visibility:    goVisibility(name),
				Language:      "go",
			}
			fr.entities = append(fr.entities, f)
			fr.rels = append(fr.rels, containsEdge(cls.ID, f.ID, line))
		}

		if typeNode != nil {
			if tn := baseTypeName(nodeText(typeNode, content)); tn != "" {
				fr.typeRefs = append(fr.typeRefs, typeRef{
					SourceID: cls.ID,
					Name:     tn,
					Rel:      entity.RelReferences,
					Line:     line,
				})
			}
		}
	}
}

// extractInterfaceMembers extracts method specs and embedded interfaces.
func (p *GoParser) extractInterfaceMembers(ifaceType *sitter.Node, content []byte, filePath string, iface *entity.CodeEntity, fr *fileResult) {
	for i := 0; i < int(ifaceType.ChildCount()); i++ {
		member := ifaceType.Child(i)
		switch member.Type() {
		case "method_spec", "method_elem":
			nameNode := member.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := nodeText(nameNode, content)
			qn := iface.Name + "." + name
			params := member.ChildByFieldName("parameters")

			m := &entity.CodeEntity{
				ID:            entity.GenerateID("go", filePath, qn),
				Kind:          entity.KindMethod,
				Name:          name,
				QualifiedName: qn,
				FilePath:      filePath,
				StartLine:     int(member.StartPoint().Row + 1),
				EndLine:       int(member.EndPoint().Row + 1),
				Visibility:    goVisibility(name),
				Language:      "go",
				Signature:     goSignature(member, content),
				Arity:         goArity(params, content),
			}
			fr.entities = append(fr.entities, m)
			fr.rels = append(fr.rels, containsEdge(iface.ID, m.ID, m.StartLine))

		case "type_identifier", "interface_type_name":
			// Embedded interface.
			if tn := baseTypeName(nodeText(member, content)); tn != "" {
				fr.typeRefs = append(fr.typeRefs, typeRef{
					SourceID: iface.ID,
					Name:     tn,
					Rel:      entity.RelExtends,
					Line:     int(member.StartPoint().Row + 1),
				})
			}
		}
	}
}

// extractFunction extracts a top-level function declaration.
func (p *GoParser) extractFunction(fn *sitter.Node, content []byte, filePath string, file *entity.CodeEntity, fr *fileResult) {
	nameNode := fn.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	m := &entity.CodeEntity{
		ID:            entity.GenerateID("go", filePath, name),
		Kind:          entity.KindMethod,
		Name:          name,
		QualifiedName: name,
		FilePath:      filePath,
		StartLine:     int(fn.StartPoint().Row + 1),
		EndLine:       int(fn.EndPoint().Row + 1),
		Visibility:    goVisibility(name),
		Language:      "go",
		Signature:     goSignature(fn, content),
		Arity:         goArity(fn.ChildByFieldName("parameters"), content),
	}
	fr.entities = append(fr.entities, m)
	fr.rels = append(fr.rels, containsEdge(file.ID, m.ID, m.StartLine))

	p.collectCallSites(fn.ChildByFieldName("body"), content, m.ID, fr)
}

// extractMethod extracts a method declaration, nesting it under its
// receiver type when that type is declared in the same file.
func (p *GoParser) extractMethod(fn *sitter.Node, content []byte, filePath string, file *entity.CodeEntity, fr *fileResult, classByName map[string]*entity.CodeEntity) {
	nameNode := fn.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)

	receiver := goReceiverType(fn.ChildByFieldName("receiver"), content)
	qn := name
	if receiver != "" {
		qn = receiver + "." + name
	}

	m := &entity.CodeEntity{
		ID:            entity.GenerateID("go", filePath, qn),
		Kind:          entity.KindMethod,
		Name:          name,
		QualifiedName: qn,
		FilePath:      filePath,
		StartLine:     int(fn.StartPoint().Row + 1),
		EndLine:       int(fn.EndPoint().Row + 1),
		Visibility:    goVisibility(name),
		Language:      "go",
		Signature:     goSignature(fn, content),
		Arity:         goArity(fn.ChildByFieldName("parameters"), content),
	}
	fr.entities = append(fr.entities, m)

	if cls, ok := classByName[receiver]; ok {
		fr.rels = append(fr.rels, containsEdge(cls.ID, m.ID, m.StartLine))
	} else {
		// Receiver type declared elsewhere; keep the method reachable
		// from its file.
		fr.rels = append(fr.rels, containsEdge(file.ID, m.ID, m.StartLine))
	}

	p.collectCallSites(fn.ChildByFieldName("body"), content, m.ID, fr)
}

// collectCallSites walks a function body and records every call expression
// whose callee is a plain identifier or a selector. Targets are resolved
// later against the whole batch.
func (p *GoParser) collectCallSites(body *sitter.Node, content []byte, callerID string, fr *fileResult) {
	if body == nil {
		return
	}

	stack := []*sitter.Node{body}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if node.Type() == "call_expression" {
			if site, ok := goCallSite(node, content, callerID); ok {
				fr.calls = append(fr.calls, site)
			}
		}

		for i := 0; i < int(node.ChildCount()); i++ {
			stack = append(stack, node.Child(i))
		}
	}
}

// goCallSite extracts the callee name and arity from a call_expression.
func goCallSite(call *sitter.Node, content []byte, callerID string) (callSite, bool) {
	fnNode := call.ChildByFieldName("function")
	if fnNode == nil {
		return callSite{}, false
	}

	var name string
	switch fnNode.Type() {
	case "identifier":
		name = nodeText(fnNode, content)
	case "selector_expression":
		if field := fnNode.ChildByFieldName("field"); field != nil {
			name = nodeText(field, content)
		}
	default:
		// Function literals, index expressions etc. are not resolvable
		// by name and produce no edge.
		return callSite{}, false
	}

	if name == "" {
		return callSite{}, false
	}

	arity := 0
	if args := call.ChildByFieldName("arguments"); args != nil {
		arity = int(args.NamedChildCount())
	}

	return callSite{
		CallerID: callerID,
		Name:     name,
		Arity:    arity,
		Line:     int(call.StartPoint().Row + 1),
	}, true
}

// goReceiverType extracts the bare receiver type name from a receiver
// parameter list, e.g. "(s *UserService)" -> "UserService".
func goReceiverType(receiver *sitter.Node, content []byte) string {
	if receiver == nil {
		return ""
	}
	for i := 0; i < int(receiver.ChildCount()); i++ {
		decl := receiver.Child(i)
		if decl.Type() != "parameter_declaration" {
			continue
		}
		if typeNode := decl.ChildByFieldName("type"); typeNode != nil {
			return baseTypeName(nodeText(typeNode, content))
		}
	}
	return ""
}

// goSignature renders "func(params) result" from a declaration node.
func goSignature(fn *sitter.Node, content []byte) string {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return ""
	}
	sig := "func" + nodeText(params, content)
	if result := fn.ChildByFieldName("result"); result != nil {
		sig += " " + nodeText(result, content)
	}
	return sig
}

// goArity counts declared parameters, expanding grouped names
// ("a, b int" counts as two).
func goArity(params *sitter.Node, content []byte) int {
	if params == nil {
		return 0
	}

	arity := 0
	for i := 0; i < int(params.ChildCount()); i++ {
		decl := params.Child(i)
		switch decl.Type() {
		case "parameter_declaration", "variadic_parameter_declaration":
			names := 0
			for j := 0; j < int(decl.ChildCount()); j++ {
				if decl.Child(j).Type() == "identifier" {
					names++
				}
			}
			if names == 0 {
				names = 1 // unnamed parameter
			}
			arity += names
		}
	}
	return arity
}

// goVisibility maps Go identifier case to the visibility enum:
// exported names are public, unexported names are package scoped.
func goVisibility(name string) entity.Visibility {
	if name == "" {
		return entity.VisibilityDefault
	}
	for _, r := range name {
		if unicode.IsUpper(r) {
			return entity.VisibilityPublic
		}
		return entity.VisibilityPackage
	}
	return entity.VisibilityDefault
}

// baseTypeName reduces a type expression to its bare type name.
// For example: "*User" -> "User", "[]pkg.User" -> "User".
func baseTypeName(typeExpr string) string {
	typeExpr = strings.TrimSpace(typeExpr)
	typeExpr = strings.TrimPrefix(typeExpr, "*")
	typeExpr = strings.TrimPrefix(typeExpr, "[]")
	typeExpr = strings.TrimPrefix(typeExpr, "*")

	// Drop generic arguments.
	if idx := strings.IndexAny(typeExpr, "[<"); idx > 0 {
		typeExpr = typeExpr[:idx]
	}

	// Keep the last selector segment.
	if idx := strings.LastIndex(typeExpr, "."); idx >= 0 {
		typeExpr = typeExpr[idx+1:]
	}

	if isGoBuiltin(typeExpr) {
		return ""
	}
	return typeExpr
}

// isGoBuiltin reports whether the type name is a Go builtin.
func isGoBuiltin(name string) bool {
	switch name {
	case "string", "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64", "uintptr",
		"float32", "float64", "complex64", "complex128",
		"bool", "byte", "rune", "error", "any":
		return true
	}
	return false
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

// findChildOfType returns the first direct child with the given type.
func findChildOfType(node *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); c.Type() == nodeType {
			return c
		}
	}
	return nil
}
