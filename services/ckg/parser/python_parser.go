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

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/aidino/repochat-sub003/services/ckg/entity"
)

// PythonParserOption configures a PythonParser instance.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum file size the parser will accept.
func WithPythonMaxFileSize(bytes int64) PythonParserOption {
	return func(p *PythonParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// PythonParser implements the Parser interface for Python source code.
//
// # Description
//
// PythonParser uses tree-sitter to extract classes, functions, methods, and
// class-level attributes. Base classes listed in a class definition become
// EXTENDS references resolved against the batch; leading-underscore names
// follow the Python convention and are recorded as private.
//
// # Thread Safety
//
// PythonParser instances are safe for concurrent use.
type PythonParser struct {
	maxFileSize int64
}

// NewPythonParser creates a new PythonParser with the given options.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFiles extracts entities and relationships from a batch of Python files.
func (p *PythonParser) ParseFiles(ctx context.Context, rootPath string, paths []string) (*Result, error) {
	return parseBatch(ctx, p, rootPath, paths)
}

// Language returns the canonical language tag for this parser.
func (p *PythonParser) Language() string { return "python" }

// Extensions returns the file extensions this parser handles.
func (p *PythonParser) Extensions() []string { return []string{".py"} }

func (p *PythonParser) maxSize() int64 { return p.maxFileSize }

func (p *PythonParser) extractFile(ctx context.Context, content []byte, filePath string) (*fileResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

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
		fr.errors = append(fr.errors, "source contains syntax errors")
	}

	file := newFileEntity("python", filePath, content)
	fr.entities = append(fr.entities, file)

	p.extractBlock(root, content, filePath, file, "", fr)
	return fr, nil
}

// extractBlock walks the statements of a module or class body. parentQN is
// empty at module level and the class qualified name inside a class body.
func (p *PythonParser) extractBlock(block *sitter.Node, content []byte, filePath string, parent *entity.CodeEntity, parentQN string, fr *fileResult) {
	for i := 0; i < int(block.ChildCount()); i++ {
		stmt := block.Child(i)
		switch stmt.Type() {
		case "class_definition":
			p.extractClass(stmt, content, filePath, parent, parentQN, fr)
		case "function_definition":
			p.extractFunction(stmt, content, filePath, parent, parentQN, fr)
		case "decorated_definition":
			if def := stmt.ChildByFieldName("definition"); def != nil {
				switch def.Type() {
				case "class_definition":
					p.extractClass(def, content, filePath, parent, parentQN, fr)
				case "function_definition":
					p.extractFunction(def, content, filePath, parent, parentQN, fr)
				}
			}
		case "expression_statement":
			if parentQN != "" {
				p.extractClassAttribute(stmt, content, filePath, parent, parentQN, fr)
			}
		}
	}
}

func (p *PythonParser) extractClass(def *sitter.Node, content []byte, filePath string, parent *entity.CodeEntity, parentQN string, fr *fileResult) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)
	qn := joinQualified(parentQN, name)

	cls := &entity.CodeEntity{
		ID:            entity.GenerateID("python", filePath, qn),
		Kind:          entity.KindClass,
		Name:          name,
		QualifiedName: qn,
		FilePath:      filePath,
		StartLine:     int(def.StartPoint().Row + 1),
		EndLine:       int(def.EndPoint().Row + 1),
		Visibility:    pythonVisibility(name),
		Language:      "python",
	}
	fr.entities = append(fr.entities, cls)
	fr.rels = append(fr.rels, containsEdge(parent.ID, cls.ID, cls.StartLine))

	// Base classes: "class Dog(Animal):" yields an EXTENDS reference.
	if supers := def.ChildByFieldName("superclasses"); supers != nil {
		for j := 0; j < int(supers.NamedChildCount()); j++ {
			base := supers.NamedChild(j)
			var baseName string
			switch base.Type() {
			case "identifier":
				baseName = nodeText(base, content)
			case "attribute":
				if attr := base.ChildByFieldName("attribute"); attr != nil {
					baseName = nodeText(attr, content)
				}
			}
			if baseName == "" || baseName == "object" {
				continue
			}
			fr.typeRefs = append(fr.typeRefs, typeRef{
				SourceID: cls.ID,
				Name:     baseName,
				Rel:      entity.RelExtends,
				Line:     int(base.StartPoint().Row + 1),
			})
		}
	}

	if body := def.ChildByFieldName("body"); body != nil {
		p.extractBlock(body, content, filePath, cls, qn, fr)
	}
}

func (p *PythonParser) extractFunction(def *sitter.Node, content []byte, filePath string, parent *entity.CodeEntity, parentQN string, fr *fileResult) {
	nameNode := def.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := nodeText(nameNode, content)
	qn := joinQualified(parentQN, name)
	params := def.ChildByFieldName("parameters")

	m := &entity.CodeEntity{
		ID:            entity.GenerateID("python", filePath, qn),
		Kind:          entity.KindMethod,
		Name:          name,
		QualifiedName: qn,
		FilePath:      filePath,
		StartLine:     int(def.StartPoint().Row + 1),
		EndLine:       int(def.EndPoint().Row + 1),
		Visibility:    pythonVisibility(name),
		Language:      "python",
		Signature:     pythonSignature(def, content),
		Arity:         pythonArity(params, content, parentQN != ""),
	}
	fr.entities = append(fr.entities, m)
	fr.rels = append(fr.rels, containsEdge(parent.ID, m.ID, m.StartLine))

	p.collectCallSites(def.ChildByFieldName("body"), content, m.ID, fr)
}

// extractClassAttribute records class-level assignments as fields, e.g.
// "max_retries = 3" inside a class body.
func (p *PythonParser) extractClassAttribute(stmt *sitter.Node, content []byte, filePath string, cls *entity.CodeEntity, classQN string, fr *fileResult) {
	for i := 0; i < int(stmt.ChildCount()); i++ {
		assign := stmt.Child(i)
		if assign.Type() != "assignment" {
			continue
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != "identifier" {
			continue
		}
		name := nodeText(left, content)
		qn := classQN + "." + name

		f := &entity.CodeEntity{
			ID:            entity.GenerateID("python", filePath, qn),
			Kind:          entity.KindField,
			Name:          name,
			QualifiedName: qn,
			FilePath:      filePath,
			StartLine:     int(assign.StartPoint().Row + 1),
			EndLine:       int(assign.EndPoint().Row + 1),
			Visibility:    pythonVisibility(name),
			Language:      "python",
		}
		fr.entities = append(fr.entities, f)
		fr.rels = append(fr.rels, containsEdge(cls.ID, f.ID, f.StartLine))
	}
}

// collectCallSites walks a function body recording call expressions whose
// callee is an identifier or an attribute access.
func (p *PythonParser) collectCallSites(body *sitter.Node, content []byte, callerID string, fr *fileResult) {
	if body == nil {
		return
	}

	stack := []*sitter.Node{body}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// Nested definitions get their own entities and call sites.
		switch node.Type() {
		case "function_definition", "class_definition":
			continue
		}

		if node.Type() == "call" {
			if site, ok := pythonCallSite(node, content, callerID); ok {
				fr.calls = append(fr.calls, site)
			}
		}

		for i := 0; i < int(node.ChildCount()); i++ {
			stack = append(stack, node.Child(i))
		}
	}
}

func pythonCallSite(call *sitter.Node, content []byte, callerID string) (callSite, bool) {
	fnNode := call.ChildByFieldName("function")
	if fnNode == nil {
		return callSite{}, false
	}

	var name string
	switch fnNode.Type() {
	case "identifier":
		name = nodeText(fnNode, content)
	case "attribute":
		if attr := fnNode.ChildByFieldName("attribute"); attr != nil {
			name = nodeText(attr, content)
		}
	default:
		return callSite{}, false
	}

	if name == "" || isPythonBuiltin(name) {
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

// pythonSignature renders "def name(params)" without the body.
func pythonSignature(def *sitter.Node, content []byte) string {
	nameNode := def.ChildByFieldName("name")
	params := def.ChildByFieldName("parameters")
	if nameNode == nil || params == nil {
		return ""
	}
	sig := "def " + nodeText(nameNode, content) + nodeText(params, content)
	if ret := def.ChildByFieldName("return_type"); ret != nil {
		sig += " -> " + nodeText(ret, content)
	}
	return sig
}

// pythonArity counts declared parameters. For methods the implicit
// self/cls receiver is excluded so call-site arities line up.
func pythonArity(params *sitter.Node, content []byte, isMethod bool) int {
	if params == nil {
		return 0
	}

	arity := 0
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		switch param.Type() {
		case "identifier", "typed_parameter", "default_parameter",
			"typed_default_parameter", "list_splat_pattern", "dictionary_splat_pattern":
			if isMethod && arity == 0 && i == 0 {
				text := nodeText(param, content)
				if text == "self" || text == "cls" {
					continue
				}
			}
			arity++
		}
	}
	return arity
}

// pythonVisibility follows the underscore convention: a leading underscore
// marks a private member, anything else is public.
func pythonVisibility(name string) entity.Visibility {
	if strings.HasPrefix(name, "_") {
		return entity.VisibilityPrivate
	}
	return entity.VisibilityPublic
}

// isPythonBuiltin filters common builtins so call resolution does not
// produce spurious heuristic matches against user code.
func isPythonBuiltin(name string) bool {
	switch name {
	case "print", "len", "range", "str", "int", "float", "bool", "list",
		"dict", "set", "tuple", "isinstance", "super", "enumerate", "zip",
		"open", "type", "getattr", "setattr", "hasattr", "repr", "sorted",
		"min", "max", "sum", "abs", "format", "iter", "next":
		return true
	}
	return false
}

// joinQualified joins a parent qualified name and a member name.
func joinQualified(parentQN, name string) string {
	if parentQN == "" {
		return name
	}
	return parentQN + "." + name
}
