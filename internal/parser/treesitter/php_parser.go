// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package treesitter is the default Parser adapter: it walks a PHP file's
// tree-sitter parse tree and extracts class-like declarations, their
// members, and the attributes attached to each. Grounded on the
// tree-sitter traversal shape used for every language parser in the
// pack's ast package (one parser.Parse call per file, a fresh
// *sitter.Parser per call for goroutine safety, child-by-child node-type
// switching rather than a visitor framework).
package treesitter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/discoveryd/discoveryd/internal/metadata"
)

// ErrContentTooLarge mirrors the size gate already enforced by package
// scanner; Parser defends it too, since a Parser may be reused directly
// by callers outside the scan pipeline.
var ErrContentTooLarge = errors.New("php content exceeds parser size limit")

const defaultMaxSize = 10 * 1 << 20

// Parser is the default tree-sitter-backed PHP Parser.
type Parser struct {
	MaxSize int64
}

func (p *Parser) maxSize() int64 {
	if p.MaxSize > 0 {
		return p.MaxSize
	}
	return defaultMaxSize
}

// Parse implements parser.Parser.
func (p *Parser) Parse(ctx context.Context, path string, content []byte) ([]metadata.Symbol, error) {
	if int64(len(content)) > p.maxSize() {
		return nil, fmt.Errorf("%w: %s", ErrContentTooLarge, path)
	}

	sp := sitter.NewParser()
	sp.SetLanguage(php.GetLanguage())

	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, nil
	}

	w := &walker{content: content, path: path, namespace: ""}
	w.walk(root)
	return w.symbols, nil
}

type walker struct {
	content   []byte
	path      string
	namespace string
	symbols   []metadata.Symbol
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

func (w *walker) walk(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "namespace_definition":
			if name := child.ChildByFieldName("name"); name != nil {
				w.namespace = w.text(name)
			}
		case "class_declaration":
			w.symbols = append(w.symbols, w.declaration(child, metadata.KindClass))
		case "interface_declaration":
			w.symbols = append(w.symbols, w.declaration(child, metadata.KindInterface))
		case "trait_declaration":
			w.symbols = append(w.symbols, w.declaration(child, metadata.KindTrait))
		case "enum_declaration":
			w.symbols = append(w.symbols, w.declaration(child, metadata.KindEnum))
		default:
			w.walk(child)
		}
	}
}

func (w *walker) declaration(n *sitter.Node, kind metadata.SymbolKind) metadata.Symbol {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = w.text(nameNode)
	}

	sym := metadata.Symbol{
		FQN:        fqn(w.namespace, name),
		Path:       w.path,
		Kind:       kind,
		Attributes: precedingAttributes(w, n),
	}

	body := n.ChildByFieldName("body")
	if body == nil {
		return sym
	}
	for i := 0; i < int(body.ChildCount()); i++ {
		member := body.Child(i)
		switch member.Type() {
		case "method_declaration":
			sym.Methods = append(sym.Methods, w.member(member, "method"))
		case "property_declaration":
			sym.Properties = append(sym.Properties, w.propertyMembers(member)...)
		case "enum_case":
			sym.EnumCases = append(sym.EnumCases, w.member(member, "case"))
		}
	}
	return sym
}

func (w *walker) member(n *sitter.Node, kind string) metadata.Member {
	name := ""
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		name = w.text(nameNode)
	}
	return metadata.Member{
		Name:       name,
		Kind:       kind,
		Attributes: precedingAttributes(w, n),
	}
}

// propertyMembers handles `public int $a, $b;` declaring more than one
// property in a single statement, all sharing the statement's attributes.
func (w *walker) propertyMembers(n *sitter.Node) []metadata.Member {
	attrs := precedingAttributes(w, n)
	var out []metadata.Member
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		if child.Type() != "property_element" {
			continue
		}
		varNode := child.Child(0)
		if varNode == nil {
			continue
		}
		out = append(out, metadata.Member{
			Name:       strings.TrimPrefix(w.text(varNode), "$"),
			Kind:       "property",
			Attributes: attrs,
		})
	}
	return out
}

// precedingAttributes collects the #[...] attribute groups attached to a
// declaration: the attribute_list in the node's own "attributes" field,
// which is where tree-sitter-php places them, or failing that the
// attribute_list nodes that sit as the node's previous siblings.
func precedingAttributes(w *walker, n *sitter.Node) []metadata.AttributeRef {
	if list := n.ChildByFieldName("attributes"); list != nil {
		return w.attributeGroups(list)
	}
	var out []metadata.AttributeRef
	for sib := n.PrevSibling(); sib != nil && sib.Type() == "attribute_list"; sib = sib.PrevSibling() {
		out = append(out, w.attributeGroups(sib)...)
	}
	// siblings were walked nearest-first; restore declaration order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (w *walker) attributeGroups(list *sitter.Node) []metadata.AttributeRef {
	var out []metadata.AttributeRef
	for i := 0; i < int(list.ChildCount()); i++ {
		group := list.Child(i)
		if group.Type() != "attribute_group" {
			continue
		}
		for j := 0; j < int(group.ChildCount()); j++ {
			attr := group.Child(j)
			if attr.Type() != "attribute" {
				continue
			}
			out = append(out, w.attribute(attr))
		}
	}
	return out
}

func (w *walker) attribute(n *sitter.Node) metadata.AttributeRef {
	ref := metadata.AttributeRef{}
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		ref.Name = w.text(nameNode)
	} else if n.NamedChildCount() > 0 {
		ref.Name = w.text(n.NamedChild(0))
	}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		args = n.ChildByFieldName("parameters")
	}
	if args != nil {
		for i := 0; i < int(args.ChildCount()); i++ {
			arg := args.Child(i)
			if arg.Type() != "argument" {
				continue
			}
			ref.Args = append(ref.Args, w.argValue(arg))
		}
	}
	return ref
}

func (w *walker) argValue(n *sitter.Node) metadata.ArgValue {
	v := metadata.ArgValue{}
	if nameNode := n.ChildByFieldName("name"); nameNode != nil {
		v.Name = w.text(nameNode)
	}
	valueNode := n.ChildByFieldName("value")
	if valueNode == nil && n.ChildCount() > 0 {
		valueNode = n.Child(int(n.ChildCount()) - 1)
	}
	if valueNode == nil {
		return v
	}
	switch valueNode.Type() {
	case "attribute":
		nested := w.attribute(valueNode)
		v.Attr = &nested
	case "array_creation_expression":
		for i := 0; i < int(valueNode.ChildCount()); i++ {
			el := valueNode.Child(i)
			if el.Type() == "array_element_initializer" {
				v.Array = append(v.Array, w.argValue(el))
			}
		}
	case "integer":
		n, _ := strconv.ParseInt(w.text(valueNode), 10, 64)
		v.Scalar = n
	case "float":
		f, _ := strconv.ParseFloat(w.text(valueNode), 64)
		v.Scalar = f
	case "string":
		v.Scalar = strings.Trim(w.text(valueNode), "'\"")
	case "true":
		v.Scalar = true
	case "false":
		v.Scalar = false
	case "null":
		v.Scalar = nil
	default:
		v.Scalar = w.text(valueNode)
	}
	return v
}

func fqn(namespace, name string) string {
	if namespace == "" {
		return `\` + name
	}
	return `\` + strings.ReplaceAll(namespace, `\`, `\`) + `\` + name
}
