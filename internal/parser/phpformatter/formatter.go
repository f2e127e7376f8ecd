// Copyright (C) 2026 Discoveryd Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package phpformatter is the default Formatter adapter: it renders a
// MetadataIndex snapshot as a self-contained PHP file the host can
// `require` and get back a plain associative array, with no runtime
// reflection needed. See spec §6's artifact shape.
package phpformatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/discoveryd/discoveryd/internal/metadata"
)

// Formatter is the default Formatter.
type Formatter struct{}

// Format implements parser.Formatter.
func (Formatter) Format(snapshot map[string]metadata.Symbol, pretty bool) ([]byte, error) {
	fqns := make([]string, 0, len(snapshot))
	for fqn := range snapshot {
		fqns = append(fqns, fqn)
	}
	sort.Strings(fqns)

	nl, indent := "", ""
	if pretty {
		nl, indent = "\n", "    "
	}

	var b strings.Builder
	b.WriteString("<?php declare(strict_types=1); return [" + nl)
	for _, fqn := range fqns {
		sym := snapshot[fqn]
		b.WriteString(indent + phpString(doubleBackslash(fqn)) + " => [" + nl)
		writeEntry(&b, sym, pretty, indent+indent)
		b.WriteString(indent + "]," + nl)
	}
	b.WriteString("];" + nl)
	return []byte(b.String()), nil
}

func writeEntry(b *strings.Builder, sym metadata.Symbol, pretty bool, indent string) {
	nl := ""
	if pretty {
		nl = "\n"
	}
	fmt.Fprintf(b, "%s'file' => %s,%s", indent, phpString(sym.Path), nl)
	fmt.Fprintf(b, "%s'type' => %s,%s", indent, phpString(string(sym.Kind)), nl)
	fmt.Fprintf(b, "%s'attributes' => %s,%s", indent, renderAttrs(sym.Attributes, pretty, indent), nl)
	fmt.Fprintf(b, "%s'methods' => %s,%s", indent, renderMembers(sym.Methods, pretty, indent), nl)
	fmt.Fprintf(b, "%s'properties' => %s,%s", indent, renderMembers(sym.Properties, pretty, indent), nl)
	if len(sym.EnumCases) > 0 {
		fmt.Fprintf(b, "%s'cases' => %s,%s", indent, renderMembers(sym.EnumCases, pretty, indent), nl)
	}
}

func renderMembers(members []metadata.Member, pretty bool, indent string) string {
	if len(members) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteString("[")
	for _, m := range members {
		fmt.Fprintf(&b, "%s => ['attributes' => %s],", phpString(m.Name), renderAttrs(m.Attributes, pretty, indent))
	}
	b.WriteString("]")
	return b.String()
}

// renderAttrs groups instances by attribute FQN, matching the
// original_source writer's `HashMap<String, Vec<Vec<AttributeArgument>>>`
// shape: each attribute name maps to the list of times it was applied,
// and each application renders as its own argument array.
func renderAttrs(attrs []metadata.AttributeRef, pretty bool, indent string) string {
	if len(attrs) == 0 {
		return "[]"
	}

	grouped := make(map[string][]metadata.AttributeRef, len(attrs))
	var names []string
	for _, a := range attrs {
		name := doubleBackslash(a.Name)
		if _, ok := grouped[name]; !ok {
			names = append(names, name)
		}
		grouped[name] = append(grouped[name], a)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("[")
	for _, name := range names {
		fmt.Fprintf(&b, "%s => [", phpString(name))
		for _, instance := range grouped[name] {
			b.WriteString(renderArgs(instance.Args, pretty, indent))
			b.WriteString(",")
		}
		b.WriteString("],")
	}
	b.WriteString("]")
	return b.String()
}

// renderArgs renders one attribute application's argument list as a PHP
// array: named arguments become `'key' => value`, positional arguments
// are emitted bare, same as PHP's own mixed positional/named call syntax.
func renderArgs(args []metadata.ArgValue, pretty bool, indent string) string {
	if len(args) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.WriteString("[")
	for _, arg := range args {
		b.WriteString(renderArgValue(arg, pretty, indent))
		b.WriteString(",")
	}
	b.WriteString("]")
	return b.String()
}

// renderNestedAttr renders an attribute reference that appears as another
// attribute's argument value (rare: PHP attribute arguments are compile-time
// constants, so this only triggers on a parser-level nested attribute node),
// using the same name -> [args] shape as a single-instance renderAttrs.
func renderNestedAttr(a metadata.AttributeRef, pretty bool, indent string) string {
	return fmt.Sprintf("[%s => [%s]]", phpString(doubleBackslash(a.Name)), renderArgs(a.Args, pretty, indent))
}

func renderArgValue(v metadata.ArgValue, pretty bool, indent string) string {
	var b strings.Builder
	if v.Name != "" {
		fmt.Fprintf(&b, "%s => ", phpString(v.Name))
	}
	switch {
	case v.Attr != nil:
		b.WriteString(renderNestedAttr(*v.Attr, pretty, indent))
	case v.Array != nil:
		b.WriteString("[")
		for _, el := range v.Array {
			b.WriteString(renderArgValue(el, pretty, indent))
			b.WriteString(",")
		}
		b.WriteString("]")
	default:
		b.WriteString(renderScalar(v.Scalar))
	}
	return b.String()
}

func renderScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return phpString(doubleBackslash(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return phpString(fmt.Sprintf("%v", t))
	}
}

func phpString(s string) string {
	escaped := strings.ReplaceAll(s, `'`, `\'`)
	return "'" + escaped + "'"
}

// doubleBackslash satisfies spec §6's requirement that FQNs (and any
// namespace-shaped strings embedded in attribute names/values) render
// with doubled backslashes, since a single backslash is PHP's escape
// character inside a single-quoted string's \\ sequence.
func doubleBackslash(s string) string {
	return strings.ReplaceAll(s, `\`, `\\`)
}
