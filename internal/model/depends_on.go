// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file contains the specific parsing and validation logic for the `depends_on` attribute.
//
// Why a special parser for depends_on?
//
// Unlike the other attributes, `depends_on` is never evaluated. Its entries
// are static `node.<id>` references that become edges of the graph, so they
// are read as traversals. Whether the referenced node exists is left to
// dag.Build, which reports it as a dangling edge.
package model

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// parseDependsOn returns the ids referenced by the "depends_on" attribute.
func parseDependsOn(attrs hcl.Attributes) ([]string, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	dependsOnAttr, exists := attrs["depends_on"]
	if !exists {
		// The attribute is optional, so it's not an error if it's missing.
		return nil, diags
	}
	expr := dependsOnAttr.Expr

	// The expression must be a tuple constructor, i.e., a list literal like `[...]`.
	if syntaxExpr, ok := expr.(hclsyntax.Expression); ok {
		if _, isTuple := syntaxExpr.(*hclsyntax.TupleConsExpr); !isTuple {
			return nil, append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid depends_on value",
				Detail:   "The 'depends_on' attribute must be a list of node references.",
				Subject:  expr.Range().Ptr(),
			})
		}
	}

	items, listDiags := hcl.ExprList(expr)
	diags = append(diags, listDiags...)
	if listDiags.HasErrors() {
		return nil, diags
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, refDiags := nodeReference(item)
		diags = append(diags, refDiags...)
		if !refDiags.HasErrors() {
			ids = append(ids, id)
		}
	}
	return ids, diags
}

// nodeReference reads a `node.<id>` traversal.
func nodeReference(expr hcl.Expression) (string, hcl.Diagnostics) {
	invalid := func(detail string) hcl.Diagnostics {
		return hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid node reference",
			Detail:   detail,
			Subject:  expr.Range().Ptr(),
		}}
	}

	trav, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() {
		return "", invalid("A depends_on entry must be a reference like node.<id>.")
	}
	if len(trav) != 2 || trav.RootName() != "node" {
		return "", invalid("A depends_on entry must be a reference like node.<id>.")
	}
	attr, ok := trav[1].(hcl.TraverseAttr)
	if !ok {
		return "", invalid(fmt.Sprintf("Expected an attribute after %q.", trav.RootName()))
	}
	return attr.Name, nil
}
