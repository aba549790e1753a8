// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file parses HCL graph files made of `node` blocks:
//
//	node "build" {
//	  label      = "Building ${upper(env.USER)}"
//	  depends_on = [node.fetch]
//	  command    = ["make", "all"]
//	  env        = { CGO_ENABLED = "0" }
//	}
//
//	node "ping" {
//	  url    = "http://localhost:8080/health"
//	  method = "HEAD"
//	}
//
// Why evaluate expressions here?
//
// Node payloads are written into the shared segment once and never change,
// so every expression must be resolved before the run starts. The evaluation
// context is deliberately small: the process environment and a few string
// functions.
package model

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/shmdag/internal/ctxlog"
	"github.com/specialistvlad/shmdag/internal/dag"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// hclGraphFile represents the top-level structure of a graph file for decoding.
type hclGraphFile struct {
	Nodes []*hclNodeBlock `hcl:"node,block"`
}

type hclNodeBlock struct {
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

var nodeAttributes = []string{"label", "kind", "depends_on", "command", "env", "url", "method"}

// LoadHCL parses files in order and merges their nodes into one Definition.
func LoadHCL(ctx context.Context, files ...string) (*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	parser := hclparse.NewParser()
	ectx := EvalContext(os.Environ())

	def := NewDefinition()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, parseErr(file, diags)
		}
		if err := decodeHCL(def, file, hclFile.Body, ectx); err != nil {
			return nil, err
		}
	}

	logger.Debug("HCL graph loaded.", "files", len(files), "nodes", len(def.Nodes), "edges", len(def.Edges))
	return def, nil
}

// ParseHCL parses a single HCL document held in memory.
func ParseHCL(file string, src []byte, ectx *hcl.EvalContext) (*Definition, error) {
	hclFile, diags := hclparse.NewParser().ParseHCL(src, file)
	if diags.HasErrors() {
		return nil, parseErr(file, diags)
	}
	def := NewDefinition()
	if err := decodeHCL(def, file, hclFile.Body, ectx); err != nil {
		return nil, err
	}
	return def, nil
}

func decodeHCL(def *Definition, file string, body hcl.Body, ectx *hcl.EvalContext) error {
	var parsed hclGraphFile
	if diags := gohcl.DecodeBody(body, nil, &parsed); diags.HasErrors() {
		return parseErr(file, diags)
	}

	for _, block := range parsed.Nodes {
		n, deps, diags := decodeNode(block, ectx)
		if diags.HasErrors() {
			return parseErr(file, diags)
		}
		def.addNode(n, file)
		for _, dep := range deps {
			def.Edges = append(def.Edges, dag.Edge{From: dep, To: n.ID})
		}
	}
	return nil
}

func decodeNode(block *hclNodeBlock, ectx *hcl.EvalContext) (dag.Node, []string, hcl.Diagnostics) {
	n := dag.Node{ID: block.ID, Payload: dag.Payload{Kind: dag.KindPrint, Label: block.ID}}

	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return n, nil, diags
	}
	for name, attr := range attrs {
		if !slices.Contains(nodeAttributes, name) {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unsupported argument",
				Detail:   fmt.Sprintf("An argument named %q is not expected in a node block.", name),
				Subject:  attr.NameRange.Ptr(),
			})
		}
	}

	if attr, ok := attrs["label"]; ok {
		if s, ok, d := evalString(attr, ectx); ok {
			n.Payload.Label = s
		} else {
			diags = append(diags, d...)
		}
	}
	if attr, ok := attrs["command"]; ok {
		argv, d := evalStrings(attr, ectx)
		diags = append(diags, d...)
		n.Payload.Command = argv
		n.Payload.Kind = dag.KindCommand
	}
	if attr, ok := attrs["url"]; ok {
		if s, ok, d := evalString(attr, ectx); ok {
			n.Payload.URL = s
			n.Payload.Kind = dag.KindHTTP
		} else {
			diags = append(diags, d...)
		}
	}
	if attr, ok := attrs["method"]; ok {
		if s, ok, d := evalString(attr, ectx); ok {
			n.Payload.Method = s
		} else {
			diags = append(diags, d...)
		}
	}
	if attr, ok := attrs["kind"]; ok {
		if s, ok, d := evalString(attr, ectx); ok {
			n.Payload.Kind = s
		} else {
			diags = append(diags, d...)
		}
	}
	if attr, ok := attrs["env"]; ok {
		env, d := evalStringMap(attr, ectx)
		diags = append(diags, d...)
		n.Payload.Env = env
	}

	deps, d := parseDependsOn(attrs)
	diags = append(diags, d...)
	return n, deps, diags
}

func evalString(attr *hcl.Attribute, ectx *hcl.EvalContext) (string, bool, hcl.Diagnostics) {
	val, diags := attr.Expr.Value(ectx)
	if diags.HasErrors() {
		return "", false, diags
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil || val.IsNull() || !val.IsKnown() {
		return "", false, append(diags, typeDiag(attr, "a string"))
	}
	return val.AsString(), true, diags
}

func evalStrings(attr *hcl.Attribute, ectx *hcl.EvalContext) ([]string, hcl.Diagnostics) {
	val, diags := attr.Expr.Value(ectx)
	if diags.HasErrors() {
		return nil, diags
	}
	val, err := convert.Convert(val, cty.List(cty.String))
	if err != nil || val.IsNull() || !val.IsWhollyKnown() {
		return nil, append(diags, typeDiag(attr, "a list of strings"))
	}

	out := make([]string, 0, val.LengthInt())
	for _, v := range val.AsValueSlice() {
		if v.IsNull() {
			return nil, append(diags, typeDiag(attr, "a list of non-null strings"))
		}
		out = append(out, v.AsString())
	}
	if len(out) == 0 {
		return nil, append(diags, typeDiag(attr, "a non-empty list of strings"))
	}
	return out, diags
}

func evalStringMap(attr *hcl.Attribute, ectx *hcl.EvalContext) (map[string]string, hcl.Diagnostics) {
	val, diags := attr.Expr.Value(ectx)
	if diags.HasErrors() {
		return nil, diags
	}
	val, err := convert.Convert(val, cty.Map(cty.String))
	if err != nil || val.IsNull() || !val.IsWhollyKnown() {
		return nil, append(diags, typeDiag(attr, "a map of strings"))
	}

	out := make(map[string]string, val.LengthInt())
	for k, v := range val.AsValueMap() {
		if v.IsNull() {
			return nil, append(diags, typeDiag(attr, "a map of non-null strings"))
		}
		out[k] = v.AsString()
	}
	return out, diags
}

func typeDiag(attr *hcl.Attribute, want string) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Incorrect attribute value type",
		Detail:   fmt.Sprintf("The %q attribute must be %s.", attr.Name, want),
		Subject:  attr.Expr.Range().Ptr(),
	}
}

// EvalContext returns the context node attributes are evaluated in. environ
// has the form of os.Environ.
func EvalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
		Functions: map[string]function.Function{
			"upper":     stdlib.UpperFunc,
			"lower":     stdlib.LowerFunc,
			"join":      stdlib.JoinFunc,
			"format":    stdlib.FormatFunc,
			"trimspace": stdlib.TrimSpaceFunc,
		},
	}
}
