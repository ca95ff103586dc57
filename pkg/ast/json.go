package ast

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/wayuto/alum/pkg/value"
)

// rawNode is the union of every field any node kind can carry on the wire.
type rawNode struct {
	Type     string            `json:"type"`
	Version  int               `json:"version,omitempty"`
	Name     string            `json:"name,omitempty"`
	Label    string            `json:"label,omitempty"`
	Op       string            `json:"op,omitempty"`
	Params   []string          `json:"params,omitempty"`
	Value    json.RawMessage   `json:"value,omitempty"`
	Left     json.RawMessage   `json:"left,omitempty"`
	Right    json.RawMessage   `json:"right,omitempty"`
	Argument json.RawMessage   `json:"argument,omitempty"`
	Cond     json.RawMessage   `json:"cond,omitempty"`
	Else     json.RawMessage   `json:"else,omitempty"`
	Code     json.RawMessage   `json:"code,omitempty"`
	Body     json.RawMessage   `json:"body,omitempty"`
	Args     []json.RawMessage `json:"args,omitempty"`
	Line     int               `json:"line,omitempty"`
	Column   int               `json:"column,omitempty"`
}

// Parse decodes a JSON program document of the form
// {"type": "Program", "body": [...]}.
func Parse(r io.Reader) (*Program, error) {
	var raw rawNode
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("ast: decode program: %w", err)
	}
	if raw.Type != "Program" {
		return nil, fmt.Errorf("ast: expected Program node, got %q", raw.Type)
	}
	if raw.Version > Version {
		return nil, fmt.Errorf("ast: program version %d is newer than supported version %d", raw.Version, Version)
	}
	body, err := decodeList(raw.Body)
	if err != nil {
		return nil, err
	}
	return &Program{Body: body}, nil
}

func decodeList(data json.RawMessage) ([]Expr, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("ast: expected node list: %w", err)
	}
	out := make([]Expr, 0, len(items))
	for _, item := range items {
		n, err := decodeNode(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// decodeOptional decodes a node that may be absent or null.
func decodeOptional(data json.RawMessage) (Expr, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	return decodeNode(data)
}

// decodeRequired decodes a child node that must be present.
func decodeRequired(kind, field string, data json.RawMessage) (Expr, error) {
	n, err := decodeOptional(data)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("ast: %s node is missing %q", kind, field)
	}
	return n, nil
}

func decodeLiteral(data json.RawMessage) (value.Literal, error) {
	if len(data) == 0 {
		return value.Void, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return value.Void, fmt.Errorf("ast: bad literal %s: %w", data, err)
	}
	switch v := v.(type) {
	case nil:
		return value.Void, nil
	case float64:
		return value.Number(v), nil
	case bool:
		return value.Bool(v), nil
	case string:
		return value.Str(v), nil
	default:
		return value.Void, fmt.Errorf("ast: unsupported literal %s", data)
	}
}

func decodeNode(data json.RawMessage) (Expr, error) {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ast: decode node: %w", err)
	}
	pos := Position{Line: raw.Line, Column: raw.Column}
	var err error

	switch raw.Type {
	case "Stmt":
		n := &Stmt{Pos: pos}
		n.Body, err = decodeList(raw.Body)
		return n, err

	case "Val":
		n := &Val{Pos: pos}
		n.Value, err = decodeLiteral(raw.Value)
		return n, err

	case "Var":
		return &Var{Pos: pos, Name: raw.Name}, nil

	case "VarDecl":
		n := &VarDecl{Pos: pos, Name: raw.Name}
		n.Value, err = decodeRequired(raw.Type, "value", raw.Value)
		return n, err

	case "VarMod":
		n := &VarMod{Pos: pos, Name: raw.Name}
		n.Value, err = decodeRequired(raw.Type, "value", raw.Value)
		return n, err

	case "BinOp":
		n := &BinOp{Pos: pos, Operator: raw.Op}
		if n.Left, err = decodeRequired(raw.Type, "left", raw.Left); err != nil {
			return nil, err
		}
		n.Right, err = decodeRequired(raw.Type, "right", raw.Right)
		return n, err

	case "UnaryOp":
		n := &UnaryOp{Pos: pos, Operator: raw.Op}
		n.Argument, err = decodeRequired(raw.Type, "argument", raw.Argument)
		return n, err

	case "If":
		n := &If{Pos: pos}
		if n.Condition, err = decodeRequired(raw.Type, "cond", raw.Cond); err != nil {
			return nil, err
		}
		if n.Then, err = decodeRequired(raw.Type, "body", raw.Body); err != nil {
			return nil, err
		}
		n.Else, err = decodeOptional(raw.Else)
		return n, err

	case "While":
		n := &While{Pos: pos}
		if n.Condition, err = decodeRequired(raw.Type, "cond", raw.Cond); err != nil {
			return nil, err
		}
		n.Body, err = decodeRequired(raw.Type, "body", raw.Body)
		return n, err

	case "FuncDecl":
		n := &FuncDecl{Pos: pos, Name: raw.Name, Params: raw.Params}
		n.Body, err = decodeRequired(raw.Type, "body", raw.Body)
		return n, err

	case "FuncCall":
		n := &FuncCall{Pos: pos, Name: raw.Name}
		for _, a := range raw.Args {
			arg, err := decodeNode(a)
			if err != nil {
				return nil, err
			}
			n.Args = append(n.Args, arg)
		}
		return n, nil

	case "Return":
		n := &Return{Pos: pos}
		n.Value, err = decodeOptional(raw.Value)
		return n, err

	case "Out":
		n := &Out{Pos: pos}
		n.Value, err = decodeRequired(raw.Type, "value", raw.Value)
		return n, err

	case "In":
		return &In{Pos: pos, Name: raw.Name}, nil

	case "Label":
		return &Label{Pos: pos, Name: raw.Name}, nil

	case "Goto":
		return &Goto{Pos: pos, Label: raw.Label}, nil

	case "Exit":
		n := &Exit{Pos: pos}
		n.Code, err = decodeOptional(raw.Code)
		return n, err

	default:
		return nil, fmt.Errorf("ast: unknown node type %q", raw.Type)
	}
}

// Marshal encodes a program as an indented JSON document that Parse accepts.
func Marshal(p *Program) ([]byte, error) {
	body := make([]any, 0, len(p.Body))
	for _, n := range p.Body {
		enc, err := encodeNode(n)
		if err != nil {
			return nil, err
		}
		body = append(body, enc)
	}
	return json.MarshalIndent(map[string]any{
		"type":    "Program",
		"version": Version,
		"body":    body,
	}, "", "  ")
}

func encodeList(ns []Expr) ([]any, error) {
	out := make([]any, 0, len(ns))
	for _, n := range ns {
		enc, err := encodeNode(n)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

func encodeLiteral(l value.Literal) any {
	switch l.Kind {
	case value.KindNumber:
		return l.Num
	case value.KindBool:
		return l.Bool
	case value.KindStr:
		return l.Str
	default:
		return nil
	}
}

func encodeNode(n Expr) (map[string]any, error) {
	m := map[string]any{"type": n.Kind()}
	if p := n.Position(); p.Known() {
		m["line"] = p.Line
		m["column"] = p.Column
	}

	// child encodes an optional child into m[key].
	var err error
	child := func(key string, c Expr) {
		if c == nil || err != nil {
			return
		}
		m[key], err = encodeNode(c)
	}

	switch n := n.(type) {
	case *Stmt:
		m["body"], err = encodeList(n.Body)
	case *Val:
		m["value"] = encodeLiteral(n.Value)
	case *Var:
		m["name"] = n.Name
	case *VarDecl:
		m["name"] = n.Name
		child("value", n.Value)
	case *VarMod:
		m["name"] = n.Name
		child("value", n.Value)
	case *BinOp:
		m["op"] = n.Operator
		child("left", n.Left)
		child("right", n.Right)
	case *UnaryOp:
		m["op"] = n.Operator
		child("argument", n.Argument)
	case *If:
		child("cond", n.Condition)
		child("body", n.Then)
		child("else", n.Else)
	case *While:
		child("cond", n.Condition)
		child("body", n.Body)
	case *FuncDecl:
		m["name"] = n.Name
		m["params"] = n.Params
		child("body", n.Body)
	case *FuncCall:
		m["name"] = n.Name
		m["args"], err = encodeList(n.Args)
	case *Return:
		child("value", n.Value)
	case *Out:
		child("value", n.Value)
	case *In:
		m["name"] = n.Name
	case *Label:
		m["name"] = n.Name
	case *Goto:
		m["label"] = n.Label
	case *Exit:
		child("code", n.Code)
	default:
		return nil, fmt.Errorf("ast: cannot encode node kind %q", n.Kind())
	}
	return m, err
}
