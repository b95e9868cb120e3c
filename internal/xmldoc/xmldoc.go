// Package xmldoc reads catalog definition documents.
//
// A document is parsed into a tree of Nodes that keep their attributes in
// document order together with the line and column they start at, so
// diagnostics can point at the offending declaration.
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Attr is a single attribute of a node.
type Attr struct {
	Name  string
	Value string
}

// Node is an element of a document.
type Node struct {
	Name     string
	Attrs    []Attr
	Children []*Node
	Line     int
	Column   int
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the value of the named attribute or def when it is absent.
func (n *Node) AttrOr(name, def string) string {
	if v, ok := n.Attr(name); ok {
		return v
	}
	return def
}

// HasAttr reports whether the node declares the named attribute.
func (n *Node) HasAttr(name string) bool {
	_, ok := n.Attr(name)
	return ok
}

// IntAttr parses the named attribute as an integer.
// Returns ok == false when the attribute is absent.
func (n *Node) IntAttr(name string) (v int64, ok bool, err error) {
	s, ok := n.Attr(name)
	if !ok {
		return 0, false, nil
	}
	v, err = strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("attribute %s=%q of <%s> at line %d: not an integer", name, s, n.Name, n.Line)
	}
	return v, true, nil
}

// BoolAttr parses the named attribute as a boolean ("1", "yes", "true").
func (n *Node) BoolAttr(name string) bool {
	switch strings.ToLower(strings.TrimSpace(n.AttrOr(name, ""))) {
	case "1", "yes", "true", "y":
		return true
	default:
		return false
	}
}

// String returns the node as a short start tag, for diagnostics.
func (n *Node) String() string {
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(n.Name)
	for _, a := range n.Attrs {
		fmt.Fprintf(&b, " %s=%q", a.Name, a.Value)
	}
	b.WriteString(">")
	return b.String()
}

// Document is a parsed definition document.
type Document struct {
	Path string
	Root *Node
}

// Child returns the root element when it is named name, or nil.
func (d *Document) Child(name string) *Node {
	if d.Root == nil || d.Root.Name != name {
		return nil
	}
	return d.Root
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{
			Path:    path,
			Message: "cannot open document",
			Err:     err,
		}
	}
	return Parse(bytes.NewReader(data), path)
}

// Parse parses a document from r. source names it in errors.
func Parse(r io.Reader, source string) (*Document, error) {
	dec := xml.NewDecoder(r)
	doc := &Document{Path: source}

	var stack []*Node
	for {
		line, col := dec.InputPos()
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, newSyntaxError(source, dec, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{
				Name:   t.Name.Local,
				Line:   line,
				Column: col,
			}
			for _, a := range t.Attr {
				node.Attrs = append(node.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}

			if len(stack) == 0 {
				if doc.Root != nil {
					return nil, &ParseError{Path: source, Line: line, Column: col, Message: "multiple root elements"}
				}
				doc.Root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)

		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}

	if doc.Root == nil {
		return nil, &ParseError{Path: source, Message: "no document element found"}
	}
	return doc, nil
}

// newSyntaxError converts a decoder error into a ParseError.
func newSyntaxError(source string, dec *xml.Decoder, err error) *ParseError {
	pe := &ParseError{
		Path:    source,
		Message: err.Error(),
		Err:     err,
	}

	var se *xml.SyntaxError
	if errors.As(err, &se) {
		pe.Message = se.Msg
		pe.Line = se.Line
	}

	line, col := dec.InputPos()
	if pe.Line == 0 || pe.Line == line {
		pe.Line = line
		pe.Column = col
	}
	return pe
}

// ParseError represents an error while reading or parsing a document.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("parse error in %s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
