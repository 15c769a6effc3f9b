package domain

import (
	"encoding/json"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// NodeType names the kind of a text tree node.
type NodeType string

const (
	NodeText         NodeType = "text"
	NodeNote         NodeType = "note"
	NodeList         NodeType = "list"
	NodeInternalLink NodeType = "internal link"
	NodeExternalLink NodeType = "external link"
)

// Node is one element of a text tree. List nodes carry their items in Items,
// each item being a sequence of inline nodes.
type Node struct {
	Type   NodeType `bson:"type" json:"type"`
	Text   string   `bson:"text,omitempty" json:"text,omitempty"`
	Page   string   `bson:"page,omitempty" json:"page,omitempty"`
	Anchor string   `bson:"anchor,omitempty" json:"anchor,omitempty"`
	Site   string   `bson:"site,omitempty" json:"site,omitempty"`
	Items  [][]Node `bson:"data,omitempty" json:"data,omitempty"`
}

// Rich is a field value that is either a bare string or a text tree.
type Rich struct {
	plain string
	nodes []Node
}

// Plain wraps a bare string.
func Plain(s string) Rich {
	return Rich{plain: s}
}

// Tree wraps a node sequence. A sequence holding a single text node collapses
// to a bare string.
func Tree(nodes []Node) Rich {
	if len(nodes) == 0 {
		return Rich{}
	}
	if len(nodes) == 1 && nodes[0].Type == NodeText {
		return Rich{plain: nodes[0].Text}
	}
	return Rich{nodes: nodes}
}

// IsZero reports whether the value is empty. The bson encoder consults it for omitempty.
func (r Rich) IsZero() bool {
	return r.plain == "" && len(r.nodes) == 0
}

// IsPlain reports whether the value is a bare string.
func (r Rich) IsPlain() bool {
	return r.nodes == nil
}

// Nodes returns the tree form, wrapping a bare string in a single text node.
func (r Rich) Nodes() []Node {
	if r.nodes != nil {
		return r.nodes
	}
	if r.plain == "" {
		return nil
	}
	return []Node{{Type: NodeText, Text: r.plain}}
}

// String flattens the value to its visible text.
func (r Rich) String() string {
	if r.nodes == nil {
		return r.plain
	}
	var sb strings.Builder
	writeNodes(&sb, r.nodes)
	return sb.String()
}

func writeNodes(sb *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n.Type {
		case NodeList:
			for _, item := range n.Items {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				writeNodes(sb, item)
			}
		case NodeInternalLink:
			if n.Text != "" {
				sb.WriteString(n.Text)
			} else {
				sb.WriteString(n.Page)
			}
		case NodeExternalLink:
			if n.Text != "" {
				sb.WriteString(n.Text)
			} else {
				sb.WriteString(n.Site)
			}
		default:
			sb.WriteString(n.Text)
		}
	}
}

// MarshalBSONValue stores a bare string as a string and a tree as an array.
func (r Rich) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if r.nodes == nil {
		return bson.MarshalValue(r.plain)
	}
	return bson.MarshalValue(r.nodes)
}

// MarshalJSON mirrors MarshalBSONValue.
func (r Rich) MarshalJSON() ([]byte, error) {
	if r.nodes == nil {
		return json.Marshal(r.plain)
	}
	return json.Marshal(r.nodes)
}
