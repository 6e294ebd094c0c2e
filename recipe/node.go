// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package recipe

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/stockparfait/errors"
)

// Node of a recipe tree: either a leaf holding a string, or a branch mapping
// keys to child nodes. A branch remembers the order in which its keys were
// first added, which is the order of dimensions in an SDMX series key.
type Node struct {
	leaf     bool
	value    string
	keys     []string
	children map[string]*Node
}

// Leaf creates a leaf node.
func Leaf(value string) *Node {
	return &Node{leaf: true, value: value}
}

// Branch creates an empty branch node.
func Branch() *Node {
	return &Node{children: make(map[string]*Node)}
}

// IsLeaf reports whether the node is a leaf. A nil node is an empty branch.
func (n *Node) IsLeaf() bool { return n != nil && n.leaf }

// Value of a leaf, or "" for a branch.
func (n *Node) Value() string {
	if n == nil {
		return ""
	}
	return n.value
}

// Keys of a branch in their insertion order. The result may be modified by
// the caller.
func (n *Node) Keys() []string {
	if n == nil {
		return nil
	}
	return append([]string(nil), n.keys...)
}

// Len is the number of children of a branch.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	return len(n.keys)
}

// Get a child of a branch. Returns nil if there is no such child.
func (n *Node) Get(key string) *Node {
	if n == nil || n.leaf {
		return nil
	}
	return n.children[key]
}

// Set the child of a branch. An existing key keeps its position; a new key is
// appended. Setting a child of a leaf is a no-op.
func (n *Node) Set(key string, child *Node) *Node {
	if n.leaf {
		return n
	}
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	if _, ok := n.children[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.children[key] = child
	return n
}

// SetLeaf is a shorthand for Set(key, Leaf(value)).
func (n *Node) SetLeaf(key, value string) *Node {
	return n.Set(key, Leaf(value))
}

// Delete a child of a branch, if present.
func (n *Node) Delete(key string) {
	if n == nil || n.leaf {
		return
	}
	if _, ok := n.children[key]; !ok {
		return
	}
	delete(n.children, key)
	for i, k := range n.keys {
		if k == key {
			n.keys = append(n.keys[:i:i], n.keys[i+1:]...)
			break
		}
	}
}

// Copy creates a deep copy of the node.
func (n *Node) Copy() *Node {
	if n == nil {
		return Branch()
	}
	if n.leaf {
		return Leaf(n.value)
	}
	c := Branch()
	for _, k := range n.keys {
		c.Set(k, n.children[k].Copy())
	}
	return c
}

// Equal checks for deep equality, including the order of keys.
func (n *Node) Equal(m *Node) bool {
	if n.IsLeaf() || m.IsLeaf() {
		return n.IsLeaf() && m.IsLeaf() && n.value == m.value
	}
	if n.Len() != m.Len() {
		return false
	}
	if n.Len() == 0 {
		return true
	}
	for i, k := range n.keys {
		if m.keys[i] != k || !n.children[k].Equal(m.children[k]) {
			return false
		}
	}
	return true
}

var _ json.Marshaler = &Node{}
var _ json.Unmarshaler = &Node{}

// MarshalJSON writes a branch as an object with keys in their order.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.IsLeaf() {
		return json.Marshal(n.value)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	if n != nil {
		for i, k := range n.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := n.children[k].MarshalJSON()
			if err != nil {
				return nil, errors.Annotate(err, "failed to marshal '%s'", k)
			}
			buf.Write(vb)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object preserving the order of its keys. Scalars
// become leaves: numbers keep their text, booleans become "true" or "false",
// and null becomes "". Arrays are not allowed.
func (n *Node) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeNode(dec)
	if err != nil {
		return err
	}
	*n = *v
	return nil
}

func decodeNode(dec *json.Decoder) (*Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Annotate(err, "failed to read recipe JSON")
	}
	switch t := tok.(type) {
	case json.Delim:
		if t != '{' {
			return nil, errors.Reason("unexpected '%s' in recipe: only objects and scalars are allowed", t)
		}
		n := Branch()
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, errors.Annotate(err, "failed to read recipe key")
			}
			key, ok := kt.(string)
			if !ok {
				return nil, errors.Reason("unexpected key %v", kt)
			}
			child, err := decodeNode(dec)
			if err != nil {
				return nil, errors.Annotate(err, "in '%s'", key)
			}
			n.Set(key, child)
		}
		if _, err := dec.Token(); err != nil { // closing '}'
			return nil, errors.Annotate(err, "failed to read recipe JSON")
		}
		return n, nil
	case string:
		return Leaf(t), nil
	case json.Number:
		return Leaf(t.String()), nil
	case bool:
		return Leaf(strconv.FormatBool(t)), nil
	case nil:
		return Leaf(""), nil
	}
	return nil, errors.Reason("unexpected token %v", tok)
}
