package ansible

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

type Var struct {
	Key   string
	Value string
	// Raw values are written as plain scalars (booleans, numbers).
	Raw bool
}

// RenderGroupVars overlays vars onto the example group_vars document.
// Existing top-level keys are replaced in place, missing ones are appended
// in the order given. An empty example yields a document with vars only.
func RenderGroupVars(example []byte, vars []Var) ([]byte, error) {
	var doc yaml.Node
	if len(bytes.TrimSpace(example)) > 0 {
		if err := yaml.Unmarshal(example, &doc); err != nil {
			return nil, fmt.Errorf("parse group_vars example: %w", err)
		}
	}

	root := mappingRoot(&doc)
	index := make(map[string]int)
	for i := 0; i+1 < len(root.Content); i += 2 {
		index[root.Content[i].Value] = i + 1
	}

	for _, v := range vars {
		val := scalarNode(v)
		if pos, ok := index[v.Key]; ok {
			val.HeadComment = root.Content[pos].HeadComment
			val.LineComment = root.Content[pos].LineComment
			root.Content[pos] = val
			continue
		}
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Key}
		root.Content = append(root.Content, key, val)
		index[v.Key] = len(root.Content) - 1
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encode group_vars: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mappingRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind != yaml.DocumentNode {
		doc.Kind = yaml.DocumentNode
		doc.Content = nil
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	return doc.Content[0]
}

func scalarNode(v Var) *yaml.Node {
	if v.Raw {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v.Value}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Value, Style: yaml.DoubleQuotedStyle}
}
