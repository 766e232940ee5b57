package rewrite

import (
	"fmt"
	"strconv"
	"strings"
)

// pointerSet assigns value at a JSON pointer inside a decoded document
// (maps and slices as produced by encoding/json). Array indices are
// decimal tokens.
func pointerSet(root any, pointer string, value any) error {
	tokens := splitPointer(pointer)
	if len(tokens) == 0 {
		return fmt.Errorf("json pointer %q: cannot assign the document root", pointer)
	}
	parent, err := descend(root, tokens[:len(tokens)-1])
	if err != nil {
		return fmt.Errorf("json pointer %q: %w", pointer, err)
	}
	last := tokens[len(tokens)-1]
	switch node := parent.(type) {
	case map[string]any:
		node[last] = value
	case []any:
		i, err := strconv.Atoi(last)
		if err != nil || i < 0 || i >= len(node) {
			return fmt.Errorf("json pointer %q: index %q out of range", pointer, last)
		}
		node[i] = value
	default:
		return fmt.Errorf("json pointer %q: parent is %T, not a container", pointer, parent)
	}
	return nil
}

// pointerGet resolves a JSON pointer inside a decoded document.
func pointerGet(root any, pointer string) (any, bool) {
	node, err := descend(root, splitPointer(pointer))
	if err != nil {
		return nil, false
	}
	return node, true
}

func descend(node any, tokens []string) (any, error) {
	for _, token := range tokens {
		switch current := node.(type) {
		case map[string]any:
			child, ok := current[token]
			if !ok {
				return nil, fmt.Errorf("key %q not found", token)
			}
			node = child
		case []any:
			i, err := strconv.Atoi(token)
			if err != nil || i < 0 || i >= len(current) {
				return nil, fmt.Errorf("index %q out of range", token)
			}
			node = current[i]
		default:
			return nil, fmt.Errorf("cannot descend into %T at %q", node, token)
		}
	}
	return node, nil
}

func splitPointer(pointer string) []string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return nil
	}
	tokens := strings.Split(pointer, "/")
	for i, token := range tokens {
		token = strings.ReplaceAll(token, "~1", "/")
		tokens[i] = strings.ReplaceAll(token, "~0", "~")
	}
	return tokens
}

// cloneValue deep-copies a decoded JSON document. Templates are shared
// between cases, so per-case mutation works on a copy.
func cloneValue(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, child := range node {
			out[key] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return v
	}
}
