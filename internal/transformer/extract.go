package transformer

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/jsonpath"
)

// ExtractPath evaluates a JSONPath expression against an already-parsed
// JSON document and returns the first match.
//
// The three outcomes matter to callers in different ways: a malformed path
// is a configuration error (err != nil, logged per message as a warning); a
// valid path with no match means the field is simply absent from this
// payload (found == false, not a failure); a match returns the raw value.
// Wildcard expressions yield their first match in document order.
func ExtractPath(path string, doc interface{}) (interface{}, bool, error) {
	if path == "" {
		return nil, false, fmt.Errorf("json path is empty")
	}

	eval, err := jsonpath.New(path)
	if err != nil {
		return nil, false, fmt.Errorf("invalid json path %q: %w", path, err)
	}

	result, err := eval(context.Background(), doc)
	if err != nil {
		// Evaluation errors mean the path resolved to nothing in this
		// document; the mapping is skipped, not failed.
		return nil, false, nil
	}

	// Wildcard and recursive-descent paths return a slice of matches.
	if matches, ok := result.([]interface{}); ok {
		if len(matches) == 0 {
			return nil, false, nil
		}
		return matches[0], true, nil
	}

	return result, true, nil
}
