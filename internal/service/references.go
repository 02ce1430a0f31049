package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/wrapshot/agent/internal/domain"
)

// referenceKey marks an argument value as a reference. {"$ref": "N"} or
// {"$ref": "N.path"} stands for the data returned by the Nth action of the
// same plan (1-based), or the gjson path within it. Plain strings are never
// references.
const referenceKey = "$ref"

var referencePattern = regexp.MustCompile(`^([1-9][0-9]*)(?:\.(.+))?$`)

type reference struct {
	raw  string
	step int
	path string
}

// parseReference reports whether v is a reference object. An object with a
// "$ref" key that is not well formed is returned as an error.
func parseReference(v any) (reference, bool, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return reference{}, false, nil
	}
	target, ok := obj[referenceKey]
	if !ok {
		return reference{}, false, nil
	}
	s, isString := target.(string)
	m := referencePattern.FindStringSubmatch(s)
	if len(obj) != 1 || !isString || m == nil {
		return reference{}, false, fmt.Errorf(`%w: "$ref" must be the only key and look like "1" or "1.id"`,
			domain.ErrInvalidArguments)
	}
	step, err := strconv.Atoi(m[1])
	if err != nil {
		return reference{}, false, fmt.Errorf("%w: step in reference %q: %v", domain.ErrInvalidArguments, s, err)
	}
	return reference{raw: s, step: step, path: m[2]}, true, nil
}

func decodeArgs(args json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(args)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// walkReferences calls fn for every reference object in v and replaces the
// object with the result.
func walkReferences(v any, fn func(reference) (any, error)) (any, error) {
	ref, ok, err := parseReference(v)
	if err != nil {
		return nil, err
	}
	if ok {
		return fn(ref)
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			nv, err := walkReferences(child, fn)
			if err != nil {
				return nil, err
			}
			t[k] = nv
		}
	case []any:
		for i, child := range t {
			nv, err := walkReferences(child, fn)
			if err != nil {
				return nil, err
			}
			t[i] = nv
		}
	}
	return v, nil
}

// checkReferences reports whether args contain references and rejects any
// that do not point at an earlier step of the plan. position is 1-based.
func checkReferences(args json.RawMessage, position int) (bool, error) {
	v, err := decodeArgs(args)
	if err != nil {
		return false, err
	}
	found := false
	_, err = walkReferences(v, func(ref reference) (any, error) {
		found = true
		if ref.step >= position {
			return nil, fmt.Errorf("%w: reference %q refers to step %d, which does not run before step %d",
				domain.ErrInvalidArguments, ref.raw, ref.step, position)
		}
		return nil, nil
	})
	return found, err
}

// resolveReferences substitutes every reference in args with the value it
// points at in the results of earlier steps.
func resolveReferences(args json.RawMessage, earlier []domain.ExecutionResultItem) (json.RawMessage, error) {
	v, err := decodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	replaced := false
	v, err = walkReferences(v, func(ref reference) (any, error) {
		replaced = true
		if ref.step > len(earlier) {
			return nil, fmt.Errorf("reference %s: step %d has not run", ref.raw, ref.step)
		}
		prev := earlier[ref.step-1]
		if !prev.Result.Success {
			return nil, fmt.Errorf("reference %s: step %d (%s) failed", ref.raw, ref.step, prev.ToolName)
		}
		if ref.path == "" {
			if len(prev.Result.Data) == 0 {
				return nil, fmt.Errorf("reference %s: step %d returned no data", ref.raw, ref.step)
			}
			return prev.Result.Data, nil
		}
		res := gjson.GetBytes(prev.Result.Data, ref.path)
		if !res.Exists() {
			return nil, fmt.Errorf("reference %s: step %d result has no %q", ref.raw, ref.step, ref.path)
		}
		return json.RawMessage(res.Raw), nil
	})
	if err != nil {
		return nil, err
	}
	if !replaced {
		return args, nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resolved arguments: %w", err)
	}
	return out, nil
}
