// Package jsonrepair extracts a JSON value from language model output that may be
// wrapped in prose, fenced code blocks, or slightly malformed.
//
// Strategies run in a fixed, precision-first order and the first success wins:
// direct parse, fenced block, balanced-bracket scan, syntactic repair, and an
// aggressive regexp match. Failure is an ordinary outcome, never a panic.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Strategy identifies which step of the cascade produced a value.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyDirect
	StrategyFenced
	StrategyBalanced
	StrategyRepaired
	StrategyAggressive
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyFenced:
		return "fenced"
	case StrategyBalanced:
		return "balanced"
	case StrategyRepaired:
		return "repaired"
	case StrategyAggressive:
		return "aggressive"
	}
	return "none"
}

// Expect restricts which decoded values count as a successful parse.
type Expect int

const (
	// ExpectAny accepts any JSON value, including bare primitives.
	ExpectAny Expect = iota
	// ExpectContainer accepts objects and arrays only.
	ExpectContainer
	ExpectObject
	ExpectArray
)

// Result is the outcome of ParseWithValidation.
type Result struct {
	Success  bool     `json:"success"`
	Data     any      `json:"data,omitempty"`
	Error    string   `json:"error,omitempty"`
	Strategy Strategy `json:"-"`
}

// ErrUnparseable is returned by ParseInto when every strategy failed.
var ErrUnparseable = errors.New("could not extract JSON")

var errTrailingData = errors.New("trailing data after JSON value")

var (
	fencePattern          = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")
	arrayOfObjectsPattern = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
	singleObjectPattern   = regexp.MustCompile(`(?s)\{.*\}`)
)

// Parse returns the JSON value contained in text, accepting any JSON value.
// Numbers decode as json.Number so values round-trip exactly.
func Parse(text string) (any, bool) {
	v, s := ParseDetailed(text, ExpectAny)
	return v, s != StrategyNone
}

// ParseObject returns the first JSON object or array found in text.
func ParseObject(text string) (any, bool) {
	v, s := ParseDetailed(text, ExpectContainer)
	return v, s != StrategyNone
}

// ParseInto decodes the JSON value found in text into dst.
func ParseInto(text string, dst any, expect Expect) error {
	v, s := ParseDetailed(text, expect)
	if s == StrategyNone {
		return ErrUnparseable
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to re-encode parsed value: %w", err)
	}
	return json.Unmarshal(raw, dst)
}

// ParseWithValidation parses text and runs validate on the decoded value.
func ParseWithValidation(text string, validate func(any) error) Result {
	v, s := ParseDetailed(text, ExpectAny)
	if s == StrategyNone {
		return Result{Success: false, Error: ErrUnparseable.Error()}
	}
	if validate != nil {
		if err := validate(v); err != nil {
			return Result{Success: false, Error: err.Error(), Strategy: s}
		}
	}
	return Result{Success: true, Data: v, Strategy: s}
}

// ParseDetailed runs the cascade and reports which strategy succeeded.
func ParseDetailed(text string, expect Expect) (v any, strategy Strategy) {
	defer func() {
		if r := recover(); r != nil {
			v, strategy = nil, StrategyNone
		}
	}()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, StrategyNone
	}

	if v, ok := tryDecode(trimmed, expect); ok {
		return v, StrategyDirect
	}

	source := trimmed
	if blocks := fencedBlocks(trimmed); len(blocks) > 0 {
		for _, block := range blocks {
			if v, ok := tryDecode(block, expect); ok {
				return v, StrategyFenced
			}
		}
		source = blocks[0]
	}

	spans := balancedSpans(source)
	if v, ok := longestParseable(spans, expect); ok {
		return v, StrategyBalanced
	}
	if source != trimmed {
		if v, ok := longestParseable(balancedSpans(trimmed), expect); ok {
			return v, StrategyBalanced
		}
	}

	if v, ok := repair(repairCandidate(source, spans), expect); ok {
		return v, StrategyRepaired
	}

	for _, pattern := range []*regexp.Regexp{arrayOfObjectsPattern, singleObjectPattern} {
		if match := pattern.FindString(trimmed); match != "" {
			if v, ok := repair(match, expect); ok {
				return v, StrategyAggressive
			}
		}
	}
	return nil, StrategyNone
}

func decode(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}

func tryDecode(s string, expect Expect) (any, bool) {
	v, err := decode(s)
	if err != nil || !accepts(v, expect) {
		return nil, false
	}
	return v, true
}

func accepts(v any, expect Expect) bool {
	switch expect {
	case ExpectContainer:
		switch v.(type) {
		case map[string]any, []any:
			return true
		}
		return false
	case ExpectObject:
		_, ok := v.(map[string]any)
		return ok
	case ExpectArray:
		_, ok := v.([]any)
		return ok
	}
	return true
}

func fencedBlocks(text string) []string {
	matches := fencePattern.FindAllStringSubmatch(text, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		if block := strings.TrimSpace(m[1]); block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}

func longestParseable(spans []string, expect Expect) (any, bool) {
	var best any
	bestLen := -1
	for _, span := range spans {
		if len(span) <= bestLen {
			continue
		}
		if v, ok := tryDecode(span, expect); ok {
			best, bestLen = v, len(span)
		}
	}
	return best, bestLen >= 0
}

// repairCandidate picks the substring the repair passes work on: the longest
// balanced span, else the text between the first opening and last closing bracket.
func repairCandidate(source string, spans []string) string {
	longest := ""
	for _, span := range spans {
		if len(span) > len(longest) {
			longest = span
		}
	}
	if longest != "" {
		return longest
	}
	start := strings.IndexAny(source, "{[")
	end := strings.LastIndexAny(source, "}]")
	if start >= 0 && end > start {
		return source[start : end+1]
	}
	return source
}
