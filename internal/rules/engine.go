// Package rules implements trigger condition evaluation: declared conditions
// are compiled once per trigger (regex patterns, numeric values, membership
// lists, script programs) and evaluated against event payloads.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
)

// ScriptKey is the condition key whose value is evaluated as an expression
// against the event payload instead of a field comparison
const ScriptKey = "script"

// Operator names accepted inside {operator, value} conditions
const (
	OpEquals       = "equals"
	OpNotEquals    = "not_equals"
	OpGreaterThan  = "greater_than"
	OpLessThan     = "less_than"
	OpGreaterEqual = "greater_equal"
	OpLessEqual    = "less_equal"
	OpContains     = "contains"
	OpNotContains  = "not_contains"
	OpStartsWith   = "starts_with"
	OpEndsWith     = "ends_with"
	OpRegex        = "regex"
	OpIn           = "in"
	OpNotIn        = "not_in"
)

// Engine evaluates trigger conditions, caching compiled forms per trigger
type Engine struct {
	mu       sync.RWMutex
	compiled map[string]*compiledConditions
	scripts  *scriptEvaluator
	logger   logging.Logger
}

type compiledConditions struct {
	script *compiledScript
	fields []*compiledField
}

type compiledField struct {
	path     string
	operator string
	value    interface{}
	literal  bool // literal equality, not an operator condition

	regex    *regexp.Regexp
	numValue float64
	numeric  bool
	list     []interface{}
}

// NewEngine creates a condition engine
func NewEngine(logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Engine{
		compiled: make(map[string]*compiledConditions),
		scripts:  newScriptEvaluator(),
		logger:   logger.WithFields(logging.String("component", "rules")),
	}
}

// EvaluateFor evaluates conditions against data, caching the compiled form
// under triggerID. All declared keys must pass (logical AND); a "script" key
// short-circuits every other key.
func (e *Engine) EvaluateFor(triggerID string, conditions map[string]interface{}, data map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}

	compiled := e.compiledFor(triggerID, conditions)
	return e.evaluateCompiled(compiled, data)
}

// Evaluate evaluates conditions without caching. It is a pure function of its
// inputs: identical inputs yield identical results and no state is mutated.
func (e *Engine) Evaluate(conditions map[string]interface{}, data map[string]interface{}) bool {
	if len(conditions) == 0 {
		return true
	}
	return e.evaluateCompiled(e.compile(conditions), data)
}

// Remove drops the cached compiled form for a trigger
func (e *Engine) Remove(triggerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.compiled, triggerID)
}

func (e *Engine) compiledFor(triggerID string, conditions map[string]interface{}) *compiledConditions {
	e.mu.RLock()
	compiled, exists := e.compiled[triggerID]
	e.mu.RUnlock()
	if exists {
		return compiled
	}

	compiled = e.compile(conditions)

	e.mu.Lock()
	e.compiled[triggerID] = compiled
	e.mu.Unlock()

	return compiled
}

func (e *Engine) compile(conditions map[string]interface{}) *compiledConditions {
	compiled := &compiledConditions{}

	for key, declared := range conditions {
		if key == ScriptKey {
			source, ok := declared.(string)
			if !ok {
				e.logger.Warn("Script condition is not a string", logging.Any("value", declared))
				compiled.script = &compiledScript{invalid: true}
				continue
			}
			compiled.script = e.scripts.compile(source, e.logger)
			continue
		}

		field := e.compileField(key, declared)
		compiled.fields = append(compiled.fields, field)
	}

	return compiled
}

func (e *Engine) compileField(path string, declared interface{}) *compiledField {
	cond, isOperator := asOperatorCondition(declared)
	if !isOperator {
		return &compiledField{path: path, value: declared, literal: true}
	}

	field := &compiledField{
		path:     path,
		operator: cond.operator,
		value:    cond.value,
	}

	switch cond.operator {
	case OpRegex:
		if pattern, ok := cond.value.(string); ok {
			if re, err := regexp.Compile(pattern); err == nil {
				field.regex = re
			} else {
				e.logger.Warn("Invalid regex pattern in condition",
					logging.String("path", path),
					logging.String("pattern", pattern),
				)
			}
		}
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual:
		if num, err := toFloat64(cond.value); err == nil {
			field.numValue = num
			field.numeric = true
		}
	case OpIn, OpNotIn:
		field.list = asList(cond.value)
	}

	return field
}

func (e *Engine) evaluateCompiled(compiled *compiledConditions, data map[string]interface{}) bool {
	// A script condition short-circuits all field conditions.
	if compiled.script != nil {
		return e.scripts.run(compiled.script, data, e.logger)
	}

	for _, field := range compiled.fields {
		if !e.evaluateField(field, data) {
			return false
		}
	}
	return true
}

// lookupField resolves a condition path against the event payload. Rule
// authors see the payload wrapped in an envelope, so paths written as
// "data.x" or "event.x" resolve to the same payload field the bare "x" does.
// A real "data"/"event" sub-object in the payload takes precedence.
func lookupField(data map[string]interface{}, path string) (interface{}, bool) {
	if value, ok := utils.LookupPath(data, path); ok {
		return value, true
	}
	for _, prefix := range []string{"data.", "event."} {
		if strings.HasPrefix(path, prefix) {
			return utils.LookupPath(data, strings.TrimPrefix(path, prefix))
		}
	}
	return nil, false
}

func (e *Engine) evaluateField(field *compiledField, data map[string]interface{}) bool {
	actual, _ := lookupField(data, field.path)

	if field.literal {
		return valueEquals(actual, field.value)
	}

	switch field.operator {
	case OpEquals:
		return valueEquals(actual, field.value)

	case OpNotEquals:
		return !valueEquals(actual, field.value)

	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual:
		if !field.numeric {
			return false
		}
		actualNum, err := toFloat64(actual)
		if err != nil {
			return false
		}
		switch field.operator {
		case OpGreaterThan:
			return actualNum > field.numValue
		case OpLessThan:
			return actualNum < field.numValue
		case OpGreaterEqual:
			return actualNum >= field.numValue
		default:
			return actualNum <= field.numValue
		}

	case OpContains:
		return containsFold(stringify(actual), stringify(field.value))

	case OpNotContains:
		return !containsFold(stringify(actual), stringify(field.value))

	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(stringify(actual)), strings.ToLower(stringify(field.value)))

	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(stringify(actual)), strings.ToLower(stringify(field.value)))

	case OpRegex:
		if field.regex == nil {
			return false
		}
		return field.regex.MatchString(stringify(actual))

	case OpIn:
		return listContains(field.list, actual)

	case OpNotIn:
		if field.list == nil {
			return false
		}
		return !listContains(field.list, actual)

	default:
		// Unknown operator never matches.
		return false
	}
}

type operatorCondition struct {
	operator string
	value    interface{}
}

func asOperatorCondition(declared interface{}) (operatorCondition, bool) {
	m, ok := declared.(map[string]interface{})
	if !ok {
		return operatorCondition{}, false
	}
	op, ok := m["operator"].(string)
	if !ok {
		return operatorCondition{}, false
	}
	return operatorCondition{operator: op, value: m["value"]}, true
}

func asList(value interface{}) []interface{} {
	switch v := value.(type) {
	case []interface{}:
		return v
	case []string:
		list := make([]interface{}, len(v))
		for i, item := range v {
			list[i] = item
		}
		return list
	default:
		return nil
	}
}

func listContains(list []interface{}, actual interface{}) bool {
	for _, item := range list {
		if valueEquals(actual, item) {
			return true
		}
	}
	return false
}

// valueEquals compares an actual event value with a declared condition value.
// Numbers compare numerically regardless of concrete type, since JSON
// decoding produces float64 while registered conditions may carry ints.
func valueEquals(actual, declared interface{}) bool {
	if actual == nil || declared == nil {
		return actual == nil && declared == nil
	}

	actualStr, actualIsString := actual.(string)
	declaredStr, declaredIsString := declared.(string)
	if actualIsString || declaredIsString {
		// Strings compare as strings and never equal numbers, matching
		// strict equality semantics.
		return actualIsString && declaredIsString && actualStr == declaredStr
	}

	actualNum, errA := toFloat64(actual)
	declaredNum, errB := toFloat64(declared)
	if errA == nil && errB == nil {
		return actualNum == declaredNum
	}

	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", declared) &&
		fmt.Sprintf("%T", actual) == fmt.Sprintf("%T", declared)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func stringify(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	if f, ok := value.(float64); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprintf("%v", value)
}

func toFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}
