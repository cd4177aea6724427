package backtest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// 中文说明：
// HTTP 提交的回测请求先过 JSON Schema 再反序列化，拒绝未知字段与
// 非法取值，错误信息直接回给调用方。

const runRequestSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["start"],
  "properties": {
    "universe": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "policy": {"type": "string", "enum": ["long_only", "long_short"]},
    "profile": {"type": "string"},
    "start": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "end": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "timeframe": {"type": "string", "enum": ["1d", "1w", "1wk", "1mo"]},
    "initial_cash": {"type": "number", "exclusiveMinimum": 0},
    "span_short": {"type": "integer", "minimum": 1},
    "span_medium": {"type": "integer", "minimum": 2},
    "span_long": {"type": "integer", "minimum": 3}
  }
}`

// RunRequestValidator 校验回测提交请求体。
type RunRequestValidator struct {
	schema *jsonschema.Schema
}

func NewRunRequestValidator() (*RunRequestValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("run_request.json", strings.NewReader(runRequestSchema)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile("run_request.json")
	if err != nil {
		return nil, err
	}
	return &RunRequestValidator{schema: schema}, nil
}

// Validate 校验原始请求体；通过后才应反序列化为 RunRequest。
func (v *RunRequestValidator) Validate(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("请求体不是合法 JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("请求体不符合 schema: %w", err)
	}
	return nil
}
