package jqexpr

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/itchyny/gojq"

	"github.com/osvaldoandrade/storemigrate/internal/app/dataop"
)

var (
	ErrNoResult    = errors.New("jq expression produced no result")
	ErrManyResults = errors.New("jq expression produced more than one result")
	ErrNotARecord  = errors.New("jq expression must produce an object")
)

type Compiler struct{}

func (Compiler) Compile(expr string) (dataop.Program, error) {
	parsed, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse jq expression: %w", err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("compile jq expression: %w", err)
	}
	return &Program{expr: expr, code: code}, nil
}

// Program rewrites one record into exactly one record.
type Program struct {
	expr string
	code *gojq.Code
}

func (p *Program) Transform(ctx context.Context, doc []byte) ([]byte, error) {
	var input any
	if err := json.Unmarshal(doc, &input); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	iter := p.code.RunWithContext(ctx, input)
	value, ok := iter.Next()
	if !ok {
		return nil, ErrNoResult
	}
	if err, isErr := value.(error); isErr {
		return nil, fmt.Errorf("run jq expression: %w", err)
	}
	if _, extra := iter.Next(); extra {
		return nil, ErrManyResults
	}
	if _, isObject := value.(map[string]any); !isObject {
		return nil, ErrNotARecord
	}

	out, err := json.Marshal(value, json.Deterministic(true))
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return out, nil
}
