package dataop

import "context"

// RecordRewriter is implemented by structural transactions that can rewrite
// stored records in place. fn receives the current JSON value and returns
// the replacement; indexes over the store follow the new value.
type RecordRewriter interface {
	RewriteRecords(ctx context.Context, store string, fn func(value []byte) ([]byte, error)) (int, error)
}

type Patcher interface {
	Apply(ctx context.Context, doc, patch []byte) ([]byte, error)
	Merge(ctx context.Context, doc, patch []byte) ([]byte, error)
}

// Program is a compiled record transformation.
type Program interface {
	Transform(ctx context.Context, doc []byte) ([]byte, error)
}

type Compiler interface {
	Compile(expr string) (Program, error)
}
