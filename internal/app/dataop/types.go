package dataop

import "github.com/osvaldoandrade/storemigrate/internal/domain"

type Kind string

const (
	KindJSONPatch  Kind = "json_patch"
	KindMergePatch Kind = "merge_patch"
	KindJQ         Kind = "jq"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindJSONPatch, KindMergePatch, KindJQ:
		return true
	default:
		return false
	}
}

// Operation rewrites every record of Store while migrating to Version.
// Patch holds the RFC 6902 or RFC 7396 document; Expr holds the jq program.
type Operation struct {
	Version domain.Version
	Store   string
	Kind    Kind
	Patch   []byte
	Expr    string
}
