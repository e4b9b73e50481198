package checkpoint

import (
	"strings"

	"github.com/pkg/errors"
)

var ErrIdentifierInvalid = errors.New("identifier invalid")

const overflowSuffix = "_LOX"

// Table is a schema qualified checkpoint table name.
type Table struct {
	Schema string
	Name   string
}

// ParseTable reads "[schema.]table". The schema defaults to the connecting user.
func ParseTable(name, user string) (Table, error) {
	t := Table{Schema: user, Name: name}
	if idx := strings.Index(name, "."); idx >= 0 {
		t.Schema, t.Name = name[:idx], name[idx+1:]
	}
	for _, id := range []string{t.Schema, t.Name} {
		if !validateIdentifier(id) {
			return Table{}, errors.Wrapf(ErrIdentifierInvalid, "%q", id)
		}
	}
	return t, nil
}

func (t Table) String() string {
	return t.Schema + "." + t.Name
}

// Overflow is the auxiliary table holding transactions that do not fit the checkpoint row.
func (t Table) Overflow() Table {
	return Table{Schema: t.Schema, Name: t.Name + overflowSuffix}
}

// identifiers are spliced into DDL, so only plain names pass
func validateIdentifier(id string) bool {
	if id == "" {
		return false
	}
	for _, ch := range []rune(id) {
		if (ch >= '0' && ch <= '9') ||
			(ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch == '_') || (ch == '$') || (ch == '#') {
			continue
		} else {
			return false
		}
	}
	return true
}
