package datasource

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
)

// Dialect selects the positional placeholder style of a target database.
type Dialect int

const (
	DialectPostgres Dialect = iota // $1, $2, ...
	DialectMySQL                   // ?
	DialectSQLServer               // @p1, @p2, ...
)

// namedParamRe matches :name tokens. The leading [^:] guard keeps
// Postgres ::type casts intact.
var namedParamRe = regexp.MustCompile(`(^|[^:]):([A-Za-z_][A-Za-z0-9_]*)`)

// RewriteNamed converts named :param placeholders into the positional
// style of the dialect. Distinct names are numbered in sorted order, so
// the same statement and parameter set always produce the same rewrite.
// A placeholder with no matching parameter is a validation error; unused
// parameters are ignored.
func RewriteNamed(dialect Dialect, statement string, params map[string]any) (string, []any, error) {
	matches := namedParamRe.FindAllStringSubmatchIndex(statement, -1)
	if len(matches) == 0 {
		return statement, nil, nil
	}

	distinct := map[string]struct{}{}
	for _, m := range matches {
		distinct[statement[m[4]:m[5]]] = struct{}{}
	}
	names := make([]string, 0, len(distinct))
	for name := range distinct {
		if _, ok := params[name]; !ok {
			return "", nil, apperrors.Validation("missing query parameter: " + name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	position := make(map[string]int, len(names))
	for i, name := range names {
		position[name] = i + 1
	}

	var sb strings.Builder
	var args []any
	last := 0
	for _, m := range matches {
		// m[2]:m[3] is the guard character, m[4]:m[5] the name.
		sb.WriteString(statement[last:m[3]])
		name := statement[m[4]:m[5]]
		switch dialect {
		case DialectMySQL:
			sb.WriteString("?")
			args = append(args, params[name])
		case DialectSQLServer:
			fmt.Fprintf(&sb, "@p%d", position[name])
		default:
			fmt.Fprintf(&sb, "$%d", position[name])
		}
		last = m[1]
	}
	sb.WriteString(statement[last:])

	if dialect != DialectMySQL {
		args = make([]any, len(names))
		for i, name := range names {
			args[i] = params[name]
		}
	}
	return sb.String(), args, nil
}
