// Package security screens statements before they reach a target
// database: single-statement normalization, read/write/administrative
// classification, and injection checks on parameter values.
package security

import (
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
)

// StatementClass is the coarse permission category of a statement.
type StatementClass string

const (
	ClassRead           StatementClass = "read"
	ClassWrite          StatementClass = "write"
	ClassAdministrative StatementClass = "administrative"
)

var writeVerbs = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "MERGE": {},
	"REPLACE": {}, "UPSERT": {}, "COPY": {},
}

var adminVerbs = map[string]struct{}{
	"CREATE": {}, "DROP": {}, "ALTER": {}, "TRUNCATE": {},
	"GRANT": {}, "REVOKE": {}, "VACUUM": {}, "ANALYZE": {},
	"SET": {}, "USE": {}, "CALL": {}, "EXEC": {}, "EXECUTE": {},
}

// Classify determines the statement class from its leading keyword,
// skipping comments and WITH/parenthesized prefixes. Anything not
// recognizably a read is treated as administrative.
func Classify(statement string) StatementClass {
	verb := leadingKeyword(statement)
	switch {
	case verb == "SELECT" || verb == "SHOW" || verb == "EXPLAIN" ||
		verb == "DESCRIBE" || verb == "DESC" || verb == "FIND" ||
		verb == "AGGREGATE" || verb == "COUNT":
		return ClassRead
	default:
		if _, ok := writeVerbs[verb]; ok {
			return ClassWrite
		}
		if _, ok := adminVerbs[verb]; ok {
			return ClassAdministrative
		}
		return ClassAdministrative
	}
}

// leadingKeyword returns the first SQL keyword, upper-cased. A WITH
// clause is resolved to the verb of its main statement.
func leadingKeyword(statement string) string {
	s := stripLeadingComments(strings.TrimSpace(statement))
	for strings.HasPrefix(s, "(") {
		s = strings.TrimSpace(s[1:])
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	verb := strings.ToUpper(strings.Trim(fields[0], "({"))

	if verb == "WITH" {
		// Skip the CTE list: find the first top-level keyword after the
		// closing parenthesis of the last CTE body.
		depth := 0
		upper := strings.ToUpper(s)
		for i := 0; i < len(upper); i++ {
			switch upper[i] {
			case '(':
				depth++
			case ')':
				depth--
			default:
				if depth == 0 {
					for _, candidate := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
						if strings.HasPrefix(upper[i:], candidate) {
							return candidate
						}
					}
				}
			}
		}
		return "SELECT"
	}

	// Mongo extended-JSON commands start with a brace; the first key is
	// the command verb.
	if strings.HasPrefix(s, "{") {
		trimmed := strings.TrimLeft(s, "{ \t\n\"")
		if idx := strings.IndexAny(trimmed, "\":"); idx > 0 {
			return strings.ToUpper(trimmed[:idx])
		}
	}
	return verb
}

func stripLeadingComments(s string) string {
	for {
		s = strings.TrimSpace(s)
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.Index(s, "\n")
			if idx < 0 {
				return ""
			}
			s = s[idx+1:]
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = s[idx+2:]
		default:
			return s
		}
	}
}

// Normalize strips the trailing semicolon and rejects statements that
// contain further semicolons outside string literals.
func Normalize(statement string) (string, error) {
	statement = strings.TrimSpace(statement)
	if statement == "" {
		return "", apperrors.Validation("empty statement")
	}

	statement = strings.TrimRight(statement, " \t\n\r")
	if strings.HasSuffix(statement, ";") {
		statement = strings.TrimRight(strings.TrimSuffix(statement, ";"), " \t\n\r")
	}
	if hasSemicolonOutsideStrings(statement) {
		return "", apperrors.Validation("multiple statements are not permitted")
	}
	return statement, nil
}

func hasSemicolonOutsideStrings(statement string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)
	state := stateNormal
	prev := rune(0)
	for _, char := range statement {
		switch state {
		case stateNormal:
			switch char {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			if char == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if char == '"' && prev != '\\' {
				state = stateNormal
			}
		}
		prev = char
	}
	return false
}

// InjectionFinding names a parameter whose value matched an injection
// pattern. The value itself is never logged.
type InjectionFinding struct {
	ParamName   string
	Fingerprint string
}

// CheckParameters screens string parameter values for injection
// patterns. Non-string values cannot carry SQL and are skipped.
func CheckParameters(params map[string]any) []InjectionFinding {
	var findings []InjectionFinding
	for name, value := range params {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
			findings = append(findings, InjectionFinding{ParamName: name, Fingerprint: string(fingerprint)})
		}
	}
	return findings
}

// Screen is the gate every execute_query call passes through: the
// statement is normalized, classified against the permitted set, and
// its parameters are checked for injection. Returns the normalized
// statement on success.
func Screen(statement string, params map[string]any, permitted map[StatementClass]bool) (string, error) {
	normalized, err := Normalize(statement)
	if err != nil {
		return "", err
	}

	class := Classify(normalized)
	if !permitted[class] {
		return "", apperrors.Validation("statement class " + string(class) + " is not permitted")
	}

	if findings := CheckParameters(params); len(findings) > 0 {
		return "", apperrors.Validation("parameter " + findings[0].ParamName + " failed injection screening")
	}
	return normalized, nil
}

// ReadOnly is the default permitted set for agent-originated queries.
func ReadOnly() map[StatementClass]bool {
	return map[StatementClass]bool{ClassRead: true}
}
