package rules

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Iron-Yzg/auto-matrix-manager/internal/capture"
)

// Evaluate resolves a rule string against the captured exchanges.
// Fixed values and localStorage placeholders pass through unchanged;
// api rules return "" when nothing matches. Evaluation never errors.
func Evaluate(raw string, exchanges []capture.Exchange) string {
	return EvaluateRule(Parse(raw), exchanges)
}

// EvaluateRule is Evaluate for an already-parsed rule.
func EvaluateRule(rule Rule, exchanges []capture.Exchange) string {
	if rule.Kind != KindAPI {
		return rule.Raw
	}
	return evalAPI(rule, exchanges)
}

func evalAPI(rule Rule, exchanges []capture.Exchange) string {
	for i := range exchanges {
		exch := &exchanges[i]
		if !strings.Contains(exch.URL, rule.APIPath) {
			continue
		}

		switch {
		case rule.Part == PartRequest && rule.Section == SectionHeaders:
			// Headers are present from the moment the request went out;
			// the first matching URL wins.
			v, _ := exch.RequestHeader(rule.FieldPath)
			return v

		case rule.Part == PartResponse && rule.Section == SectionBody:
			// Body rules only consider exchanges that actually captured a
			// JSON body; a header-only record for the same path keeps the
			// search going.
			if !exch.HasBody() {
				continue
			}
			return extractBodyPath(exch.ResponseBody, rule.FieldPath)

		default:
			// Unknown part/section combination on a matching exchange.
			return ""
		}
	}
	return ""
}

// extractBodyPath walks a colon-separated field path through a JSON body.
// Path segments traverse object keys or numeric array indices. A missing
// or non-traversable path yields ""; scalar leaves render as plain text
// and non-scalar leaves as their JSON source.
func extractBodyPath(body []byte, fieldPath string) string {
	if fieldPath == "" {
		return ""
	}
	res := gjson.GetBytes(body, gjsonPath(fieldPath))
	if !res.Exists() || res.Type == gjson.Null {
		return ""
	}
	return res.String()
}

// gjsonEscaper neutralizes gjson path metacharacters inside a single key
// segment, so configured field names survive verbatim.
var gjsonEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
)

func gjsonPath(fieldPath string) string {
	segs := strings.Split(fieldPath, ":")
	for i, s := range segs {
		segs[i] = gjsonEscaper.Replace(s)
	}
	return strings.Join(segs, ".")
}
