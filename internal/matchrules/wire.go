package matchrules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// The pact-file encoding of matching rules changed across specification
// versions. V2 keeps a flat map of fully-qualified paths to a single
// rule; V3 and V4 nest rule lists under named categories with a combine
// policy. Both forms are tolerated on read; writes follow the pact's
// own version.

// UnmarshalJSON decodes a rule list in its V3+ wire form. This also
// covers the rule maps nested inside ArrayContains variants.
func (l *RuleList) UnmarshalJSON(data []byte) error {
	decoded, err := decodeRuleList(data)
	if err != nil {
		return err
	}
	*l = decoded
	return nil
}

// MarshalJSON encodes the rule list in its V3+ wire form.
func (l RuleList) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeRuleList(l))
}

// UnmarshalJSON decodes a single rule from its wire form.
func (r *Rule) UnmarshalJSON(data []byte) error {
	decoded, err := decodeRule(data)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// MarshalJSON encodes a single rule in the V4 wire form.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeRule(r, 4))
}

// UnmarshalCategories decodes the "matchingRules" value of an HTTP part
// for the given pact specification major version.
func UnmarshalCategories(raw json.RawMessage, specVersion int) (Categories, error) {
	if len(raw) == 0 {
		return Categories{}, nil
	}
	if specVersion <= 2 {
		return unmarshalV2(raw)
	}
	return unmarshalV3(raw)
}

func unmarshalV2(raw json.RawMessage) (Categories, error) {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("invalid V2 matching rules: %w", err)
	}

	cats := Categories{}
	for path, ruleRaw := range flat {
		rule, err := decodeRule(ruleRaw)
		if err != nil {
			return nil, fmt.Errorf("rule at %q: %w", path, err)
		}
		name, rel := splitV2Path(path)
		cats.Add(name, rel, rule)
	}
	return cats, nil
}

// splitV2Path maps a flat V2 path like "$.body.a[0]" to its category
// and the path relative to that category.
func splitV2Path(path string) (CategoryName, string) {
	switch {
	case path == "$.path":
		return CategoryPath, "$"
	case path == "$.method":
		return CategoryMethod, "$"
	case path == "$.status":
		return CategoryStatus, "$"
	case strings.HasPrefix(path, "$.body"):
		rel := strings.TrimPrefix(path, "$.body")
		if rel == "" {
			rel = "$"
		} else {
			rel = "$" + rel
		}
		return CategoryBody, rel
	case strings.HasPrefix(path, "$.headers."):
		return CategoryHeaders, strings.TrimPrefix(path, "$.headers.")
	case strings.HasPrefix(path, "$.query."):
		return CategoryQuery, strings.TrimPrefix(path, "$.query.")
	default:
		return CategoryBody, path
	}
}

func unmarshalV3(raw json.RawMessage) (Categories, error) {
	var byCategory map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byCategory); err != nil {
		return nil, fmt.Errorf("invalid matching rules: %w", err)
	}

	cats := Categories{}
	for name, catRaw := range byCategory {
		catName := CategoryName(name)
		switch catName {
		case CategoryPath, CategoryMethod, CategoryStatus:
			// Single-value categories hold the rule list directly.
			list, err := decodeRuleList(catRaw)
			if err != nil {
				return nil, fmt.Errorf("category %q: %w", name, err)
			}
			if cats[catName] == nil {
				cats[catName] = Category{}
			}
			cats[catName]["$"] = list
		default:
			var byPath map[string]json.RawMessage
			if err := json.Unmarshal(catRaw, &byPath); err != nil {
				return nil, fmt.Errorf("category %q: %w", name, err)
			}
			for path, listRaw := range byPath {
				list, err := decodeRuleList(listRaw)
				if err != nil {
					return nil, fmt.Errorf("category %q path %q: %w", name, path, err)
				}
				if cats[catName] == nil {
					cats[catName] = Category{}
				}
				cats[catName][path] = list
			}
		}
	}
	return cats, nil
}

func decodeRuleList(raw json.RawMessage) (RuleList, error) {
	var wire struct {
		Matchers []json.RawMessage `json:"matchers"`
		Combine  string            `json:"combine"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return RuleList{}, err
	}

	// A bare rule object (no "matchers" key) is tolerated; some
	// producers write single rules directly.
	if wire.Matchers == nil {
		rule, err := decodeRule(raw)
		if err != nil {
			return RuleList{}, err
		}
		return RuleList{Combine: CombineAnd, Rules: []Rule{rule}}, nil
	}

	list := RuleList{Combine: CombineAnd}
	if strings.EqualFold(wire.Combine, string(CombineOr)) {
		list.Combine = CombineOr
	}
	for _, ruleRaw := range wire.Matchers {
		rule, err := decodeRule(ruleRaw)
		if err != nil {
			return RuleList{}, err
		}
		list.Rules = append(list.Rules, rule)
	}
	return list, nil
}

func decodeRule(raw json.RawMessage) (Rule, error) {
	var wire map[string]json.RawMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Rule{}, err
	}

	match := ""
	if m, ok := wire["match"]; ok {
		if err := json.Unmarshal(m, &match); err != nil {
			return Rule{}, fmt.Errorf("invalid match field: %w", err)
		}
	}

	str := func(key string) string {
		var s string
		if raw, ok := wire[key]; ok {
			_ = json.Unmarshal(raw, &s)
		}
		return s
	}
	num := func(key string) (int, bool) {
		var n int
		raw, ok := wire[key]
		if !ok {
			return 0, false
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, false
		}
		return n, true
	}

	min, hasMin := num("min")
	max, hasMax := num("max")

	switch match {
	case "equality":
		return Rule{Kind: KindEquality}, nil
	case "regex":
		return Rule{Kind: KindRegex, Regex: str("regex")}, nil
	case "type", "":
		// "match":"type" with min/max is the wire form of the bounded
		// type rules; a bare {"min": n} implies the same.
		switch {
		case hasMin && hasMax:
			return Rule{Kind: KindMinMaxType, Min: min, Max: max}, nil
		case hasMin:
			return Rule{Kind: KindMinType, Min: min}, nil
		case hasMax:
			return Rule{Kind: KindMaxType, Max: max}, nil
		case match == "":
			return Rule{}, fmt.Errorf("rule has no match field")
		default:
			return Rule{Kind: KindType}, nil
		}
	case "include":
		return Rule{Kind: KindInclude, Value: str("value")}, nil
	case "integer":
		return Rule{Kind: KindInteger}, nil
	case "decimal":
		return Rule{Kind: KindDecimal}, nil
	case "number":
		return Rule{Kind: KindNumber}, nil
	case "null":
		return Rule{Kind: KindNull}, nil
	case "boolean":
		return Rule{Kind: KindBoolean}, nil
	case "date":
		return Rule{Kind: KindDate, Format: firstOf(str("format"), str("date"))}, nil
	case "time":
		return Rule{Kind: KindTime, Format: firstOf(str("format"), str("time"))}, nil
	case "timestamp", "datetime":
		return Rule{Kind: KindDateTime, Format: firstOf(str("format"), str("timestamp"), str("datetime"))}, nil
	case "contentType":
		return Rule{Kind: KindContentType, MIME: str("value")}, nil
	case "values":
		return Rule{Kind: KindValues}, nil
	case "arrayContains":
		var variants []Variant
		if v, ok := wire["variants"]; ok {
			if err := json.Unmarshal(v, &variants); err != nil {
				return Rule{}, fmt.Errorf("invalid arrayContains variants: %w", err)
			}
		}
		return Rule{Kind: KindArrayContains, Variants: variants}, nil
	case "statusCode":
		return decodeStatusRule(wire["status"])
	case "notEmpty":
		return Rule{Kind: KindNotEmpty}, nil
	case "semver":
		return Rule{Kind: KindSemver}, nil
	case "eachKey":
		defs, err := decodeSubRules(wire["rules"])
		if err != nil {
			return Rule{}, err
		}
		return Rule{Kind: KindEachKey, Definition: defs}, nil
	case "eachValue":
		defs, err := decodeSubRules(wire["rules"])
		if err != nil {
			return Rule{}, err
		}
		return Rule{Kind: KindEachValue, Definition: defs}, nil
	default:
		return Rule{}, fmt.Errorf("unknown matching rule %q", match)
	}
}

func decodeStatusRule(raw json.RawMessage) (Rule, error) {
	if len(raw) == 0 {
		return Rule{Kind: KindStatusCode, Status: StatusSuccess}, nil
	}
	var class string
	if err := json.Unmarshal(raw, &class); err == nil {
		switch class {
		case "info", "information", "informational":
			return Rule{Kind: KindStatusCode, Status: StatusInformational}, nil
		case "success":
			return Rule{Kind: KindStatusCode, Status: StatusSuccess}, nil
		case "redirect":
			return Rule{Kind: KindStatusCode, Status: StatusRedirect}, nil
		case "clientError":
			return Rule{Kind: KindStatusCode, Status: StatusClientError}, nil
		case "serverError", "error":
			return Rule{Kind: KindStatusCode, Status: StatusServerError}, nil
		default:
			return Rule{}, fmt.Errorf("unknown status class %q", class)
		}
	}
	var codes []int
	if err := json.Unmarshal(raw, &codes); err != nil {
		return Rule{}, fmt.Errorf("invalid statusCode rule: %w", err)
	}
	return Rule{Kind: KindStatusCode, Status: StatusCodes, Codes: codes}, nil
}

func decodeSubRules(raw json.RawMessage) ([]Rule, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rawRules []json.RawMessage
	if err := json.Unmarshal(raw, &rawRules); err != nil {
		return nil, fmt.Errorf("invalid sub-rules: %w", err)
	}
	rules := make([]Rule, 0, len(rawRules))
	for _, r := range rawRules {
		rule, err := decodeRule(r)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// MarshalCategories encodes the rule tree for the given pact
// specification major version. Empty categories are omitted.
func MarshalCategories(c Categories, specVersion int) (json.RawMessage, error) {
	if c.IsEmpty() {
		return nil, nil
	}
	if specVersion <= 2 {
		return marshalV2(c)
	}
	return marshalV3(c)
}

func marshalV2(c Categories) (json.RawMessage, error) {
	flat := map[string]any{}
	for name, cat := range c {
		for path, list := range cat {
			if len(list.Rules) == 0 {
				continue
			}
			var full string
			switch name {
			case CategoryBody:
				full = "$.body" + strings.TrimPrefix(path, "$")
			case CategoryHeaders:
				full = "$.headers." + path
			case CategoryQuery:
				full = "$.query." + path
			case CategoryPath:
				full = "$.path"
			case CategoryMethod:
				full = "$.method"
			case CategoryStatus:
				full = "$.status"
			default:
				continue
			}
			// V2 carries a single rule per path.
			flat[full] = encodeRule(list.Rules[0], 2)
		}
	}
	return json.Marshal(flat)
}

func marshalV3(c Categories) (json.RawMessage, error) {
	out := map[string]any{}
	for name, cat := range c {
		if len(cat) == 0 {
			continue
		}
		switch name {
		case CategoryPath, CategoryMethod, CategoryStatus:
			if list, ok := cat["$"]; ok && len(list.Rules) > 0 {
				out[string(name)] = encodeRuleList(list)
			}
		default:
			byPath := map[string]any{}
			for path, list := range cat {
				if len(list.Rules) == 0 {
					continue
				}
				byPath[path] = encodeRuleList(list)
			}
			if len(byPath) > 0 {
				out[string(name)] = byPath
			}
		}
	}
	return json.Marshal(out)
}

func encodeRuleList(list RuleList) map[string]any {
	matchers := make([]map[string]any, 0, len(list.Rules))
	for _, r := range list.Rules {
		matchers = append(matchers, encodeRule(r, 3))
	}
	combine := list.Combine
	if combine == "" {
		combine = CombineAnd
	}
	return map[string]any{
		"matchers": matchers,
		"combine":  string(combine),
	}
}

func encodeRule(r Rule, specVersion int) map[string]any {
	switch r.Kind {
	case KindEquality:
		return map[string]any{"match": "equality"}
	case KindRegex:
		return map[string]any{"match": "regex", "regex": r.Regex}
	case KindType:
		return map[string]any{"match": "type"}
	case KindMinType:
		return map[string]any{"match": "type", "min": r.Min}
	case KindMaxType:
		return map[string]any{"match": "type", "max": r.Max}
	case KindMinMaxType:
		return map[string]any{"match": "type", "min": r.Min, "max": r.Max}
	case KindInclude:
		return map[string]any{"match": "include", "value": r.Value}
	case KindInteger:
		return map[string]any{"match": "integer"}
	case KindDecimal:
		return map[string]any{"match": "decimal"}
	case KindNumber:
		return map[string]any{"match": "number"}
	case KindNull:
		return map[string]any{"match": "null"}
	case KindBoolean:
		return map[string]any{"match": "boolean"}
	case KindDate:
		out := map[string]any{"match": "date"}
		if r.Format != "" {
			out["date"] = r.Format
		}
		return out
	case KindTime:
		out := map[string]any{"match": "time"}
		if r.Format != "" {
			out["time"] = r.Format
		}
		return out
	case KindDateTime:
		if specVersion <= 3 {
			out := map[string]any{"match": "timestamp"}
			if r.Format != "" {
				out["timestamp"] = r.Format
			}
			return out
		}
		out := map[string]any{"match": "datetime"}
		if r.Format != "" {
			out["format"] = r.Format
		}
		return out
	case KindContentType:
		return map[string]any{"match": "contentType", "value": r.MIME}
	case KindValues:
		return map[string]any{"match": "values"}
	case KindArrayContains:
		return map[string]any{"match": "arrayContains", "variants": r.Variants}
	case KindStatusCode:
		if r.Status == StatusCodes {
			return map[string]any{"match": "statusCode", "status": r.Codes}
		}
		return map[string]any{"match": "statusCode", "status": string(r.Status)}
	case KindNotEmpty:
		return map[string]any{"match": "notEmpty"}
	case KindSemver:
		return map[string]any{"match": "semver"}
	case KindEachKey:
		return map[string]any{"match": "eachKey", "rules": encodeSubRules(r.Definition)}
	case KindEachValue:
		return map[string]any{"match": "eachValue", "rules": encodeSubRules(r.Definition)}
	default:
		return map[string]any{"match": string(r.Kind)}
	}
}

func encodeSubRules(rules []Rule) []map[string]any {
	out := make([]map[string]any, 0, len(rules))
	for _, r := range rules {
		out = append(out, encodeRule(r, 4))
	}
	return out
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
