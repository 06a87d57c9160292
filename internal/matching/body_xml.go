package matching

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/getpactd/pactd/internal/matchrules"
)

// XML bodies are compared element-wise: names by namespace URI plus
// local name, attributes as a key/value mapping, text content as a
// string. Matchers attach to paths extended with @attr and #text.

func matchXMLBody(expected, actual []byte, rules matchrules.Categories) []Mismatch {
	expectedDoc := etree.NewDocument()
	if err := expectedDoc.ReadFromBytes(expected); err != nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    string(expected),
			Actual:      string(actual),
			Description: fmt.Sprintf("expected body is not valid XML: %v", err),
		}}
	}
	actualDoc := etree.NewDocument()
	if err := actualDoc.ReadFromBytes(actual); err != nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    string(expected),
			Actual:      string(actual),
			Description: fmt.Sprintf("actual body is not valid XML: %v", err),
		}}
	}

	expectedRoot := expectedDoc.Root()
	actualRoot := actualDoc.Root()
	if expectedRoot == nil || actualRoot == nil {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        "$",
			Expected:    string(expected),
			Actual:      string(actual),
			Description: "XML document has no root element",
		}}
	}

	path := []string{"$", expectedRoot.Tag}
	return compareXMLElement(expectedRoot, actualRoot, path, rules, xmlScope{}, xmlScope{})
}

// xmlScope maps namespace prefixes to URIs, accumulated while
// descending so names compare by URI rather than prefix.
type xmlScope map[string]string

func (s xmlScope) extend(el *etree.Element) xmlScope {
	child := xmlScope{}
	for k, v := range s {
		child[k] = v
	}
	for _, attr := range el.Attr {
		if attr.Space == "xmlns" {
			child[attr.Key] = attr.Value
		} else if attr.Space == "" && attr.Key == "xmlns" {
			child[""] = attr.Value
		}
	}
	return child
}

func (s xmlScope) resolve(prefix string) string {
	return s[prefix]
}

func compareXMLElement(expected, actual *etree.Element, path []string, rules matchrules.Categories, expectedScope, actualScope xmlScope) []Mismatch {
	expectedScope = expectedScope.extend(expected)
	actualScope = actualScope.extend(actual)

	var mismatches []Mismatch

	if expected.Tag != actual.Tag ||
		expectedScope.resolve(expected.Space) != actualScope.resolve(actual.Space) {
		mismatches = append(mismatches, Mismatch{
			Kind:     MismatchBody,
			Path:     pathString(path),
			Expected: qualifiedName(expected, expectedScope),
			Actual:   qualifiedName(actual, actualScope),
			Description: fmt.Sprintf("expected element %s but received %s",
				qualifiedName(expected, expectedScope), qualifiedName(actual, actualScope)),
		})
		return mismatches
	}

	mismatches = append(mismatches, compareXMLAttributes(expected, actual, path, rules)...)
	mismatches = append(mismatches, compareXMLText(expected, actual, path, rules)...)
	mismatches = append(mismatches, compareXMLChildren(expected, actual, path, rules, expectedScope, actualScope)...)

	return mismatches
}

func compareXMLAttributes(expected, actual *etree.Element, path []string, rules matchrules.Categories) []Mismatch {
	var mismatches []Mismatch

	for _, attr := range expected.Attr {
		if attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns") {
			continue
		}
		attrPath := append(append([]string(nil), path...), "@"+attr.Key)
		actualAttr := actual.SelectAttr(attr.FullKey())
		if actualAttr == nil {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchBody,
				Path:        pathString(attrPath),
				Expected:    attr.Value,
				Actual:      "",
				Description: fmt.Sprintf("expected attribute %q but it was missing", attr.Key),
			})
			continue
		}

		if list, ok := resolveBodyRules(rules, attrPath); ok {
			for _, err := range applyRuleList(list, attr.Value, actualAttr.Value) {
				mismatches = append(mismatches, Mismatch{
					Kind:        MismatchBody,
					Path:        pathString(attrPath),
					Expected:    attr.Value,
					Actual:      actualAttr.Value,
					Description: err.Error(),
				})
			}
			continue
		}

		if attr.Value != actualAttr.Value {
			mismatches = append(mismatches, Mismatch{
				Kind:     MismatchBody,
				Path:     pathString(attrPath),
				Expected: attr.Value,
				Actual:   actualAttr.Value,
				Description: fmt.Sprintf("expected attribute %q to equal %q but received %q",
					attr.Key, attr.Value, actualAttr.Value),
			})
		}
	}

	return mismatches
}

func compareXMLText(expected, actual *etree.Element, path []string, rules matchrules.Categories) []Mismatch {
	expectedText := strings.TrimSpace(expected.Text())
	actualText := strings.TrimSpace(actual.Text())
	textPath := append(append([]string(nil), path...), "#text")

	if list, ok := resolveBodyRules(rules, textPath); ok {
		var mismatches []Mismatch
		for _, err := range applyRuleList(list, expectedText, actualText) {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchBody,
				Path:        pathString(textPath),
				Expected:    expectedText,
				Actual:      actualText,
				Description: err.Error(),
			})
		}
		return mismatches
	}

	if expectedText != actualText {
		return []Mismatch{{
			Kind:        MismatchBody,
			Path:        pathString(textPath),
			Expected:    expectedText,
			Actual:      actualText,
			Description: fmt.Sprintf("expected text %q but received %q", expectedText, actualText),
		}}
	}
	return nil
}

func compareXMLChildren(expected, actual *etree.Element, path []string, rules matchrules.Categories, expectedScope, actualScope xmlScope) []Mismatch {
	var mismatches []Mismatch

	expectedByName := groupChildren(expected)
	actualByName := groupChildren(actual)

	for _, name := range sortedKeys(expectedByName) {
		expectedGroup := expectedByName[name]
		actualGroup := actualByName[name]
		groupPath := append(append([]string(nil), path...), name)

		if len(actualGroup) == 0 {
			mismatches = append(mismatches, Mismatch{
				Kind:        MismatchBody,
				Path:        pathString(groupPath),
				Expected:    name,
				Actual:      "",
				Description: fmt.Sprintf("expected child element %q but it was missing", name),
			})
			continue
		}

		list, _ := resolveBodyRules(rules, groupPath)
		if hasTypeMatcher(list) {
			// Template mode: each actual sibling is compared against
			// the first expected one.
			for _, err := range applyRuleList(list, asAnySlice(expectedGroup), asAnySlice(actualGroup)) {
				mismatches = append(mismatches, Mismatch{
					Kind:        MismatchBody,
					Path:        pathString(groupPath),
					Expected:    name,
					Actual:      name,
					Description: err.Error(),
				})
			}
			for i, actualChild := range actualGroup {
				childPath := append(append([]string(nil), groupPath...), strconv.Itoa(i))
				mismatches = append(mismatches, compareXMLElement(expectedGroup[0], actualChild, childPath, rules, expectedScope, actualScope)...)
			}
			continue
		}

		if len(expectedGroup) != len(actualGroup) {
			mismatches = append(mismatches, Mismatch{
				Kind:     MismatchBody,
				Path:     pathString(groupPath),
				Expected: strconv.Itoa(len(expectedGroup)),
				Actual:   strconv.Itoa(len(actualGroup)),
				Description: fmt.Sprintf("expected %d %q element(s) but received %d",
					len(expectedGroup), name, len(actualGroup)),
			})
		}
		for i := range expectedGroup {
			if i >= len(actualGroup) {
				break
			}
			childPath := append(append([]string(nil), groupPath...), strconv.Itoa(i))
			mismatches = append(mismatches, compareXMLElement(expectedGroup[i], actualGroup[i], childPath, rules, expectedScope, actualScope)...)
		}
	}

	return mismatches
}

func groupChildren(el *etree.Element) map[string][]*etree.Element {
	groups := map[string][]*etree.Element{}
	for _, child := range el.ChildElements() {
		groups[child.Tag] = append(groups[child.Tag], child)
	}
	return groups
}

func qualifiedName(el *etree.Element, scope xmlScope) string {
	if uri := scope.resolve(el.Space); uri != "" {
		return "{" + uri + "}" + el.Tag
	}
	return el.Tag
}

func asAnySlice(elements []*etree.Element) []any {
	out := make([]any, len(elements))
	for i, el := range elements {
		out[i] = el
	}
	return out
}
