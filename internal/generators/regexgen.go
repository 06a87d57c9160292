package generators

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
)

// maxUnboundedRepeat caps how many repetitions an unbounded quantifier
// expands to when generating.
const maxUnboundedRepeat = 10

// generateFromRegex produces a string matching the pattern by walking
// the parsed regex syntax tree. Anchors are stripped; unbounded
// repetitions are capped.
func generateFromRegex(pattern string, ctx *Context) (string, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return "", fmt.Errorf("invalid regex %q: %w", pattern, err)
	}

	var b strings.Builder
	if err := generateRegexNode(re.Simplify(), ctx, &b); err != nil {
		return "", err
	}
	out := b.String()

	// Belt and braces: the output must satisfy the original pattern.
	matcher, err := regexp.Compile(pattern)
	if err != nil {
		return "", err
	}
	if !matcher.MatchString(out) {
		return "", fmt.Errorf("generated value %q does not match %q", out, pattern)
	}
	return out, nil
}

func generateRegexNode(re *syntax.Regexp, ctx *Context, b *strings.Builder) error {
	switch re.Op {
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText, syntax.OpWordBoundary, syntax.OpNoWordBoundary:
		return nil

	case syntax.OpLiteral:
		b.WriteString(string(re.Rune))
		return nil

	case syntax.OpCharClass:
		return writeFromClass(re, ctx, b)

	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteByte(byte('a' + ctx.intN(26)))
		return nil

	case syntax.OpCapture:
		return generateRegexNode(re.Sub[0], ctx, b)

	case syntax.OpConcat:
		for _, sub := range re.Sub {
			if err := generateRegexNode(sub, ctx, b); err != nil {
				return err
			}
		}
		return nil

	case syntax.OpAlternate:
		return generateRegexNode(re.Sub[ctx.intN(len(re.Sub))], ctx, b)

	case syntax.OpStar:
		return repeatNode(re.Sub[0], ctx.intN(maxUnboundedRepeat), ctx, b)

	case syntax.OpPlus:
		return repeatNode(re.Sub[0], 1+ctx.intN(maxUnboundedRepeat-1), ctx, b)

	case syntax.OpQuest:
		if ctx.intN(2) == 1 {
			return generateRegexNode(re.Sub[0], ctx, b)
		}
		return nil

	case syntax.OpRepeat:
		max := re.Max
		if max < 0 {
			max = re.Min + maxUnboundedRepeat
		}
		n := re.Min
		if max > re.Min {
			n += ctx.intN(max - re.Min + 1)
		}
		return repeatNode(re.Sub[0], n, ctx, b)

	default:
		return fmt.Errorf("unsupported regex construct %v", re.Op)
	}
}

func repeatNode(re *syntax.Regexp, n int, ctx *Context, b *strings.Builder) error {
	for i := 0; i < n; i++ {
		if err := generateRegexNode(re, ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func writeFromClass(re *syntax.Regexp, ctx *Context, b *strings.Builder) error {
	// Rune is a flat list of inclusive [lo, hi] pairs.
	if len(re.Rune) == 0 {
		return fmt.Errorf("empty character class")
	}
	total := 0
	for i := 0; i < len(re.Rune); i += 2 {
		total += int(re.Rune[i+1]-re.Rune[i]) + 1
	}
	pick := ctx.intN(total)
	for i := 0; i < len(re.Rune); i += 2 {
		span := int(re.Rune[i+1]-re.Rune[i]) + 1
		if pick < span {
			b.WriteRune(re.Rune[i] + rune(pick))
			return nil
		}
		pick -= span
	}
	return nil
}
