// This file implements the scanner for the `$name(.field)*` reference
// grammar inside string inputs.
//
// Grammar notes:
//   - A reference starts with `$` followed by an identifier
//     ([A-Za-z_][A-Za-z0-9_]*), optionally followed by `.ident` segments.
//   - `$$` escapes a literal dollar sign.
//   - A `$` not followed by an identifier character is kept as literal text.
//   - A trailing `.` after an identifier is literal text, so "cost: $a."
//     references `$a` and keeps the period.

package expr

// ParseString scans a string input and returns its expression form: a
// *Literal when it contains no references, a *Ref when the entire string is
// a single reference, and a *Template otherwise.
func ParseString(s string) Expression {
	parts, refCount := scanParts(s)

	if refCount == 0 {
		// No references at all; the (possibly $$-unescaped) text is literal.
		if len(parts) == 1 {
			return parts[0]
		}
		return &Literal{Value: stringLiteral(s)}
	}

	if len(parts) == 1 && refCount == 1 {
		return parts[0]
	}
	return &Template{Parts: parts}
}

// scanParts splits the string into alternating literal and reference parts.
func scanParts(s string) ([]Expression, int) {
	var parts []Expression
	var refCount int
	var lit []byte

	flushLiteral := func() {
		if len(lit) > 0 {
			parts = append(parts, &Literal{Value: stringLiteral(string(lit))})
			lit = nil
		}
	}

	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' {
			lit = append(lit, c)
			i++
			continue
		}

		// Escaped dollar.
		if i+1 < len(s) && s[i+1] == '$' {
			lit = append(lit, '$')
			i += 2
			continue
		}

		ref, width, ok := scanReference(s[i:])
		if !ok {
			lit = append(lit, c)
			i++
			continue
		}

		flushLiteral()
		parts = append(parts, &Ref{Reference: ref})
		refCount++
		i += width
	}
	flushLiteral()
	return parts, refCount
}

// scanReference attempts to read one reference at the start of s (which
// begins with '$'). It returns the reference, the number of bytes consumed,
// and whether a reference was present.
func scanReference(s string) (Reference, int, bool) {
	i := 1 // skip '$'
	name, w := scanIdent(s[i:])
	if w == 0 {
		return Reference{}, 0, false
	}
	i += w

	var path []string
	for i+1 < len(s) && s[i] == '.' {
		seg, sw := scanIdent(s[i+1:])
		if sw == 0 {
			break
		}
		path = append(path, seg)
		i += 1 + sw
	}
	return Reference{Name: name, Path: path}, i, true
}

// scanIdent reads a leading identifier and returns it with its width.
func scanIdent(s string) (string, int) {
	i := 0
	for i < len(s) && isIdentChar(s[i], i == 0) {
		i++
	}
	return s[:i], i
}

func isIdentChar(c byte, first bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
