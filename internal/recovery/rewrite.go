package recovery

import (
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
)

var codeFence = regexp.MustCompile("(?i)```(?:json)?")

// ExtractObject returns the greedy span from the first '{' to the last '}',
// or s unchanged when there is no such span.
func ExtractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// Clean applies the cleaning rewrites in their fixed order.
func Clean(s string) string {
	s = StripCodeFences(s)
	s = QuoteBareKeys(s)
	s = NormalizeQuotes(s)
	s = RemoveTrailingCommas(s)
	s = UnescapeArtifacts(s)
	return s
}

// StripCodeFences removes ``` and ```json markers.
func StripCodeFences(s string) string {
	return codeFence.ReplaceAllString(s, "")
}

// QuoteBareKeys double-quotes identifier-like object keys such as
// {summary: "x"}. Text inside single- or double-quoted strings is untouched.
func QuoteBareKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	var quote byte
	var last byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			b.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(s):
				i++
				b.WriteByte(s[i])
			case c == quote:
				quote = 0
				last = c
			}
			continue
		}

		if (last == '{' || last == ',') && isKeyByte(c) {
			j := i
			for j < len(s) && isKeyByte(s[j]) {
				j++
			}
			k := j
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k < len(s) && s[k] == ':' {
				b.WriteByte('"')
				b.WriteString(s[i:j])
				b.WriteByte('"')
			} else {
				b.WriteString(s[i:j])
			}
			last = s[j-1]
			i = j - 1
			continue
		}

		b.WriteByte(c)
		if c == '"' || c == '\'' {
			quote = c
		}
		if !isSpace(c) {
			last = c
		}
	}
	return b.String()
}

// NormalizeQuotes rewrites single-quoted strings as double-quoted ones.
// Apostrophes inside double-quoted strings are kept, double quotes inside a
// single-quoted string are escaped and \' becomes a plain apostrophe.
func NormalizeQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)

	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch quote {
		case 0:
			switch c {
			case '"':
				quote = '"'
				b.WriteByte(c)
			case '\'':
				quote = '\''
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		case '"':
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
			} else if c == '"' {
				quote = 0
			}
		case '\'':
			switch {
			case c == '\\' && i+1 < len(s) && s[i+1] == '\'':
				i++
				b.WriteByte('\'')
			case c == '\\' && i+1 < len(s):
				i++
				b.WriteByte(c)
				b.WriteByte(s[i])
			case c == '"':
				b.WriteString(`\"`)
			case c == '\'':
				quote = 0
				b.WriteByte('"')
			default:
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

// RemoveTrailingCommas drops commas directly before '}' or ']' and strips
// // and /* */ comments.
func RemoveTrailingCommas(s string) string {
	return string(jsonc.ToJSON([]byte(s)))
}

// UnescapeArtifacts turns \' into an apostrophe. When the text is a doubly
// escaped payload, meaning every double quote is backslash-escaped, the \",
// \n and \t sequences are unescaped as well.
func UnescapeArtifacts(s string) string {
	s = strings.ReplaceAll(s, `\'`, "'")
	if !strings.Contains(s, `\"`) || hasBareQuote(s) {
		return s
	}
	return strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t").Replace(s)
}

func hasBareQuote(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '"' && (i == 0 || s[i-1] != '\\') {
			return true
		}
	}
	return false
}

func isKeyByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
