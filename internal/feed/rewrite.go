package feed

import (
	"regexp"
	"strings"
)

var (
	enclosureTagPattern = regexp.MustCompile(`(?is)<enclosure\b[^>]*?/?>`)
	urlAttrPattern      = regexp.MustCompile(`(?is)(url\s*=\s*)("([^"]*)"|'([^']*)')`)
)

// Rewrite replaces enclosure url attributes in a raw feed document. Every
// other byte of the document passes through untouched, so namespaces,
// artwork, chapters, and formatting quirks all survive.
//
// resolve receives the original (unescaped) enclosure URL and returns the
// replacement, or "" to leave the enclosure alone.
func Rewrite(raw []byte, resolve func(enclosureURL string) string) []byte {
	if resolve == nil {
		return raw
	}
	return enclosureTagPattern.ReplaceAllFunc(raw, func(tag []byte) []byte {
		return urlAttrPattern.ReplaceAllFunc(tag, func(attr []byte) []byte {
			groups := urlAttrPattern.FindSubmatch(attr)
			if groups == nil {
				return attr
			}
			quoted := string(groups[2])
			original := unescapeXML(strings.Trim(quoted, `"'`))
			replacement := resolve(original)
			if replacement == "" || replacement == original {
				return attr
			}
			quote := quoted[0:1]
			return []byte(string(groups[1]) + quote + escapeXML(replacement) + quote)
		})
	})
}

func escapeXML(value string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return replacer.Replace(value)
}

func unescapeXML(value string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	)
	return replacer.Replace(value)
}
