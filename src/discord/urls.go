package discord

import (
	"regexp"
	"strings"
)

var urlRegex = regexp.MustCompile(`<?https?://[^\s\[\]()<>` + "`" + `]+>?`)

// WrapURLsNoEmbed wraps URLs in angle brackets to prevent Discord embeds.
// URLs inside inline code are left alone.
func WrapURLsNoEmbed(text string) string {
	var b strings.Builder
	for i, part := range strings.Split(text, "`") {
		if i > 0 {
			b.WriteByte('`')
		}
		if i%2 == 1 {
			b.WriteString(part)
			continue
		}
		b.WriteString(urlRegex.ReplaceAllStringFunc(part, func(url string) string {
			if strings.HasPrefix(url, "<") && strings.HasSuffix(url, ">") {
				return url
			}
			url = strings.Trim(url, "<>")
			trimmed := strings.TrimRight(url, ".,;:!?")
			return "<" + trimmed + ">" + url[len(trimmed):]
		}))
	}
	return b.String()
}
