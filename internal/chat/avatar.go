package chat

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf16"
)

var avatarPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#96CEB4", "#FECA57",
	"#FF9FF3", "#54A0FF", "#5F27CD", "#00D2D3", "#FF9F43",
}

// FallbackAvatar строит SVG-аватар (цветной круг с первой буквой имени)
// в виде data: URI. Для одного и того же имени результат всегда одинаков.
func FallbackAvatar(displayName string) string {
	// hash = hash*31 + c по UTF-16 единицам с переполнением int32,
	// так же считают браузерные клиенты
	var hash int32
	for _, c := range utf16.Encode([]rune(displayName)) {
		hash = (hash << 5) - hash + int32(c)
	}
	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	color := avatarPalette[abs%int64(len(avatarPalette))]

	initial := ""
	for _, r := range displayName {
		initial = string(unicode.ToUpper(r))
		break
	}

	svg := fmt.Sprintf(
		`<svg width="40" height="40" xmlns="http://www.w3.org/2000/svg">`+
			`<circle cx="20" cy="20" r="20" fill="%s"/>`+
			`<text x="20" y="28" font-family="Arial" font-size="16" font-weight="bold" text-anchor="middle" fill="white">%s</text>`+
			`</svg>`,
		color, escapeXML(initial))

	return "data:image/svg+xml," + strings.ReplaceAll(url.QueryEscape(svg), "+", "%20")
}

func escapeXML(s string) string {
	switch s {
	case "<":
		return "&lt;"
	case ">":
		return "&gt;"
	case "&":
		return "&amp;"
	case `"`:
		return "&quot;"
	}
	return s
}
