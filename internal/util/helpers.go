package util

import (
	"strings"
	"unicode"

	"github.com/fatih/color"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	Red        = color.New(color.FgRed).SprintFunc()
	RedBold    = color.New(color.FgRed, color.Bold).SprintFunc()
	Green      = color.New(color.FgGreen).SprintFunc()
	GreenBold  = color.New(color.FgGreen, color.Bold).SprintFunc()
	Yellow     = color.New(color.FgYellow).SprintFunc()
	YellowBold = color.New(color.FgYellow, color.Bold).SprintFunc()
	Blue       = color.New(color.FgBlue).SprintFunc()
	BlueBold   = color.New(color.FgBlue, color.Bold).SprintFunc()
	Purple     = color.New(color.FgMagenta).SprintFunc()
	Cyan       = color.New(color.FgCyan).SprintFunc()
	CyanBold   = color.New(color.FgCyan, color.Bold).SprintFunc()
	Gray       = color.New(color.FgHiBlack).SprintFunc()
)

func Iif(condition bool, trueVal, falseVal string) string {
	if condition {
		return trueVal
	}
	return falseVal
}

func GetOrdinalSuffix(day int) string {
	if day <= 0 {
		return ""
	}
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// Slugify lowercases s, folds accents to ASCII and joins the remaining
// alphanumeric runs with single dashes. Apostrophes are dropped so
// "Kino's Journey" becomes "kinos-journey".
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == '\'' || r == '’':
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	return b.String()
}
