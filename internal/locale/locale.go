// Package locale holds the few localized strings the notification core needs
// and maps OS locales onto the supported languages.
package locale

import (
	"os"
	"strings"

	"github.com/vdavid/vmail/desktop/internal/models"
	"golang.org/x/text/language"
)

// DefaultLanguage is used when nothing better is known.
const DefaultLanguage = models.LanguageENUS

// Message keys.
const (
	NewEmailReceivedTitle = "new_email_received_title"
	NewEmailReceivedBody  = "new_email_received_body"
)

var messages = map[string]map[models.Language]string{
	NewEmailReceivedTitle: {
		models.LanguageENUS: "New email received",
	},
	NewEmailReceivedBody: {
		models.LanguageENUS: "You have new emails in your inbox.",
	},
}

// supported pairs each language with its RFC 5646 tag, in matcher order.
var supported = []struct {
	lang models.Language
	tag  language.Tag
}{
	{models.LanguageENUS, language.AmericanEnglish},
}

var matcher = func() language.Matcher {
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		tags = append(tags, s.tag)
	}
	return language.NewMatcher(tags)
}()

// Get returns the message for key in lang, falling back to DefaultLanguage.
// Unknown keys return the key itself.
func Get(key string, lang models.Language) string {
	byLang, ok := messages[key]
	if !ok {
		return key
	}
	if msg, ok := byLang[lang]; ok {
		return msg
	}
	return byLang[DefaultLanguage]
}

// Resolve turns LanguageSystem into a concrete language using the OS locale.
func Resolve(lang models.Language) models.Language {
	if lang != models.LanguageSystem {
		return lang
	}
	return ResolveSystem(SystemLocale())
}

// ResolveSystem maps an OS locale such as "en_GB.UTF-8" to the closest
// supported language.
func ResolveSystem(osLocale string) models.Language {
	name, _, _ := strings.Cut(osLocale, ".")
	name = strings.ReplaceAll(name, "_", "-")
	if name == "" || name == "C" || name == "POSIX" {
		return DefaultLanguage
	}

	tag, err := language.Parse(name)
	if err != nil {
		return DefaultLanguage
	}

	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return DefaultLanguage
	}
	return supported[index].lang
}

// RFC5646 returns the language tag for lang, e.g. "en-US".
func RFC5646(lang models.Language) string {
	lang = Resolve(lang)
	for _, s := range supported {
		if s.lang == lang {
			return s.tag.String()
		}
	}
	return language.AmericanEnglish.String()
}

// SystemLocale reads the OS locale from the usual environment variables.
func SystemLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}
