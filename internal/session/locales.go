package session

import (
	"strings"

	"golang.org/x/text/language"
)

// Locales picks a session locale from a fixed supported set.
type Locales struct {
	supported []language.Tag
	names     []string
	matcher   language.Matcher
	fallback  string
}

// NewLocales builds the set. The default locale is always supported; it is
// added when missing from supported.
func NewLocales(supported []string, fallback string) *Locales {
	fallback = normalize(fallback)
	if fallback == "" {
		fallback = "en"
	}
	l := &Locales{fallback: fallback}
	seen := map[string]bool{}
	add := func(name string) {
		name = normalize(name)
		if name == "" || seen[name] {
			return
		}
		tag, err := language.Parse(name)
		if err != nil {
			return
		}
		seen[name] = true
		l.supported = append(l.supported, tag)
		l.names = append(l.names, name)
	}
	// the first tag is the matcher's fallback
	add(fallback)
	for _, s := range supported {
		add(s)
	}
	l.matcher = language.NewMatcher(l.supported)
	return l
}

func (l *Locales) Default() string { return l.fallback }

func (l *Locales) Supported() []string {
	return append([]string(nil), l.names...)
}

// Exact returns requested when it is one of the supported locales, the
// default otherwise. Guest identities are named after the result.
func (l *Locales) Exact(requested string) string {
	requested = normalize(requested)
	for _, name := range l.names {
		if name == requested {
			return name
		}
	}
	return l.fallback
}

// Resolve maps a stored preference such as "de-CH" onto the closest supported
// locale, falling back to the default when nothing is close.
func (l *Locales) Resolve(preference string) string {
	preference = normalize(preference)
	if preference == "" {
		return l.fallback
	}
	tag, err := language.Parse(preference)
	if err != nil {
		return l.fallback
	}
	_, idx, conf := l.matcher.Match(tag)
	if conf == language.No {
		return l.fallback
	}
	return l.names[idx]
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}
