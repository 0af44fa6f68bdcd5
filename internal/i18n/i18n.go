// Package i18n holds the French, English and Arabic message tables.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Supported languages; the first is the fallback.
var Supported = []string{"fr", "en", "ar"}

var tags = []language.Tag{language.French, language.English, language.Arabic}

// Catalog maps language code to key to message.
type Catalog struct {
	messages map[string]map[string]string
	matcher  language.Matcher
	fallback string
}

// Load reads the embedded locale tables. fallback must be one of Supported.
func Load(fallback string) (*Catalog, error) {
	c := &Catalog{
		messages: make(map[string]map[string]string, len(Supported)),
		matcher:  language.NewMatcher(tags),
		fallback: Supported[0],
	}
	for _, lang := range Supported {
		raw, err := localeFS.ReadFile(path.Join("locales", lang+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", lang, err)
		}
		var table map[string]string
		if err := yaml.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("locale %s: %w", lang, err)
		}
		c.messages[lang] = table
	}
	if fallback != "" {
		if !c.Has(fallback) {
			return nil, fmt.Errorf("unsupported default language %q", fallback)
		}
		c.fallback = fallback
	}
	return c, nil
}

// MustLoad is Load for package initialization and tests.
func MustLoad(fallback string) *Catalog {
	c, err := Load(fallback)
	if err != nil {
		panic(err)
	}
	return c
}

// Has reports whether lang is supported.
func (c *Catalog) Has(lang string) bool {
	_, ok := c.messages[lang]
	return ok
}

// Fallback returns the default language.
func (c *Catalog) Fallback() string { return c.fallback }

// T translates key; unknown languages use the fallback and unknown keys are
// returned unchanged.
func (c *Catalog) T(lang, key string) string {
	table, ok := c.messages[lang]
	if !ok {
		table = c.messages[c.fallback]
	}
	if msg, ok := table[key]; ok {
		return msg
	}
	return key
}

// Keys returns the keys of lang's table.
func (c *Catalog) Keys(lang string) []string {
	keys := make([]string, 0, len(c.messages[lang]))
	for k := range c.messages[lang] {
		keys = append(keys, k)
	}
	return keys
}

// Negotiate picks a supported language from an Accept-Language header.
func (c *Catalog) Negotiate(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return c.fallback
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return c.fallback
	}
	_, idx, conf := c.matcher.Match(prefs...)
	if conf == language.No {
		return c.fallback
	}
	return Supported[idx]
}

// Dir returns the text direction of lang.
func Dir(lang string) string {
	if lang == "ar" {
		return "rtl"
	}
	return "ltr"
}

// Translator is a Catalog bound to one language, for templates.
type Translator struct {
	Lang string
	c    *Catalog
}

// For binds the catalog to lang.
func (c *Catalog) For(lang string) Translator {
	if !c.Has(lang) {
		lang = c.fallback
	}
	return Translator{Lang: lang, c: c}
}

func (t Translator) T(key string) string { return t.c.T(t.Lang, key) }

func (t Translator) Dir() string { return Dir(t.Lang) }
