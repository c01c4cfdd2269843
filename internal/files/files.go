// Package files derives filesystem-safe names for downloaded artifacts.
// The inference chain is content-disposition header, then URL, then a
// content-type extension table, with every result passing through Sanitize.
package files

import (
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

const maxNameLen = 180

var (
	unsafeChars = regexp.MustCompile(`[/\\?%*:|"<>]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// Sanitize makes name safe for every filesystem the output tree may land on:
// reserved characters become underscores, whitespace runs collapse to a
// single space, the result is trimmed, capped at 180 characters and stripped
// of trailing dots, underscores and spaces.
func Sanitize(name string) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	s = strings.TrimSpace(spaceRuns.ReplaceAllString(s, " "))
	if runes := []rune(s); len(runes) > maxNameLen {
		s = string(runes[:maxNameLen])
	}
	return strings.TrimRight(s, "._ ")
}

// FromURL guesses a filename from the URL path, falling back to
// filename/fileName/name query parameters when the path basename carries no
// extension. Returns "file" when nothing usable is found.
func FromURL(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "file"
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = ""
	}

	if path.Ext(name) == "" && u.RawQuery != "" {
		query := u.Query()
		for _, key := range []string{"filename", "fileName", "name"} {
			if v := strings.TrimSpace(query.Get(key)); v != "" {
				name = v
				break
			}
		}
	}

	name = Sanitize(name)
	if name == "" {
		name = "file"
	}
	return name
}

// FromDisposition extracts and sanitizes the filename from a
// Content-Disposition header. The RFC 5987 filename* form is preferred over
// the plain filename parameter. Returns "" when the header carries no name.
func FromDisposition(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}

	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			if unescaped, err := url.QueryUnescape(name); err == nil {
				name = unescaped
			}
			return Sanitize(name)
		}
	}

	// Some upstream servers emit headers mime.ParseMediaType rejects.
	for _, re := range dispositionFallbacks {
		if m := re.FindStringSubmatch(header); m != nil {
			name := strings.Trim(strings.TrimSpace(m[1]), `"`)
			if unescaped, err := url.QueryUnescape(name); err == nil {
				name = unescaped
			}
			return Sanitize(name)
		}
	}

	return ""
}

var dispositionFallbacks = []*regexp.Regexp{
	regexp.MustCompile(`(?i)filename\*=(?:UTF-8''|)([^;]+)`),
	regexp.MustCompile(`(?i)filename="?([^";]+)"?`),
}

// WithExt appends the extension mapped from contentType when name has none.
// Unknown content types leave the name untouched.
func WithExt(name, contentType string, exts map[string]string) string {
	if path.Ext(name) != "" || contentType == "" {
		return name
	}

	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	for k, ext := range exts {
		if strings.ToLower(k) == ct {
			return name + ext
		}
	}
	return name
}
