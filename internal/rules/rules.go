package rules

import (
	"embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed config/rules.yaml
var rulesYAML embed.FS

// Rules holds the versionable harvesting heuristics: keyword patterns,
// attachment-link allow-lists, the content-type to extension table, the
// document-type lists per subsystem and the default region set. Keeping them
// in data rather than code lets the allow-lists be tightened without touching
// control flow.
type Rules struct {
	Keywords        []string          `yaml:"keywords"`
	AttachmentTags  []string          `yaml:"attachment_tags"`
	AttachmentAttrs []string          `yaml:"attachment_attrs"`
	NameTags        []string          `yaml:"name_tags"`
	ContentTypeExts map[string]string `yaml:"content_type_exts"`
	DocTypes44      []string          `yaml:"doc_types_44"`
	DocTypes223     []string          `yaml:"doc_types_223"`
	Regions         []int             `yaml:"regions"`
}

// Load reads the embedded rules.yaml, or the file at path when one is given.
// Environment variables inside the YAML are expanded.
func Load(path string) (*Rules, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = rulesYAML.ReadFile("config/rules.yaml")
	}
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	var r Rules
	if err := yaml.Unmarshal([]byte(expanded), &r); err != nil {
		return nil, err
	}

	if len(r.Keywords) == 0 {
		return nil, fmt.Errorf("rules: no keyword patterns configured")
	}
	if len(r.DocTypes44) == 0 {
		return nil, fmt.Errorf("rules: no document types configured")
	}

	return &r, nil
}

// CompileKeywords compiles the keyword patterns case-insensitively, once at
// startup. A pattern that fails to compile is a configuration error.
func (r *Rules) CompileKeywords() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(r.Keywords))
	for _, p := range r.Keywords {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("rules: keyword pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
