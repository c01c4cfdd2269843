package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(r.Keywords) == 0 {
		t.Error("expected keyword patterns")
	}
	if len(r.DocTypes44) != 4 {
		t.Errorf("expected 4 primary document types, got %d", len(r.DocTypes44))
	}
	if len(r.DocTypes223) == 0 {
		t.Error("expected secondary-subsystem document types")
	}
	if len(r.Regions) == 0 {
		t.Error("expected a default region set")
	}
	if ext := r.ContentTypeExts["application/pdf"]; ext != ".pdf" {
		t.Errorf("expected .pdf mapping, got %q", ext)
	}
	if len(r.AttachmentTags) == 0 || len(r.AttachmentAttrs) == 0 {
		t.Error("expected attachment allow-lists")
	}
}

func TestCompileKeywords(t *testing.T) {
	r, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	patterns, err := r.CompileKeywords()
	if err != nil {
		t.Fatalf("CompileKeywords failed: %v", err)
	}
	if len(patterns) != len(r.Keywords) {
		t.Fatalf("expected %d compiled patterns, got %d", len(r.Keywords), len(patterns))
	}

	// Patterns must be case-insensitive.
	if !patterns[0].MatchString("РАЗРАБОТКА") {
		t.Error("expected case-insensitive match on the first keyword stem")
	}
}

func TestLoadFileOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
keywords: ["портал"]
doc_types_44: ["epNotificationEF2020"]
doc_types_223: ["purchaseNotice"]
regions: [77]
attachment_tags: ["url"]
attachment_attrs: ["href"]
name_tags: ["fileName"]
content_type_exts:
  application/pdf: .pdf
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(r.Keywords) != 1 || r.Keywords[0] != "портал" {
		t.Errorf("unexpected keywords: %v", r.Keywords)
	}
	if len(r.Regions) != 1 || r.Regions[0] != 77 {
		t.Errorf("unexpected regions: %v", r.Regions)
	}
}

func TestLoadRejectsEmptyRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(`keywords: []`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected an error for a rules file without keywords")
	}
}
