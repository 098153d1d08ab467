package extract

import (
	"strings"
	"testing"

	"github.com/mharlow/annex/internal/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want models.FileClass
	}{
		{"report.txt", models.ClassSourceDocument},
		{"data.csv", models.ClassSourceDocument},
		{"report.card.txt", models.ClassCompositeCard},
		{"report.entity.txt", models.ClassMetadataSidecar},
		{"report.relate.txt", models.ClassMetadataSidecar},
		{"report.attrib.txt", models.ClassMetadataSidecar},
		{"report.comment.txt", models.ClassMetadataSidecar},
		{"report.kv.txt", models.ClassMetadataSidecar},
		{"image.png", models.ClassUnknown},
		{"noext", models.ClassUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.name); got != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.name, got, c.want)
		}
	}
}

func TestExtract_CompositeCard(t *testing.T) {
	raw := []byte(`UUID: should-not-leak
source_file: "report.csv"
=== ORIGINAL CONTENT START ===
Hello [[person:Jane]]
=== ORIGINAL CONTENT END ===
=== USER ADDED START ===
analyst note
=== USER ADDED END ===
`)
	cc := Extract(raw, "report.card.txt")
	if cc.Content != "Hello [[person:Jane]]" {
		t.Errorf("content = %q", cc.Content)
	}
	if cc.UserAddedContent != "analyst note" {
		t.Errorf("user added = %q", cc.UserAddedContent)
	}
	if cc.SourceType != SourceCSV || cc.OriginalFilename != "report.csv" {
		t.Errorf("source = %q %q", cc.SourceType, cc.OriginalFilename)
	}
	if !cc.HasMetadata {
		t.Error("cards always carry metadata")
	}
	if len(cc.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %+v", cc.Diagnostics)
	}
	if ok, tripped := Validate(cc.Content); !ok {
		t.Errorf("well-delimited extraction must validate, tripped %v", tripped)
	}
}

func TestExtract_MissingDelimitersFallsBack(t *testing.T) {
	raw := []byte("legacy card with no markers\njust text")
	cc := Extract(raw, "old.card.txt")
	if cc.Content != "legacy card with no markers\njust text" {
		t.Errorf("content = %q", cc.Content)
	}
	if len(cc.Diagnostics) != 1 || cc.Diagnostics[0].Code != CodeMissingDelimiters {
		t.Errorf("diagnostics = %+v", cc.Diagnostics)
	}
	if cc.Diagnostics[0].Severity != SeverityWarning {
		t.Errorf("severity = %q", cc.Diagnostics[0].Severity)
	}
}

func TestExtract_SourceDocumentVerbatim(t *testing.T) {
	cc := Extract([]byte("  raw body  \n"), "notes.txt")
	if cc.Content != "raw body" {
		t.Errorf("content = %q", cc.Content)
	}
	if cc.HasMetadata {
		t.Error("source documents carry no metadata")
	}
	if cc.SourceType != SourceText {
		t.Errorf("source type = %q", cc.SourceType)
	}
}

func TestExtract_SidecarFailsClosed(t *testing.T) {
	cc := Extract([]byte("uuid: abc\nsecret: stuff"), "report.entity.txt")
	if cc.Content != "" {
		t.Errorf("sidecar content must be empty, got %q", cc.Content)
	}
	if len(cc.Diagnostics) != 1 || cc.Diagnostics[0].Code != CodeSidecarExtraction {
		t.Errorf("diagnostics = %+v", cc.Diagnostics)
	}
}

func TestExtract_UnknownEmpty(t *testing.T) {
	cc := Extract([]byte("binary junk"), "image.png")
	if cc.Content != "" || cc.SourceType != "" {
		t.Errorf("unknown extraction = %+v", cc)
	}
	if len(cc.Diagnostics) != 1 || cc.Diagnostics[0].Code != CodeUnknownFileType {
		t.Errorf("diagnostics = %+v", cc.Diagnostics)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		content string
		ok      bool
		checks  []string
	}{
		{"plain document text", true, nil},
		{"leaked 12345678-abcd-ef01-2345-6789abcdef01 id", false, []string{CheckUUID}},
		{"created_at: 2024-01-01", false, []string{CheckYAMLLine}},
		{"saw it at 2024-01-01T10:30:00", false, []string{CheckTimestamp}},
	}
	for _, c := range cases {
		ok, tripped := Validate(c.content)
		if ok != c.ok {
			t.Errorf("Validate(%q) ok = %v, want %v", c.content, ok, c.ok)
		}
		if len(tripped) != len(c.checks) {
			t.Errorf("Validate(%q) tripped = %v, want %v", c.content, tripped, c.checks)
			continue
		}
		for i := range tripped {
			if tripped[i] != c.checks[i] {
				t.Errorf("Validate(%q) tripped = %v, want %v", c.content, tripped, c.checks)
			}
		}
	}
}

func TestStripInlineTags(t *testing.T) {
	in := "Seen [person:Jane](11111111-2222-3333-4444-555555555555) at the dock"
	want := "Seen Jane at the dock"
	if got := StripInlineTags(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	// No tags: verbatim.
	if got := StripInlineTags("untouched"); got != "untouched" {
		t.Errorf("got %q", got)
	}
}

func TestCompareIntegrity_Valid(t *testing.T) {
	card := "The  quick [person:fox](11111111-2222-3333-4444-555555555555) jumps"
	orig := "The quick fox jumps"
	res := CompareIntegrity(card, orig)
	if !res.IsValid {
		t.Errorf("expected valid, got %+v", res)
	}
}

func TestCompareIntegrity_ReportsBothDirections(t *testing.T) {
	res := CompareIntegrity("alpha beta gamma", "alpha beta delta delta")
	if res.IsValid {
		t.Fatal("expected mismatch")
	}
	if len(res.MissingText) != 1 || res.MissingText[0] != "delta" {
		t.Errorf("missing = %v", res.MissingText)
	}
	if len(res.ExtraText) != 1 || res.ExtraText[0] != "gamma" {
		t.Errorf("extra = %v", res.ExtraText)
	}
}

func TestCompareIntegrity_ShortTokensIgnored(t *testing.T) {
	res := CompareIntegrity("alpha of x", "alpha")
	if res.IsValid {
		t.Fatal("expected mismatch")
	}
	for _, tok := range res.ExtraText {
		if len(tok) < 3 {
			t.Errorf("short token %q leaked into diff", tok)
		}
	}
}

func TestExtract_OriginalContentPreservesWikiLinks(t *testing.T) {
	raw := "=== ORIGINAL CONTENT START ===\nHello [[person:Jane]]\n=== ORIGINAL CONTENT END ==="
	cc := Extract([]byte(raw), "x.card.txt")
	if cc.Content != "Hello [[person:Jane]]" {
		t.Errorf("content = %q", cc.Content)
	}
	if !strings.Contains(cc.Content, "[[person:Jane]]") {
		t.Error("wiki-link grammar must survive extraction")
	}
}
