package scripts

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestExtractSingleBlock(t *testing.T) {
	doc := `# Deploy

Some prose.

` + "```bash {\"id\": \"deploy\", \"title\": \"Deploy to staging\"}" + `
echo deploying
./deploy.sh
` + "```" + `

More prose.`

	got := extractScripts("deploy.md", doc)
	if len(got) != 1 {
		t.Fatalf("got %d scripts, want 1", len(got))
	}
	s := got[0]
	if s.ID != "deploy" {
		t.Errorf("ID = %q, want deploy", s.ID)
	}
	if s.Title != "Deploy to staging" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.Language != "bash" {
		t.Errorf("Language = %q, want bash", s.Language)
	}
	if s.Code != "echo deploying\n./deploy.sh" {
		t.Errorf("Code = %q", s.Code)
	}
	if s.LineStart <= 0 || s.LineEnd <= s.LineStart {
		t.Errorf("line range = %d..%d", s.LineStart, s.LineEnd)
	}
}

func TestExtractSkipsOtherLanguages(t *testing.T) {
	doc := "```python\nprint('no')\n```\n\n```sh\necho yes\n```\n"

	got := extractScripts("mixed.md", doc)
	if len(got) != 1 {
		t.Fatalf("got %d scripts, want 1", len(got))
	}
	if got[0].Language != "sh" || got[0].Code != "echo yes" {
		t.Errorf("got %+v", got[0])
	}
}

func TestExtractFallbackID(t *testing.T) {
	doc := "```bash\necho anonymous\n```\n"

	got := extractScripts("notes.md", doc)
	if len(got) != 1 {
		t.Fatalf("got %d scripts, want 1", len(got))
	}
	if got[0].ID != "notes.md:1" {
		t.Errorf("ID = %q, want notes.md:1", got[0].ID)
	}
}

func TestExtractEmptyBlockDropped(t *testing.T) {
	doc := "```bash\n\n```\n"
	if got := extractScripts("empty.md", doc); len(got) != 0 {
		t.Errorf("got %d scripts, want 0", len(got))
	}
}

func TestExtractMalformedMetadata(t *testing.T) {
	doc := "```bash {not json\necho still works\n```\n"

	got := extractScripts("bad.md", doc)
	if len(got) != 1 {
		t.Fatalf("got %d scripts, want 1", len(got))
	}
	if got[0].Code != "echo still works" {
		t.Errorf("Code = %q", got[0].Code)
	}
}

func TestCatalogLoadAndGet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "```bash {\"id\": \"one\"}\necho one\n```\n")
	writeFile(t, dir, "b.md", "```sh {\"id\": \"two\"}\necho two\n```\n")

	c, err := NewCatalog(dir, discardLogger())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("List len = %d, want 2", len(list))
	}
	if list[0].ID != "one" || list[1].ID != "two" {
		t.Errorf("order = [%s %s], want [one two]", list[0].ID, list[1].ID)
	}

	s, ok := c.Get("two")
	if !ok {
		t.Fatal("Get(two) not found")
	}
	if s.Code != "echo two" {
		t.Errorf("Code = %q", s.Code)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) found a script")
	}
}

func TestCatalogDuplicateIDKeepsFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "```bash {\"id\": \"dup\"}\necho first\n```\n")
	writeFile(t, dir, "b.md", "```bash {\"id\": \"dup\"}\necho second\n```\n")

	c, err := NewCatalog(dir, discardLogger())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}

	if len(c.List()) != 1 {
		t.Fatalf("List len = %d, want 1", len(c.List()))
	}
	s, _ := c.Get("dup")
	if s.Code != "echo first" {
		t.Errorf("Code = %q, want the first occurrence", s.Code)
	}
}
