package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/narratica/narratica/internal/models"
)

const sampleStory = `## **Story Title**: The Brave Fox
## **Story Theme**: Courage
## **Story Characters**:
### Character 1
**name**: Fox
**description**: A small red fox
## **Story Text and Image Prompts**:
### Page 1
**Text**: Once upon a time.
**Image Prompt**: A fox at dawn
`

func setupCLIEnv(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(base, "data"))
	t.Setenv("LOG_DIR", filepath.Join(base, "logs"))
	t.Setenv("LLM_PROVIDER", "mock")
	t.Setenv("STORAGE_BACKEND", "file")
	return base
}

func runCLI(t *testing.T, args []string, stdin string) (string, string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args, stdin)
}

func runCLIContext(t *testing.T, ctx context.Context, args []string, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func TestParseCommandStdin(t *testing.T) {
	out, _, err := runCLI(t, []string{"parse"}, sampleStory)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var doc models.StoryDocument
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if doc.Title != "The Brave Fox" || len(doc.Pages) != 1 || len(doc.Characters) != 1 {
		t.Fatalf("unexpected document: %#v", doc)
	}
}

func TestParseCommandFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "story.md")
	if err := os.WriteFile(path, []byte(sampleStory), 0o644); err != nil {
		t.Fatalf("write sample: %v", err)
	}

	out, _, err := runCLI(t, []string{"parse", path, "--output", "yaml"}, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	var doc models.StoryDocument
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if doc.Pages[0].ImagePrompt != "A fox at dawn" {
		t.Fatalf("unexpected image prompt %q", doc.Pages[0].ImagePrompt)
	}
}

func TestParseCommandErrors(t *testing.T) {
	if _, _, err := runCLI(t, []string{"parse", "--strict"}, "just some words"); err == nil {
		t.Fatal("expected strict parse of empty document to fail")
	}
	if _, _, err := runCLI(t, []string{"parse", "-o", "xml"}, sampleStory); err == nil {
		t.Fatal("expected unsupported output format to fail")
	}
	if _, _, err := runCLI(t, []string{"parse", filepath.Join(t.TempDir(), "missing.md")}, ""); err == nil {
		t.Fatal("expected missing file to fail")
	}
}

func TestGenerateListExport(t *testing.T) {
	setupCLIEnv(t)

	out, errOut, err := runCLI(t, []string{"generate", "--name", "Leo", "--theme", "Curiosity", "--pages", "2", "--user", "leo", "-o", "json"}, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(errOut, "100%") {
		t.Fatalf("expected progress output, got %q", errOut)
	}

	var story models.Story
	if err := json.Unmarshal([]byte(out), &story); err != nil {
		t.Fatalf("decode story: %v", err)
	}
	if story.Document.Title != "Leo and the Curiosity Adventure" || len(story.Document.Pages) != 2 {
		t.Fatalf("unexpected story: %#v", story.Document)
	}

	out, _, err = runCLI(t, []string{"list", "--user", "leo"}, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, story.ID)
	requireContains(t, out, "completed")

	out, _, err = runCLI(t, []string{"list"}, "")
	if err != nil {
		t.Fatalf("list default user: %v", err)
	}
	if strings.Contains(out, story.ID) {
		t.Fatalf("story leaked to another user: %s", out)
	}

	out, _, err = runCLI(t, []string{"export", story.ID, "--user", "leo", "--format", "markdown"}, "")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	requireContains(t, out, "# Leo and the Curiosity Adventure")
	requireContains(t, out, "## Page 2")

	target := filepath.Join(t.TempDir(), "story.txt")
	if _, _, err := runCLI(t, []string{"export", story.ID, "--user", "leo", "-f", "txt", "--out", target}, ""); err != nil {
		t.Fatalf("export to file: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	requireContains(t, string(data), "[Page 1]")
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	setupCLIEnv(t)

	_, _, err := runCLI(t, []string{"generate", "--theme", "Courage", "-q"}, "")
	if err == nil || !strings.Contains(err.Error(), "child_name") {
		t.Fatalf("expected child_name validation error, got %v", err)
	}
}

func TestExportUnknownStory(t *testing.T) {
	setupCLIEnv(t)

	if _, _, err := runCLI(t, []string{"export", "does-not-exist"}, ""); err == nil {
		t.Fatal("expected export of unknown story to fail")
	}
}

func TestGenerateVerboseKeepsStdoutClean(t *testing.T) {
	setupCLIEnv(t)

	out, errOut, err := runCLI(t, []string{"generate", "--name", "Ivy", "--theme", "Hope", "--pages", "1", "-q", "-o", "json", "--verbose"}, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var story models.Story
	if err := json.Unmarshal([]byte(out), &story); err != nil {
		t.Fatalf("stdout is not pure JSON: %v\n%s", err, out)
	}
	requireContains(t, errOut, "Application initialized")
}

func TestGenerateStopsWhenCancelled(t *testing.T) {
	setupCLIEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := runCLIContext(t, ctx, []string{"generate", "--name", "Ivy", "--theme", "Hope", "-q"}, "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunAndCloseJoinsErrors(t *testing.T) {
	closeErr := errors.New("close failed")
	runErr := errors.New("run failed")

	err := runAndClose(nil, func() error { return closeErr })
	if !errors.Is(err, closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	err = runAndClose(runErr, func() error { return closeErr })
	if !errors.Is(err, runErr) || !errors.Is(err, closeErr) {
		t.Fatalf("expected both errors, got %v", err)
	}
	if err := runAndClose(nil, func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}
