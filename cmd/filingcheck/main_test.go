package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	llmpkg "github.com/dshills/filingcheck/internal/llm"
	"github.com/dshills/filingcheck/internal/schema"
)

// testdataDir is the root of the testdata directory.
const testdataDir = "../../testdata"

// setupMockAnthropicServer starts a test HTTP server that returns the given
// response body for every POST request and points the Anthropic client at it.
func setupMockAnthropicServer(t *testing.T, responseBody []byte) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(responseBody) //nolint:errcheck
	}))
	original := llmpkg.AnthropicAPIURL()
	llmpkg.SetAnthropicAPIURL(srv.URL)
	t.Cleanup(func() {
		srv.Close()
		llmpkg.SetAnthropicAPIURL(original)
	})
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testdataDir, "llm", name))
	if err != nil {
		t.Fatalf("readFixture %s: %v", name, err)
	}
	return data
}

// filings returns paths to files in testdata/filings/.
func filings(names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(testdataDir, "filings", n)
	}
	return out
}

var incorporation = filings("articles.txt", "board_resolution.txt")

// testFlags returns reviewFlags populated with safe defaults for testing.
func testFlags(t *testing.T) reviewFlags {
	t.Helper()
	t.Setenv("FILINGCHECK_MODEL", "")
	return reviewFlags{
		commonFlags: commonFlags{
			corpus: filepath.Join(testdataDir, "corpus"),
		},
		format:            "json",
		severityThreshold: "low",
		out:               filepath.Join(t.TempDir(), "report.json"),
	}
}

func readReport(t *testing.T, path string) schema.Report {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	var report schema.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, data)
	}
	return report
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitErr
	if !errors.As(err, &ee) {
		t.Fatalf("expected exitErr, got %T: %v", err, err)
	}
	return ee.code
}

// --- Tests ---

func TestRunReview_Incorporation(t *testing.T) {
	flags := testFlags(t)
	if err := runReview(context.Background(), incorporation, flags); err != nil {
		t.Fatalf("runReview: %v", err)
	}
	report := readReport(t, flags.out)

	if report.Tool != "filingcheck" || report.Version != version {
		t.Errorf("tool/version = %s/%s", report.Tool, report.Version)
	}
	if report.Process != "company_incorporation" {
		t.Errorf("process = %s, want company_incorporation", report.Process)
	}
	if report.Summary.Verdict != schema.VerdictNonCompliant {
		t.Errorf("verdict = %s, want NON_COMPLIANT", report.Summary.Verdict)
	}
	if len(report.Checklist.Missing) != 1 || report.Checklist.Missing[0] != schema.DocumentTypeRegistrationForm {
		t.Errorf("missing = %v, want [registration_form]", report.Checklist.Missing)
	}
	if len(report.Degraded) != 0 {
		t.Errorf("unexpected degraded components: %v", report.Degraded)
	}
	found := false
	for _, f := range report.RedFlags {
		if f.RuleID == "wrong_jurisdiction" && f.Document == "articles.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("wrong_jurisdiction flag not reported: %+v", report.RedFlags)
	}
	for _, s := range report.Suggestions {
		if s.Grounded != (len(s.Citations) > 0) {
			t.Errorf("suggestion for %s: grounded=%v with %d citations", s.Flag.RuleID, s.Grounded, len(s.Citations))
		}
	}
}

func TestRunReview_CompliantRelocation(t *testing.T) {
	flags := testFlags(t)
	flags.failOn = "COMPLIANT_WITH_GAPS"
	err := runReview(context.Background(), filings("board_relocation.txt", "change_notice.txt"), flags)
	if err != nil {
		t.Fatalf("expected no error for a compliant bundle, got: %v", err)
	}
	report := readReport(t, flags.out)
	if report.Process != "change_of_registered_address" {
		t.Errorf("process = %s", report.Process)
	}
	if report.Summary.Verdict != schema.VerdictCompliant || report.Summary.Score != 100 {
		t.Errorf("verdict = %s score = %d, want COMPLIANT 100", report.Summary.Verdict, report.Summary.Score)
	}
}

func TestRunReview_MarkdownToStdout(t *testing.T) {
	flags := testFlags(t)
	flags.format = "md"
	flags.out = ""
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })

	if err := runReview(context.Background(), incorporation, flags); err != nil {
		t.Fatalf("runReview: %v", err)
	}
	s := buf.String()
	if !strings.Contains(s, "# Filing Review Report") {
		t.Errorf("markdown missing header")
	}
	if !strings.Contains(s, "NON_COMPLIANT") {
		t.Errorf("markdown missing verdict")
	}
	if !strings.HasSuffix(s, "\n") {
		t.Errorf("output must end with a newline")
	}
}

func TestRunReview_FailOn(t *testing.T) {
	flags := testFlags(t)
	flags.failOn = "NON_COMPLIANT"
	err := runReview(context.Background(), incorporation, flags)
	if err == nil {
		t.Fatal("expected an error for --fail-on NON_COMPLIANT with a NON_COMPLIANT verdict")
	}
	if code := exitCode(t, err); code != 2 {
		t.Errorf("expected exit code 2, got %d", code)
	}
	// The report is still written before the threshold is evaluated.
	if _, err := os.Stat(flags.out); err != nil {
		t.Errorf("report not written: %v", err)
	}
}

func TestRunReview_SeverityThreshold_FiltersOutput(t *testing.T) {
	flags := testFlags(t)
	flags.severityThreshold = "high"
	if err := runReview(context.Background(), incorporation, flags); err != nil {
		t.Fatalf("runReview: %v", err)
	}
	report := readReport(t, flags.out)
	for _, f := range report.RedFlags {
		if f.Severity != schema.SeverityHigh {
			t.Errorf("flag %s has severity %s, expected only high", f.RuleID, f.Severity)
		}
	}
	for _, s := range report.Suggestions {
		if s.Flag.Severity != schema.SeverityHigh {
			t.Errorf("suggestion for %s kept below threshold", s.Flag.RuleID)
		}
	}
	// Summary counts still reflect all flags (pre-filter).
	if report.Summary.MediumCount == 0 {
		t.Errorf("summary lost the medium superseded_regulation flag")
	}
}

func TestRunReview_Artifacts(t *testing.T) {
	flags := testFlags(t)
	tmp := t.TempDir()
	flags.outDir = filepath.Join(tmp, "reviewed")
	flags.patchOut = filepath.Join(tmp, "clauses.patch")
	flags.previewDir = filepath.Join(tmp, "preview")
	flags.metricsOut = filepath.Join(tmp, "filingcheck.prom")

	if err := runReview(context.Background(), incorporation, flags); err != nil {
		t.Fatalf("runReview: %v", err)
	}

	reviewed, err := os.ReadFile(filepath.Join(flags.outDir, "articles_reviewed.txt"))
	if err != nil {
		t.Fatalf("reviewed copy: %v", err)
	}
	if !strings.Contains(string(reviewed), "[REVIEW NOTE - HIGH]") {
		t.Errorf("reviewed copy has no high review note:\n%s", reviewed)
	}

	patchText, err := os.ReadFile(flags.patchOut)
	if err != nil {
		t.Fatalf("patch file: %v", err)
	}
	if !strings.Contains(string(patchText), "# patch for wrong_jurisdiction in articles.txt") {
		t.Errorf("patch file missing jurisdiction hunk:\n%s", patchText)
	}

	preview, err := os.ReadFile(filepath.Join(flags.previewDir, "articles.rewritten.txt"))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(string(preview), "jurisdiction of the ADGM Courts") {
		t.Errorf("preview missing rewritten clause:\n%s", preview)
	}

	prom, err := os.ReadFile(flags.metricsOut)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(prom), "filingcheck_documents_total") {
		t.Errorf("metrics file missing documents counter")
	}
}

func TestRunReview_LLMComposer(t *testing.T) {
	flags := testFlags(t)
	t.Setenv("FILINGCHECK_MODEL", "anthropic:claude-sonnet-4-6")
	t.Setenv("ANTHROPIC_API_KEY", "test-key-for-integration-tests")
	setupMockAnthropicServer(t, readFixture(t, "anthropic_response.json"))
	flags.composer = "llm"

	if err := runReview(context.Background(), incorporation, flags); err != nil {
		t.Fatalf("runReview: %v", err)
	}
	report := readReport(t, flags.out)
	if len(report.Suggestions) == 0 {
		t.Fatal("no suggestions")
	}
	for _, s := range report.Suggestions {
		if s.Composer != "llm:anthropic:claude-sonnet-4-6" {
			t.Errorf("suggestion for %s composed by %s", s.Flag.RuleID, s.Composer)
		}
		if !strings.Contains(s.Text, "ADGM framework") {
			t.Errorf("suggestion text not from the model: %q", s.Text)
		}
	}
}

func TestRunReview_Offline_IgnoresLLMComposer(t *testing.T) {
	flags := testFlags(t)
	flags.composer = "llm"
	flags.offline = true
	if err := runReview(context.Background(), incorporation, flags); err != nil {
		t.Fatalf("runReview: %v", err)
	}
	if report := readReport(t, flags.out); report.Meta.Model != "template" {
		t.Errorf("composer = %s, want template", report.Meta.Model)
	}
}

func TestRunReview_ProviderSetup_ExitsCode4(t *testing.T) {
	flags := testFlags(t)
	t.Setenv("FILINGCHECK_MODEL", "anthropic:claude-sonnet-4-6")
	t.Setenv("ANTHROPIC_API_KEY", "")
	flags.composer = "llm"
	err := runReview(context.Background(), incorporation, flags)
	if code := exitCode(t, err); code != 4 {
		t.Errorf("expected exit code 4, got %d", code)
	}
}

func TestRunReview_ConfigErrors_ExitCode3(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*reviewFlags)
	}{
		{"format", func(f *reviewFlags) { f.format = "xml" }},
		{"fail-on", func(f *reviewFlags) { f.failOn = "INVALID" }},
		{"severity", func(f *reviewFlags) { f.severityThreshold = "critical" }},
		{"process", func(f *reviewFlags) { f.process = "liquidation" }},
		{"config", func(f *reviewFlags) { f.configPath = filepath.Join(testdataDir, "config", "missing.toml") }},
		{"llm without model", func(f *reviewFlags) { f.composer = "llm" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := testFlags(t)
			tt.modify(&flags)
			err := runReview(context.Background(), incorporation, flags)
			if code := exitCode(t, err); code != 3 {
				t.Errorf("expected exit code 3, got %d (%v)", code, err)
			}
		})
	}
}

func TestRunReview_ConfigFile(t *testing.T) {
	flags := testFlags(t)
	flags.corpus = ""
	flags.configPath = filepath.Join(testdataDir, "config", "filingcheck.toml")
	if err := runReview(context.Background(), incorporation, flags); err != nil {
		t.Fatalf("runReview: %v", err)
	}
	report := readReport(t, flags.out)
	if len(report.Degraded) != 0 {
		t.Errorf("corpus from config file not found: %v", report.Degraded)
	}
}

func TestRunReview_MissingDocumentReported(t *testing.T) {
	flags := testFlags(t)
	paths := append(filings("missing.docx"), incorporation...)
	if err := runReview(context.Background(), paths, flags); err != nil {
		t.Fatalf("runReview: %v", err)
	}
	report := readReport(t, flags.out)
	var errored int
	for _, d := range report.Documents {
		if d.Error != "" {
			errored++
		}
	}
	if errored != 1 || len(report.Documents) != 3 {
		t.Errorf("expected 1 failed document of 3, got %d of %d", errored, len(report.Documents))
	}
}

func TestRunReview_Cancelled_ExitsCode5(t *testing.T) {
	flags := testFlags(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runReview(ctx, incorporation, flags)
	if code := exitCode(t, err); code != 5 {
		t.Errorf("expected exit code 5, got %d", code)
	}
	if _, statErr := os.Stat(flags.out); !os.IsNotExist(statErr) {
		t.Errorf("no report may be written for a cancelled run")
	}
}

func TestRunIndexBuild(t *testing.T) {
	t.Setenv("FILINGCHECK_MODEL", "")
	flags := indexFlags{commonFlags: commonFlags{
		corpus:  filepath.Join(testdataDir, "corpus"),
		indexDB: filepath.Join(t.TempDir(), "index.db"),
	}}

	var out bytes.Buffer
	if err := runIndexBuild(context.Background(), &out, flags); err != nil {
		t.Fatalf("runIndexBuild: %v", err)
	}
	if !strings.Contains(out.String(), "index built") || !strings.Contains(out.String(), "from 2 sources") {
		t.Errorf("unexpected output: %s", out.String())
	}

	out.Reset()
	if err := runIndexBuild(context.Background(), &out, flags); err != nil {
		t.Fatalf("second runIndexBuild: %v", err)
	}
	if !strings.Contains(out.String(), "index up to date") {
		t.Errorf("expected reuse, got: %s", out.String())
	}

	// A review against only the database needs no corpus directory.
	rf := testFlags(t)
	rf.corpus = ""
	rf.indexDB = flags.indexDB
	if err := runReview(context.Background(), incorporation, rf); err != nil {
		t.Fatalf("runReview with index database: %v", err)
	}
	if report := readReport(t, rf.out); len(report.Degraded) != 0 {
		t.Errorf("stored index not used: %v", report.Degraded)
	}
}

func TestRunIndexBuild_NeedsDatabase(t *testing.T) {
	t.Setenv("FILINGCHECK_MODEL", "")
	err := runIndexBuild(context.Background(), &bytes.Buffer{}, indexFlags{commonFlags: commonFlags{
		corpus: filepath.Join(testdataDir, "corpus"),
	}})
	if code := exitCode(t, err); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestRunIndexBuild_EmptyCorpus(t *testing.T) {
	t.Setenv("FILINGCHECK_MODEL", "")
	err := runIndexBuild(context.Background(), &bytes.Buffer{}, indexFlags{commonFlags: commonFlags{
		corpus:  t.TempDir(),
		indexDB: filepath.Join(t.TempDir(), "index.db"),
	}})
	if code := exitCode(t, err); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestRunChecklists(t *testing.T) {
	t.Setenv("FILINGCHECK_MODEL", "")
	var out bytes.Buffer
	if err := runChecklists(&out, "", nil); err != nil {
		t.Fatalf("runChecklists: %v", err)
	}
	for _, want := range []string{
		"Company Incorporation (company_incorporation)",
		"Change of Registered Address (change_of_registered_address)",
		"- Articles of Association",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}

	out.Reset()
	if err := runChecklists(&out, "", []string{"Change of Registered Address"}); err != nil {
		t.Fatalf("runChecklists by title: %v", err)
	}
	if strings.Contains(out.String(), "company_incorporation") {
		t.Errorf("expected a single checklist, got:\n%s", out.String())
	}

	err := runChecklists(&out, "", []string{"liquidation"})
	if code := exitCode(t, err); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}
