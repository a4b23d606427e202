package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type mockProvider struct {
	response string
	err      error
	calls    int
	prompt   string
}

func (m *mockProvider) Complete(_ context.Context, prompt string) (string, error) {
	m.calls++
	m.prompt = prompt
	return m.response, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const twoJobs = `{"jobs": [
  {"Date": "2024-06-01", "Company Name": "Acme", "Job Position": "Go Developer", "Location": "Remote",
   "Job Description": null, "Details": ["Go", "Kubernetes"], "Role Type": "Full-time",
   "Link/Email": "jobs@acme.io", "CTC": 12, "Deadline": null},
  {"Company Name": "Globex", "Job Position": "SRE"}
]}`

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantCount int
	}{
		{name: "plain json", response: twoJobs, wantCount: 2},
		{name: "fenced json", response: "```json\n" + twoJobs + "\n```", wantCount: 2},
		{name: "bare fence", response: "```\n{\"jobs\": []}\n```", wantCount: 0},
		{name: "not json", response: "not json", wantCount: 0},
		{name: "missing jobs key", response: `{"postings": [{"Company Name": "Acme"}]}`, wantCount: 0},
		{name: "null jobs", response: `{"jobs": null}`, wantCount: 0},
		{name: "jobs not a list", response: `{"jobs": "none"}`, wantCount: 0},
		{name: "top level list", response: `[{"Company Name": "Acme"}]`, wantCount: 0},
		{name: "empty response", response: "", wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockProvider{response: tt.response}
			x := NewRecordExtractor(provider, JobExtractionTemplate, 8000, discardLogger())

			records, err := x.Extract(context.Background(), "Acme is hiring")
			if err != nil {
				t.Fatalf("Extract: unexpected error: %v", err)
			}
			if len(records) != tt.wantCount {
				t.Errorf("got %d records, want %d", len(records), tt.wantCount)
			}
		})
	}
}

func TestExtract_MapsFields(t *testing.T) {
	x := NewRecordExtractor(&mockProvider{response: twoJobs}, JobExtractionTemplate, 0, discardLogger())

	records, err := x.Extract(context.Background(), "Acme is hiring")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	first := records[0]
	if first.Company() != "Acme" || first.Position() != "Go Developer" {
		t.Errorf("first record = %+v", first)
	}
	if first.JobDescription != nil {
		t.Errorf("JobDescription = %v, want nil", first.JobDescription)
	}
	row := first.Row(2)
	if row[6] != "Go, Kubernetes" || row[9] != "12" {
		t.Errorf("row = %q, want list joined and integer CTC", row)
	}
	if records[1].Location != nil {
		t.Errorf("missing key should stay nil, got %v", records[1].Location)
	}
}

func TestExtract_EmptyTextSkipsProvider(t *testing.T) {
	provider := &mockProvider{response: twoJobs}
	x := NewRecordExtractor(provider, JobExtractionTemplate, 8000, discardLogger())

	records, err := x.Extract(context.Background(), "  \n\t")
	if err != nil || records != nil {
		t.Fatalf("Extract = %v, %v; want nil, nil", records, err)
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times, want 0", provider.calls)
	}
}

func TestExtract_ProviderError(t *testing.T) {
	x := NewRecordExtractor(&mockProvider{err: errors.New("connection reset")}, JobExtractionTemplate, 8000, discardLogger())

	if _, err := x.Extract(context.Background(), "Acme is hiring"); err == nil {
		t.Fatal("expected error when the llm call fails")
	}
}

func TestExtract_TruncatesInput(t *testing.T) {
	provider := &mockProvider{response: `{"jobs": []}`}
	x := NewRecordExtractor(provider, JobExtractionTemplate, 10, discardLogger())

	body := "ééééééééééTAIL"
	if _, err := x.Extract(context.Background(), body); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(provider.prompt, "éééééééééé") {
		t.Error("prompt should contain the first 10 characters")
	}
	if strings.Contains(provider.prompt, "TAIL") {
		t.Error("prompt should not contain text past the limit")
	}
}

func TestPromptNamesEveryField(t *testing.T) {
	provider := &mockProvider{response: `{"jobs": []}`}
	x := NewRecordExtractor(provider, JobExtractionTemplate, 0, discardLogger())
	if _, err := x.Extract(context.Background(), "body"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, f := range []string{`"Date"`, `"Company Name"`, `"Link/Email"`, `"Deadline"`, `"jobs"`} {
		if !strings.Contains(provider.prompt, f) {
			t.Errorf("prompt missing %s", f)
		}
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"```json\n{}\n```", "{}"},
		{"```JSON{}```", "{}"},
		{"  {}  ", "{}"},
		{"{\"a\": \"b\"}", "{\"a\": \"b\"}"},
	}
	for _, tt := range tests {
		if got := StripCodeFences(tt.in); got != tt.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
