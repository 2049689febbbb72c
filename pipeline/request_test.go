package pipeline

import (
	stderrors "errors"
	"reflect"
	"testing"

	"github.com/marcut/runtime-bridge/errors"
)

func TestRequest_WithDefaults(t *testing.T) {
	r := Request{
		InputPath:  "in.docx",
		OutputPath: "out.docx",
	}.WithDefaults()

	if r.Mode != ModeEnhanced {
		t.Errorf("expected mode %q, got %q", ModeEnhanced, r.Mode)
	}
	if r.ModelID != "llama3.1:8b" {
		t.Errorf("expected default model, got %q", r.ModelID)
	}
	if r.ChunkTokens != 1000 || r.Overlap != 150 {
		t.Errorf("expected chunking 1000/150, got %d/%d", r.ChunkTokens, r.Overlap)
	}
	if r.Temperature != 0.1 {
		t.Errorf("expected temperature 0.1, got %v", r.Temperature)
	}
	if r.Seed != 42 {
		t.Errorf("expected seed 42, got %d", r.Seed)
	}
}

func TestRequest_WithDefaultsKeepsExplicit(t *testing.T) {
	r := Request{
		InputPath:   "in.docx",
		OutputPath:  "out.docx",
		Mode:        ModeRules,
		ModelID:     "llama3.2:3b",
		ChunkTokens: 500,
		Overlap:     50,
		Temperature: 0.7,
		Seed:        7,
	}.WithDefaults()

	if r.Mode != ModeRules || r.ModelID != "llama3.2:3b" {
		t.Errorf("explicit fields overwritten: %+v", r)
	}
	if r.ChunkTokens != 500 || r.Overlap != 50 || r.Temperature != 0.7 || r.Seed != 7 {
		t.Errorf("explicit numerics overwritten: %+v", r)
	}
}

func TestRequest_Validate(t *testing.T) {
	valid := Request{
		InputPath:   "in.docx",
		OutputPath:  "out.docx",
		Mode:        ModeEnhanced,
		ChunkTokens: 1000,
		Overlap:     150,
	}

	tests := []struct {
		name   string
		mutate func(*Request)
		ok     bool
	}{
		{"valid", func(*Request) {}, true},
		{"missing input", func(r *Request) { r.InputPath = "" }, false},
		{"missing output", func(r *Request) { r.OutputPath = "" }, false},
		{"unknown mode", func(r *Request) { r.Mode = "aggressive" }, false},
		{"zero chunk tokens", func(r *Request) { r.ChunkTokens = 0 }, false},
		{"overlap at chunk size", func(r *Request) { r.Overlap = 1000 }, false},
		{"negative overlap", func(r *Request) { r.Overlap = -1 }, false},
		{"rules mode", func(r *Request) { r.Mode = ModeRules }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)

			err := r.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !stderrors.Is(err, errors.Invalid("")) {
					t.Errorf("expected invalid-input error, got %v", err)
				}
			}
		})
	}
}

func TestRequest_Kwargs(t *testing.T) {
	r := Request{
		InputPath:  "/in.docx",
		OutputPath: "/out.docx",
		ReportPath: "/report.html",
		Timing:     true,
	}.WithDefaults()

	want := map[string]any{
		"input_path":   "/in.docx",
		"output_path":  "/out.docx",
		"report_path":  "/report.html",
		"mode":         "enhanced",
		"model_id":     "llama3.1:8b",
		"chunk_tokens": 1000,
		"overlap":      150,
		"temperature":  0.1,
		"seed":         42,
		"debug":        false,
		"timing":       true,
	}
	if got := r.Kwargs(); !reflect.DeepEqual(got, want) {
		t.Errorf("kwargs mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestScrubRequest(t *testing.T) {
	if err := (ScrubRequest{OutputPath: "out"}).Validate(); err == nil {
		t.Error("expected error for missing input path")
	}
	if err := (ScrubRequest{InputPath: "in"}).Validate(); err == nil {
		t.Error("expected error for missing output path")
	}

	r := ScrubRequest{InputPath: "in.docx", OutputPath: "out.docx", Debug: true}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{"input_path": "in.docx", "output_path": "out.docx", "debug": true}
	if got := r.Kwargs(); !reflect.DeepEqual(got, want) {
		t.Errorf("kwargs mismatch: %v", got)
	}
}

func TestAnalyzeRequest(t *testing.T) {
	if err := (AnalyzeRequest{}).Validate(); err == nil {
		t.Error("expected error for missing input path")
	}

	r := AnalyzeRequest{InputPath: "in.docx"}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{"input_path": "in.docx", "debug": false}
	if got := r.Kwargs(); !reflect.DeepEqual(got, want) {
		t.Errorf("kwargs mismatch: %v", got)
	}
}
