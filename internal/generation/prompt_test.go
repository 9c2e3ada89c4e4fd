package generation

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildPrompt_Deterministic(t *testing.T) {
	s := DefaultSettings()
	a := BuildPrompt("  What causes tides?\n", s)
	b := BuildPrompt("What causes tides?", s)
	if a != b {
		t.Errorf("BuildPrompt not deterministic:\n%+v\n%+v", a, b)
	}
	if a.User != "What causes tides?" {
		t.Errorf("User = %q", a.User)
	}
}

func TestBuildPrompt_Guidance(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Settings)
		contains []string
		excludes []string
	}{
		{
			name:     "short response uses length tier",
			mutate:   func(s *Settings) { s.LengthTier = 1 },
			contains: []string{"one or two sentences", "grade 10"},
			excludes: []string{"long-form", "style."},
		},
		{
			name: "long form with pages and format",
			mutate: func(s *Settings) {
				s.ResponseType = LongForm
				s.PageCount = 3
				s.AcademicFormat = FormatAPA
			},
			contains: []string{"long-form", "about 1500 words (3 pages)", "APA style"},
			excludes: []string{"single short paragraph"},
		},
		{
			name: "long form falls back to length tier",
			mutate: func(s *Settings) {
				s.ResponseType = LongForm
				s.LengthTier = 5
			},
			contains: []string{"six or more paragraphs"},
		},
		{
			name: "tone, depth, style and evidence",
			mutate: func(s *Settings) {
				s.Tone = TonePersuasive
				s.DepthTier = 5
				s.RewriteStyle = StyleConcise
				s.EvidenceUse = EvidenceRequired
			},
			contains: []string{"persuasive tone", "critical analysis", "concise", "cited evidence"},
		},
		{
			name:     "academic format ignored for short responses",
			mutate:   func(s *Settings) { s.AcademicFormat = FormatMLA },
			excludes: []string{"MLA"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			p := BuildPrompt("question", s)
			for _, want := range tt.contains {
				if !strings.Contains(p.System, want) {
					t.Errorf("system prompt missing %q:\n%s", want, p.System)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(p.System, unwanted) {
					t.Errorf("system prompt contains %q:\n%s", unwanted, p.System)
				}
			}
		})
	}
}

// ─── Settings ───────────────────────────────────────────────────────────────

func TestSettings_Normalize(t *testing.T) {
	got := Settings{Tone: ToneCasual, PasteModeEnabled: true}.Normalize()
	if got.Tone != ToneCasual {
		t.Errorf("Tone = %q, want casual", got.Tone)
	}
	if got.ResponseType != ShortResponse || got.LengthTier != 2 || got.GradeLevel != 10 {
		t.Errorf("defaults not applied: %+v", got)
	}
	if !got.PasteModeEnabled || got.LearningModeEnabled {
		t.Errorf("toggles changed: %+v", got)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"response type", func(s *Settings) { s.ResponseType = "poem" }},
		{"length tier low", func(s *Settings) { s.LengthTier = 0 }},
		{"length tier high", func(s *Settings) { s.LengthTier = 6 }},
		{"page count too high", func(s *Settings) { s.ResponseType = LongForm; s.PageCount = 21 }},
		{"page count on short response", func(s *Settings) { s.PageCount = 2 }},
		{"academic format", func(s *Settings) { s.AcademicFormat = "Harvard" }},
		{"grade level", func(s *Settings) { s.GradeLevel = 17 }},
		{"tone", func(s *Settings) { s.Tone = "sarcastic" }},
		{"depth tier", func(s *Settings) { s.DepthTier = 9 }},
		{"rewrite style", func(s *Settings) { s.RewriteStyle = "flowery" }},
		{"evidence use", func(s *Settings) { s.EvidenceUse = "always" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error = %v, want ErrInvalidRequest", err)
			}
		})
	}

	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("DefaultSettings().Validate() error = %v", err)
	}
}
