package generation

import (
	"fmt"
	"strings"
)

// ResponseType selects between a short answer and a long-form piece.
type ResponseType string

const (
	ShortResponse ResponseType = "short-response"
	LongForm      ResponseType = "long-form"
)

// Tone is the register of the generated text.
type Tone string

const (
	ToneNeutral    Tone = "neutral"
	ToneFormal     Tone = "formal"
	ToneCasual     Tone = "casual"
	TonePersuasive Tone = "persuasive"
	ToneAcademic   Tone = "academic"
	ToneFriendly   Tone = "friendly"
)

// RewriteStyle controls how much the answer elaborates.
type RewriteStyle string

const (
	StyleStandard RewriteStyle = "standard"
	StyleSimple   RewriteStyle = "simple"
	StyleExpanded RewriteStyle = "expanded"
	StyleConcise  RewriteStyle = "concise"
)

// AcademicFormat is the citation style for long-form pieces.
type AcademicFormat string

const (
	FormatNone    AcademicFormat = "none"
	FormatMLA     AcademicFormat = "MLA"
	FormatAPA     AcademicFormat = "APA"
	FormatChicago AcademicFormat = "Chicago"
)

// EvidenceUse says whether the answer should cite supporting evidence.
type EvidenceUse string

const (
	EvidenceNone     EvidenceUse = "none"
	EvidenceOptional EvidenceUse = "optional"
	EvidenceRequired EvidenceUse = "required"
)

// Bounds for the numeric settings.
const (
	MinTier       = 1
	MaxTier       = 5
	MaxPageCount  = 20
	MinGradeLevel = 1
	MaxGradeLevel = 16
)

// Settings is the read-only snapshot of user preferences that shapes one
// generation. Zero values are replaced by Normalize.
type Settings struct {
	ResponseType   ResponseType   `yaml:"response_type" json:"response_type"`
	LengthTier     int            `yaml:"length_tier" json:"length_tier"`
	PageCount      int            `yaml:"page_count" json:"page_count,omitempty"`
	AcademicFormat AcademicFormat `yaml:"academic_format" json:"academic_format"`
	GradeLevel     int            `yaml:"grade_level" json:"grade_level"`
	Tone           Tone           `yaml:"tone" json:"tone"`
	DepthTier      int            `yaml:"depth_tier" json:"depth_tier"`
	RewriteStyle   RewriteStyle   `yaml:"rewrite_style" json:"rewrite_style"`
	EvidenceUse    EvidenceUse    `yaml:"evidence_use" json:"evidence_use"`

	HumanizerEnabled    bool `yaml:"humanizer_enabled" json:"humanizer_enabled"`
	ReviewModeEnabled   bool `yaml:"review_mode_enabled" json:"review_mode_enabled"`
	PasteModeEnabled    bool `yaml:"paste_mode_enabled" json:"paste_mode_enabled"`
	LearningModeEnabled bool `yaml:"learning_mode_enabled" json:"learning_mode_enabled"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		ResponseType:        ShortResponse,
		LengthTier:          2,
		AcademicFormat:      FormatNone,
		GradeLevel:          10,
		Tone:                ToneNeutral,
		DepthTier:           3,
		RewriteStyle:        StyleStandard,
		EvidenceUse:         EvidenceOptional,
		LearningModeEnabled: true,
	}
}

// Normalize fills zero-valued fields from DefaultSettings. Boolean toggles
// are left as given.
func (s Settings) Normalize() Settings {
	d := DefaultSettings()
	if s.ResponseType == "" {
		s.ResponseType = d.ResponseType
	}
	if s.LengthTier == 0 {
		s.LengthTier = d.LengthTier
	}
	if s.AcademicFormat == "" {
		s.AcademicFormat = d.AcademicFormat
	}
	if s.GradeLevel == 0 {
		s.GradeLevel = d.GradeLevel
	}
	if s.Tone == "" {
		s.Tone = d.Tone
	}
	if s.DepthTier == 0 {
		s.DepthTier = d.DepthTier
	}
	if s.RewriteStyle == "" {
		s.RewriteStyle = d.RewriteStyle
	}
	if s.EvidenceUse == "" {
		s.EvidenceUse = d.EvidenceUse
	}
	return s
}

// Validate checks every field, collecting all problems into one error that
// wraps ErrInvalidRequest.
func (s Settings) Validate() error {
	var errs []string

	switch s.ResponseType {
	case ShortResponse, LongForm:
	default:
		errs = append(errs, fmt.Sprintf("response_type %q is not short-response or long-form", s.ResponseType))
	}
	if s.LengthTier < MinTier || s.LengthTier > MaxTier {
		errs = append(errs, fmt.Sprintf("length_tier must be between %d and %d", MinTier, MaxTier))
	}
	if s.PageCount < 0 || s.PageCount > MaxPageCount {
		errs = append(errs, fmt.Sprintf("page_count must be between 0 and %d", MaxPageCount))
	}
	if s.PageCount > 0 && s.ResponseType != LongForm {
		errs = append(errs, "page_count applies to long-form responses only")
	}
	switch s.AcademicFormat {
	case FormatNone, FormatMLA, FormatAPA, FormatChicago:
	default:
		errs = append(errs, fmt.Sprintf("academic_format %q is not none, MLA, APA or Chicago", s.AcademicFormat))
	}
	if s.GradeLevel < MinGradeLevel || s.GradeLevel > MaxGradeLevel {
		errs = append(errs, fmt.Sprintf("grade_level must be between %d and %d", MinGradeLevel, MaxGradeLevel))
	}
	switch s.Tone {
	case ToneNeutral, ToneFormal, ToneCasual, TonePersuasive, ToneAcademic, ToneFriendly:
	default:
		errs = append(errs, fmt.Sprintf("tone %q is not recognised", s.Tone))
	}
	if s.DepthTier < MinTier || s.DepthTier > MaxTier {
		errs = append(errs, fmt.Sprintf("depth_tier must be between %d and %d", MinTier, MaxTier))
	}
	switch s.RewriteStyle {
	case StyleStandard, StyleSimple, StyleExpanded, StyleConcise:
	default:
		errs = append(errs, fmt.Sprintf("rewrite_style %q is not recognised", s.RewriteStyle))
	}
	switch s.EvidenceUse {
	case EvidenceNone, EvidenceOptional, EvidenceRequired:
	default:
		errs = append(errs, fmt.Sprintf("evidence_use %q is not none, optional or required", s.EvidenceUse))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(errs, "; "))
	}
	return nil
}
