package generation

import (
	"fmt"
	"strings"
)

// wordsPerPage converts a page count into a word target.
const wordsPerPage = 500

// Prompt is the rendered request sent to the generation service.
type Prompt struct {
	System string
	User   string
}

var lengthGuidance = map[int]string{
	1: "Answer in one or two sentences.",
	2: "Answer in a single short paragraph.",
	3: "Answer in two or three paragraphs.",
	4: "Answer in four or five paragraphs.",
	5: "Give a detailed answer of six or more paragraphs.",
}

var depthGuidance = map[int]string{
	1: "Stay at surface level; state the answer without analysis.",
	2: "Give brief reasons for the answer.",
	3: "Explain the reasoning behind the answer.",
	4: "Analyse the question in depth, covering counterpoints.",
	5: "Provide a thorough critical analysis with nuance and counterarguments.",
}

var toneGuidance = map[Tone]string{
	ToneNeutral:    "Use a neutral, matter-of-fact tone.",
	ToneFormal:     "Use a formal tone.",
	ToneCasual:     "Use a casual, conversational tone.",
	TonePersuasive: "Use a persuasive tone that argues for a clear position.",
	ToneAcademic:   "Use an academic tone.",
	ToneFriendly:   "Use a warm, friendly tone.",
}

var styleGuidance = map[RewriteStyle]string{
	StyleStandard: "",
	StyleSimple:   "Prefer short sentences and plain words.",
	StyleExpanded: "Elaborate on each point with examples.",
	StyleConcise:  "Be as concise as possible without losing meaning.",
}

var evidenceGuidance = map[EvidenceUse]string{
	EvidenceNone:     "Do not cite sources or evidence.",
	EvidenceOptional: "Cite evidence where it strengthens the answer.",
	EvidenceRequired: "Support every claim with cited evidence.",
}

// BuildPrompt renders sourceText and settings into a prompt. The output
// depends only on its inputs. settings should already be normalised.
func BuildPrompt(sourceText string, settings Settings) Prompt {
	var b strings.Builder
	b.WriteString("You write answers that will be typed into a text field on the user's behalf. ")
	b.WriteString("Reply with the answer text only: no preamble, no markdown headings.\n")

	if settings.ResponseType == LongForm {
		b.WriteString("Write a long-form piece such as an essay.\n")
		if settings.PageCount > 0 {
			fmt.Fprintf(&b, "Aim for about %d words (%d pages).\n", settings.PageCount*wordsPerPage, settings.PageCount)
		} else if g := lengthGuidance[settings.LengthTier]; g != "" {
			b.WriteString(g + "\n")
		}
		if settings.AcademicFormat != FormatNone && settings.AcademicFormat != "" {
			fmt.Fprintf(&b, "Format the piece and any citations in %s style.\n", settings.AcademicFormat)
		}
	} else if g := lengthGuidance[settings.LengthTier]; g != "" {
		b.WriteString(g + "\n")
	}

	if settings.GradeLevel > 0 {
		fmt.Fprintf(&b, "Write at a grade %d reading level.\n", settings.GradeLevel)
	}
	for _, g := range []string{
		toneGuidance[settings.Tone],
		depthGuidance[settings.DepthTier],
		styleGuidance[settings.RewriteStyle],
		evidenceGuidance[settings.EvidenceUse],
	} {
		if g != "" {
			b.WriteString(g + "\n")
		}
	}

	return Prompt{
		System: strings.TrimRight(b.String(), "\n"),
		User:   strings.TrimSpace(sourceText),
	}
}
