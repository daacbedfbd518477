package jobs

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Rule maps a pattern to a canonical label. Format, when set, builds the
// label from the submatches instead.
type Rule struct {
	Pattern *regexp.Regexp
	Label   string
	Format  func(m []string) string
}

func (r Rule) apply(text string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if r.Format != nil {
		return r.Format(m), true
	}
	return r.Label, true
}

// Education rules, most specific first.
var EducationRules = []Rule{
	{Pattern: regexp.MustCompile(`(?i)\bph\.?\s?d\b|\bdoctora(?:te|l)\b`), Label: "PhD/Doctorate"},
	{Pattern: regexp.MustCompile(`(?i)\bmaster's\b|\bmasters?\s+(?:degree|of|in)\b|\b(?:mba|msc)\b|\bm\.s\.|\bgraduate degree\b`), Label: "Master's Degree"},
	{Pattern: regexp.MustCompile(`(?i)\bbachelor'?s?\b|\bbsc\b|\bb\.[sa]\.|\b(?:undergraduate|college) degree\b`), Label: "Bachelor's Degree"},
	{Pattern: regexp.MustCompile(`(?i)\bassociate'?s? degree\b|\ba\.[sa]\.`), Label: "Associate's Degree"},
	{Pattern: regexp.MustCompile(`(?i)\bhigh school\b|\bsecondary school\b|\bged\b`), Label: "High School Diploma"},
}

// Experience rules. Ranges come before open-ended forms so "3-5 years"
// is never read as "5+ years".
var ExperienceRules = []Rule{
	{
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:-|–|to)\s*(\d{1,2})\s*\+?\s*(?:years?|yrs?)\b`),
		Format:  func(m []string) string { return m[1] + "-" + m[2] + " years" },
	},
	{
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2})\s*\+\s*(?:years?|yrs?)\b`),
		Format:  func(m []string) string { return m[1] + "+ years" },
	},
	{
		Pattern: regexp.MustCompile(`(?i)\b(?:minimum(?:\s+of)?|at\s+least)\s+(\d{1,2})\s*(?:years?|yrs?)\b`),
		Format:  func(m []string) string { return m[1] + "+ years" },
	},
	{
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:years?|yrs?)\s+(?:of\s+)?(?:professional\s+|relevant\s+|work\s+)?experience\b`),
		Format:  func(m []string) string { return m[1] + "+ years" },
	},
}

var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'", "`", "'")

// Extractor derives education and experience labels from free text.
// It is pure and safe for concurrent use.
type Extractor struct {
	education  []Rule
	experience []Rule
}

func NewExtractor() *Extractor {
	return &Extractor{
		education:  EducationRules,
		experience: ExperienceRules,
	}
}

func NewExtractorWithRules(education, experience []Rule) *Extractor {
	return &Extractor{education: education, experience: experience}
}

// Extract returns the first matching education and experience labels.
// Empty strings mean no rule matched.
func (e *Extractor) Extract(text string) (diploma string, experience string) {
	if text == "" {
		return "", ""
	}
	text = apostrophes.Replace(norm.NFKC.String(text))
	diploma = firstMatch(e.education, text)
	experience = firstMatch(e.experience, text)
	return diploma, experience
}

// Enrich fills the derived fields of r from its description and extra
// extraction text.
func (e *Extractor) Enrich(r Record) Record {
	text := r.Description
	if r.ExtractText != "" {
		text += "\n" + r.ExtractText
	}
	r.DiplomaRequired, r.YearsExperience = e.Extract(text)
	return r
}

func firstMatch(rules []Rule, text string) string {
	for _, rule := range rules {
		if label, ok := rule.apply(text); ok {
			return label
		}
	}
	return ""
}
