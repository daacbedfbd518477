package jobs

import (
	"cmp"
	"fmt"
)

const NotSpecified = "Not specified"

// Record is one job posting as returned by a provider and enriched by the
// extractor. Keyword is set by the collector, not by providers.
type Record struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Company         string `json:"company,omitempty"`
	Location        string `json:"location,omitempty"`
	Description     string `json:"description,omitempty"`
	URL             string `json:"url,omitempty"`
	PostDate        string `json:"posted_date,omitempty"`
	Source          string `json:"source,omitempty"`
	DiplomaRequired string `json:"diploma_required,omitempty"`
	YearsExperience string `json:"years_experience,omitempty"`
	Keyword         string `json:"keyword,omitempty"`

	// ExtractText is provider text the extractor reads in addition to the
	// description, such as untruncated highlights. It is never stored.
	ExtractText string `json:"-"`
}

// Normalize fills the identifier when the provider did not supply one.
func (r Record) Normalize() Record {
	if r.ID == "" {
		r.ID = cmp.Or(r.URL, fmt.Sprintf("%s:%s", r.Source, r.Title))
	}
	return r
}

// NormalizeAll returns a normalized copy of records.
func NormalizeAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Normalize()
	}
	return out
}

// Dedupe drops records whose ID was already seen, keeping first occurrences.
func Dedupe(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		key := cmp.Or(r.ID, r.URL)
		if key != "" {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
