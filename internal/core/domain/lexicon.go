package domain

import "sort"

// Lexicon maps each document type to the keyword phrases that are expected
// to appear on a genuine document of that type. Order is significant: matched
// keywords are reported in lexicon order.
type Lexicon map[DocumentType][]string

func (l Lexicon) Keywords(docType DocumentType) []string {
	return l[docType]
}

// Supports reports whether the lexicon has keywords for docType.
func (l Lexicon) Supports(docType DocumentType) bool {
	return len(l[docType]) > 0
}

// Types lists the supported document types in name order.
func (l Lexicon) Types() []DocumentType {
	out := make([]DocumentType, 0, len(l))
	for docType, keywords := range l {
		if len(keywords) > 0 {
			out = append(out, docType)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func DefaultLexicon() Lexicon {
	return Lexicon{
		DocumentLicense: {
			"license", "medical", "practice", "doctor", "physician", "council",
			"board", "certification", "certificate", "registration", "medicine",
			"practitioner", "authorized", "health", "approved", "pmdc", "valid",
		},
		DocumentDegree: {
			"degree", "university", "medicine", "medical", "doctor", "graduate",
			"college", "bachelor", "master", "mbbs", "md", "science", "faculty",
			"awarded", "academic", "diploma", "education", "institution", "student",
		},
	}
}

// CorrectionRule is one case-insensitive substitution repairing a recurring
// OCR misread. Patterns run against normalized text.
type CorrectionRule struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

func DefaultCorrectionRules() []CorrectionRule {
	return []CorrectionRule{
		{Pattern: `rn[ec]d[il1]?\s?cal`, Replacement: "medical"},
		{Pattern: `\bl[1l\s]cense\b`, Replacement: "license"},
		{Pattern: `\bdocfor\b`, Replacement: "doctor"},
		{Pattern: `\brnedicine\b`, Replacement: "medicine"},
		{Pattern: `\bunivers[1l\s]ty\b`, Replacement: "university"},
		{Pattern: `\bphvsician\b`, Replacement: "physician"},
		{Pattern: `\bcertif[1l]cat`, Replacement: "certificat"},
	}
}
