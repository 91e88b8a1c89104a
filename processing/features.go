package processing

import (
	"regexp"

	"github.com/YuminosukeSato/titanic-survival/core/frame"
	"github.com/YuminosukeSato/titanic-survival/preprocessing"
)

// Title codes. Titles outside the table map to TitleRare.
const (
	TitleMr     = 0
	TitleMiss   = 1
	TitleMrs    = 2
	TitleMaster = 3
	TitleRare   = 4
)

var titlePattern = regexp.MustCompile(` ([A-Za-z]+)\.`)

var sexEncoder = preprocessing.NewMapEncoder(map[string]float64{"male": 0, "female": 1}, nil)

func titleEncoder() *preprocessing.MapEncoder {
	rare := float64(TitleRare)
	return preprocessing.NewMapEncoder(map[string]float64{
		"Mr":     TitleMr,
		"Miss":   TitleMiss,
		"Mrs":    TitleMrs,
		"Master": TitleMaster,
		"Rare":   TitleRare,
	}, &rare)
}

// ExtractTitle returns the first word followed by a period that comes
// after a space, e.g. "Mrs" in "Cumings, Mrs. John Bradley". It returns ""
// when the name has none.
func ExtractTitle(name string) string {
	m := titlePattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// TitleCodes maps each name to its title code.
func TitleCodes(names []string) []float64 {
	titles := make([]string, len(names))
	for i, n := range names {
		titles[i] = ExtractTitle(n)
	}
	return titleEncoder().Transform(titles)
}

// FamilySize returns sibsp + parch + 1 per row.
func FamilySize(sibsp, parch []float64) []float64 {
	out := make([]float64, len(sibsp))
	for i := range out {
		out[i] = sibsp[i] + parch[i] + 1
	}
	return out
}

// IsAlone returns 1 where the family size is 1 and 0 elsewhere.
func IsAlone(familySize []float64) []float64 {
	out := make([]float64, len(familySize))
	for i, v := range familySize {
		if v == 1 {
			out[i] = 1
		}
	}
	return out
}

// HasCabin returns 1 where the cabin cell is present.
func HasCabin(cabins []string) []float64 {
	out := make([]float64, len(cabins))
	for i, c := range cabins {
		if !frame.IsMissing(c) {
			out[i] = 1
		}
	}
	return out
}

// Product multiplies two columns element-wise.
func Product(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range out {
		out[i] = a[i] * b[i]
	}
	return out
}
