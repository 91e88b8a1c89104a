package server

import (
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"

	perrors "github.com/YuminosukeSato/titanic-survival/pkg/errors"
)

// FeatureFields are the form field names in the order the model expects.
var FeatureFields = []string{
	"num__Pclass",
	"num__Sex",
	"num__Age",
	"num__Fare",
	"num__Embarked",
	"num__Familysize",
	"num__Isalone",
	"num__HasCabin",
	"num__Title",
	"num__Pclass_Fare",
	"num__Age_Fare",
}

// FeatureName strips the "num__" prefix of a form field.
func FeatureName(field string) string {
	return strings.TrimPrefix(field, "num__")
}

// parseFeatures reads every field of FeatureFields through get. Missing or
// non-numeric values are reported together.
func parseFeatures(get func(string) (string, bool)) ([]float64, error) {
	values := make([]float64, len(FeatureFields))
	var bad []string
	for i, field := range FeatureFields {
		raw, ok := get(field)
		if !ok || strings.TrimSpace(raw) == "" {
			bad = append(bad, field+" is required")
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			bad = append(bad, fmt.Sprintf("%s must be a number, got %q", field, raw))
			continue
		}
		values[i] = v
	}
	if len(bad) > 0 {
		return nil, perrors.Newf("invalid input: %s", strings.Join(bad, "; "))
	}
	return values, nil
}

func parseForm(r *http.Request) ([]float64, error) {
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return parseFeatures(func(field string) (string, bool) {
		if _, ok := r.PostForm[field]; !ok {
			return "", false
		}
		return r.PostForm.Get(field), true
	})
}

type formField struct {
	Name  string
	Label string
	Value string
}

type formData struct {
	Fields      []formField
	Prediction  *Prediction
	Error       string
	ModelLoaded bool
}

func newFormData(r *http.Request) formData {
	d := formData{Fields: make([]formField, len(FeatureFields))}
	for i, f := range FeatureFields {
		d.Fields[i] = formField{Name: f, Label: FeatureName(f)}
		if r != nil && r.PostForm != nil {
			d.Fields[i].Value = r.PostForm.Get(f)
		}
	}
	return d
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Titanic Survival Prediction</title>
</head>
<body>
<h1>Titanic Survival Prediction</h1>
{{if not .ModelLoaded}}<p class="warning">No model is loaded yet.</p>{{end}}
<form method="post" action="/">
{{range .Fields}}  <label for="{{.Name}}">{{.Label}}</label>
  <input type="text" id="{{.Name}}" name="{{.Name}}" value="{{.Value}}" required><br>
{{end}}  <button type="submit">Predict</button>
</form>
{{with .Error}}<p class="error">{{.}}</p>{{end}}
{{with .Prediction}}<h2 class="prediction">Prediction: {{if eq .Label 1}}Survived{{else}}Did not survive{{end}} ({{.Label}})</h2>
<p>Probability of survival: {{printf "%.3f" .Probability}}</p>{{end}}
</body>
</html>
`))
