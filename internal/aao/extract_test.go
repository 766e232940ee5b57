package aao

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestUnescapeJSString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{\"title\":\"Turnabout\"}`, `{"title":"Turnabout"}`},
		{`a\/b\/c`, `a/b/c`},
		{`it\'s`, `it's`},
		{`back\\slash`, `back\slash`},
		// Double backslashes collapse before quote unescaping, so an
		// escaped backslash followed by a quote stays literal.
		{`\\\"`, `\"`},
	}
	for _, tt := range tests {
		if got := unescapeJSString(tt.in); got != tt.want {
			t.Errorf("unescapeJSString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractEscapedJSON(t *testing.T) {
	script := `var initial_trial_data = JSON.parse("{\"frames\":[],\"title\":\"A\/B\"}");`
	var data map[string]any
	if err := extractEscapedJSON(trialDataPattern, script, &data); err != nil {
		t.Fatalf("extractEscapedJSON: %v", err)
	}
	if data["title"] != "A/B" {
		t.Fatalf("unexpected title: %v", data["title"])
	}

	var dst map[string]any
	err := extractEscapedJSON(trialDataPattern, "var something_else = 1;", &dst)
	if !errors.Is(err, errPatternNotMatched) {
		t.Fatalf("expected errPatternNotMatched, got %v", err)
	}
}

func TestExtractRawJSONPreservesNumbers(t *testing.T) {
	script := `var default_places = {"-1":{"background":{"image":"court.jpg","external":0},"id":9007199254740993}};`
	var places map[string]any
	if err := extractRawJSON(defaultPlacesPattern, script, &places); err != nil {
		t.Fatalf("extractRawJSON: %v", err)
	}
	place := places["-1"].(map[string]any)
	id, ok := place["id"].(json.Number)
	if !ok {
		t.Fatalf("expected json.Number, got %T", place["id"])
	}
	// Round-tripping through float64 would corrupt this value.
	out, err := json.Marshal(places)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), id.String()) || id.String() != "9007199254740993" {
		t.Fatalf("number corrupted on round trip: %s", out)
	}
}

func TestTrialInfoPatternDistinguishesMissingCase(t *testing.T) {
	// An unknown case ID yields a bare declaration with no payload.
	m := trialInfoPattern.FindStringSubmatch("var trial_information;")
	if m == nil {
		t.Fatal("bare declaration should still match")
	}
	if m[1] != "" {
		t.Fatalf("bare declaration should have an empty payload, got %q", m[1])
	}

	if m := trialInfoPattern.FindStringSubmatch("var other = 1;"); m != nil {
		t.Fatalf("unrelated script should not match: %v", m)
	}
}
