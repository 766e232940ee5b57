package aao

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Patterns for the JavaScript variables the site embeds its data in. A
// format change here means the site updated and this package needs to
// follow.
var (
	trialInfoPattern      = regexp.MustCompile(`(?s)var trial_information(?: = JSON\.parse\("(.*?)"\))?;`)
	trialDataPattern      = regexp.MustCompile(`(?s)var initial_trial_data = JSON\.parse\("(.*?)"\);`)
	siteConfigPattern     = regexp.MustCompile(`(?s)var cfg = (\{.*?\});`)
	defaultStartupPattern = regexp.MustCompile(`(?s)var default_profiles_startup = JSON\.parse\("(.*?)"\);`)
	defaultPlacesPattern  = regexp.MustCompile(`(?s)var default_places = (\{.*?\});`)
	modulePattern         = regexp.MustCompile(`(?sm)Modules\.load\(new Object\(\{\s*name\s*:\s*['"](.*?)['"]\s*,\s*dependencies\s*:\s*(\[.*?\]),\s*init\s*:\s*function\(\)\s*\{(.*?)\}\s*^\}\)\);`)
)

// errPatternNotMatched reports that a script no longer carries an expected
// variable, which usually means the site changed format.
var errPatternNotMatched = errors.New("script variable not found")

// extractEscapedJSON pulls a JSON.parse("...") payload out of script text
// and decodes the unescaped JSON into dst.
func extractEscapedJSON(pattern *regexp.Regexp, script string, dst any) error {
	m := pattern.FindStringSubmatch(script)
	if m == nil {
		return fmt.Errorf("%w: %s", errPatternNotMatched, pattern.String())
	}
	if m[1] == "" {
		return errPatternNotMatched
	}
	return decodeEscapedJSON(m[1], dst)
}

// extractRawJSON pulls a plain JSON object literal out of script text and
// decodes it into dst.
func extractRawJSON(pattern *regexp.Regexp, script string, dst any) error {
	m := pattern.FindStringSubmatch(script)
	if m == nil {
		return fmt.Errorf("%w: %s", errPatternNotMatched, pattern.String())
	}
	dec := json.NewDecoder(strings.NewReader(m[1]))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode embedded JSON: %w", err)
	}
	return nil
}

func decodeEscapedJSON(escaped string, dst any) error {
	unescaped := unescapeJSString(escaped)
	dec := json.NewDecoder(strings.NewReader(unescaped))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode embedded JSON: %w", err)
	}
	return nil
}

// unescapeJSString reverses the escaping PHP applies when it embeds a JSON
// string inside a single-quoted JavaScript literal.
func unescapeJSString(s string) string {
	s = strings.ReplaceAll(s, `\\`, `\`)
	s = strings.ReplaceAll(s, `\"`, `"`)
	s = strings.ReplaceAll(s, `\'`, `'`)
	s = strings.ReplaceAll(s, `\/`, `/`)
	return s
}
