package aao

import "testing"

func TestParseCaseRef(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"106832", 106832},
		{" 42 ", 42},
		{"https://aaonline.fr/player.php?trial_id=106832", 106832},
		{"http://www.aaonline.fr/player.php?trial_id=7", 7},
	}
	for _, tc := range cases {
		got, err := ParseCaseRef(tc.in)
		if err != nil {
			t.Fatalf("ParseCaseRef(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseCaseRef(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseCaseRefRejectsInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"0",
		"-5",
		"not-a-case",
		"https://example.org/player.php?trial_id=5",
		"https://aaonline.fr/editor.php?trial_id=5",
	} {
		if _, err := ParseCaseRef(in); err == nil {
			t.Errorf("ParseCaseRef(%q): expected error", in)
		}
	}
}
