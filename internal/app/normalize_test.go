package app

import "testing"

func TestNormalizeInitials(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"jb l.", "JBL"},
		{"J.B.L.", "JBL"},
		{"josé ñ", "JOSEN"},
		{"  a - b  c ", "ABC"},
		{"123", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeInitials(tc.in); got != tc.want {
			t.Errorf("NormalizeInitials(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeInstitution(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  IES   La   Rábida  ", "IES La Rábida"},
		{"Colegio\tSan  Juan", "Colegio San Juan"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeInstitution(tc.in); got != tc.want {
			t.Errorf("NormalizeInstitution(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSearchKeyFoldsCaseAndDiacritics(t *testing.T) {
	got := SearchKey("JBL", "IES La Rábida")
	want := "jbl|ies la rabida"
	if got != want {
		t.Fatalf("SearchKey = %q, want %q", got, want)
	}
}

func TestFoldQueryMatchesSearchKeyFolding(t *testing.T) {
	if got := FoldQuery("  Rábida "); got != "rabida" {
		t.Fatalf("FoldQuery = %q, want %q", got, "rabida")
	}
}

func TestNormalizeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "crlf and collapsed spaces",
			in:   "First  line\r\nSecond\tline",
			want: "First line\nSecond line",
		},
		{
			name: "at most one blank line",
			in:   "a\n\n\n\nb",
			want: "a\n\nb",
		},
		{
			name: "outer whitespace trimmed",
			in:   "\n\n  hello  \n\n",
			want: "hello",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeText(tc.in); got != tc.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeTextIsIdempotent(t *testing.T) {
	inputs := []string{
		"First  line\r\nSecond line\n\n\nThird",
		"  padded  ",
		"already\nnormal",
	}
	for _, in := range inputs {
		once := NormalizeText(in)
		if twice := NormalizeText(once); twice != once {
			t.Errorf("NormalizeText not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}
