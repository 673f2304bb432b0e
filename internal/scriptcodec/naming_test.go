package scriptcodec

import "testing"

func TestIsScriptFile(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"vm-x":          true,
		"vm@2-x":        true,
		"vm@10-x":       true,
		"Violentmonkey": false,
		"vm@-x":         false,
		"vm@2":          false,
		"other":         false,
	}

	for name, want := range cases {
		if got := IsScriptFile(name); got != want {
			t.Errorf("IsScriptFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseURIRoundTrip(t *testing.T) {
	t.Parallel()

	uris := []string{
		"https://example.com/a.user.js",
		"https://example.com/a b.user.js",
	}
	for _, uri := range uris {
		name := Filename("", uri)
		got, ok := ParseURI(name)
		if !ok {
			t.Fatalf("ParseURI(%q) not ok", name)
		}
		if got != uri {
			t.Errorf("round trip: got %q, want %q", got, uri)
		}
	}
}

func TestParseURILegacyPercentDecoding(t *testing.T) {
	t.Parallel()

	got, ok := ParseURI("vm-https%3A%2F%2Fexample.com%2Fa.user.js")
	if !ok {
		t.Fatal("expected ok")
	}
	want := "https://example.com/a.user.js"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseURILegacyFallsBackOnBadEncoding(t *testing.T) {
	t.Parallel()

	got, ok := ParseURI("vm-not%zzencoded")
	if !ok {
		t.Fatal("expected ok")
	}
	if got != "not%zzencoded" {
		t.Errorf("got %q, want raw fallback", got)
	}
}

func TestFilenamePrefersExistingName(t *testing.T) {
	t.Parallel()

	got := Filename("vm@2-existing", "https://example.com/other.user.js")
	if got != "vm@2-existing" {
		t.Errorf("got %q, want existing name preserved", got)
	}
}
