package shared

import "testing"

func TestIsDependencyManifest(t *testing.T) {
	cases := map[string]bool{
		"package.json":             true,
		"web/package.json":         true,
		"services/api/go.mod":      true,
		"Gemfile.lock":             true,
		"docs/package.json.md":     false,
		"src/index.ts":             false,
		"":                         false,
		"requirements-dev.txt":     false,
		"backend/requirements.txt": true,
	}
	for file, want := range cases {
		if got := IsDependencyManifest(file); got != want {
			t.Fatalf("IsDependencyManifest(%q) = %v, want %v", file, got, want)
		}
	}
}

func TestBranchRefAndFallbacks(t *testing.T) {
	if got := BranchRef("main"); got != "refs/heads/main" {
		t.Fatalf("unexpected ref %q", got)
	}
	if got := BranchRef("refs/heads/trunk"); got != "refs/heads/trunk" {
		t.Fatalf("unexpected ref %q", got)
	}
	if got := NonEmpty("  ", "fallback"); got != "fallback" {
		t.Fatalf("unexpected value %q", got)
	}
	if got := FallbackDelivery("", []byte("body")); len(got) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", got)
	}
	got := UniqueSorted([]string{"b", "a", "b", " "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected unique values %v", got)
	}
}
