package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, s, b string) { Version, GitSHA, BuildTime = v, s, b }(Version, GitSHA, BuildTime)

	if got, want := String(), "dev (git unknown, built unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	Version, GitSHA, BuildTime = "v0.3.0", "0123456789abcdef0123", "2025-05-01T10:00:00Z"
	if got, want := String(), "v0.3.0 (git 0123456789ab, built 2025-05-01T10:00:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
