package version

import (
	"runtime/debug"
	"testing"
)

func TestRevision(t *testing.T) {
	tests := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{"None", nil, ""},
		{"Clean", []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}, {Key: "vcs.modified", Value: "false"}}, "0123456"},
		{"Dirty", []debug.BuildSetting{{Key: "vcs.modified", Value: "true"}, {Key: "vcs.revision", Value: "0123456789abcdef"}}, "0123456-dirty"},
		{"Short", []debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}}, "abc"},
		{"DirtyWithoutRevision", []debug.BuildSetting{{Key: "vcs.modified", Value: "true"}}, ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := revision(test.settings); got != test.want {
				t.Fatalf("revision() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestPick(t *testing.T) {
	if got := pick("v1.0", "v0.9", "abc"); got != "v1.0" {
		t.Errorf("explicit version lost: %q", got)
	}
	if got := pick("", "v0.9", "abc"); got != "v0.9" {
		t.Errorf("module version lost: %q", got)
	}
	if got := pick("", "(devel)", "abc"); got != "abc" {
		t.Errorf("devel build should fall back to the hash, got %q", got)
	}
}
