// Package version tells which build of kontrol is running.
package version

import "runtime/debug"

// Version can be set at build time:
//
//	go build -ldflags "-X github.com/vsariola/kontrol/version.Version=$(git describe --dirty)"
var Version string

// Hash is the short VCS revision the binary was built from, with a -dirty
// suffix for modified trees. Empty when the build carries no VCS info.
var Hash string

// VersionOrHash is Version if set, otherwise the module version of a
// `go install pkg@version` build, otherwise Hash.
var VersionOrHash string

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		VersionOrHash = Version
		return
	}
	Hash = revision(info.Settings)
	VersionOrHash = pick(Version, info.Main.Version, Hash)
}

func revision(settings []debug.BuildSetting) string {
	var rev string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

func pick(version, module, hash string) string {
	switch {
	case version != "":
		return version
	case module != "" && module != "(devel)":
		return module
	}
	return hash
}
