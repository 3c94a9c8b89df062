package common

import (
	"runtime/debug"
	"sync"
)

// Set with -ldflags "-X github.com/bobmcallan/gatekeep/internal/common.Version=..."
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

var buildInfoOnce sync.Once

// fillFromBuildInfo falls back to the VCS stamp the go tool embeds when the
// ldflags were not provided.
func fillFromBuildInfo() {
	buildInfoOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if GitCommit == "unknown" && len(s.Value) >= 7 {
					GitCommit = s.Value[:7]
				}
			case "vcs.time":
				if Build == "unknown" {
					Build = s.Value
				}
			}
		}
	})
}

func GetVersion() string {
	fillFromBuildInfo()
	return Version
}

func GetBuild() string {
	fillFromBuildInfo()
	return Build
}

// GetGitCommit returns the short commit hash.
func GetGitCommit() string {
	fillFromBuildInfo()
	return GitCommit
}
