package web

import "sync"

// BuildInfo identifies the running binary in /api/status.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

var (
	buildMu sync.RWMutex
	build   = BuildInfo{Version: "dev", Commit: "unknown", BuildTime: "unknown"}
)

// SetBuildInfo sets the build information reported by the API
func SetBuildInfo(info BuildInfo) {
	buildMu.Lock()
	defer buildMu.Unlock()
	build = info
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return build
}
