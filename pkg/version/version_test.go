package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShort_ReturnsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestGetInfo_LdflagsCommitWins(t *testing.T) {
	// Given: a commit injected at build time
	old := Commit
	Commit = "0123456789abcdef"
	t.Cleanup(func() { Commit = old })

	// When
	info := GetInfo()

	// Then
	assert.Equal(t, "0123456789abcdef", info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestBuildInfo_String(t *testing.T) {
	tests := []struct {
		name string
		info BuildInfo
		want string
	}{
		{name: "no commit", info: BuildInfo{Version: "dev", GoVersion: "go1.25.5"}, want: "hybridrag dev go1.25.5"},
		{name: "short commit", info: BuildInfo{Version: "v0.3.0", Commit: "abc123", GoVersion: "go1.25.5"}, want: "hybridrag v0.3.0 (abc123) go1.25.5"},
		{
			name: "long dirty commit",
			info: BuildInfo{Version: "v0.3.0", Commit: "0123456789abcdef0123", Modified: true, GoVersion: "go1.25.5"},
			want: "hybridrag v0.3.0 (0123456789ab-dirty) go1.25.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.String())
		})
	}
}
