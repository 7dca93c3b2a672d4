package filesync

import (
	"testing"

	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	rs := config.RuleSet{
		Prefixes: []string{"tmp_"},
		Suffixes: []string{".JPG"},
		Names:    []string{"keep.me"},
	}

	tests := []struct {
		name string
		want bool
	}{
		{"tmp_x.bin", true},
		{"TMP_x.bin", true},
		{"img_1.jpg", true},
		{"keep.me", true},
		{"KEEP.ME", false},
		{"b.tmp", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(rs, tt.name))
		})
	}
}

func TestRules(t *testing.T) {
	r := RulesFromConfig(config.SyncConfig{
		Whitelist: config.RuleSet{Suffixes: []string{".jpg"}},
		Blacklist: config.RuleSet{Prefixes: []string{"."}, Names: []string{"tmp"}},
	})

	assert.Equal(t, ".mp4", r.VideoSuffix)
	assert.True(t, r.keepFile("a.jpg"))
	assert.False(t, r.keepFile("b.tmp"))
	assert.True(t, r.descend("rs-2026-01-18-12-00-00"))
	assert.False(t, r.descend(".cache"))
	assert.False(t, r.descend("tmp"))
}

func TestRules_EmptyWhitelistKeepsNothing(t *testing.T) {
	r := Rules{}
	assert.False(t, r.keepFile("a.jpg"))
	assert.True(t, r.descend("anything"))
}
