package filesync

import (
	"slices"
	"strings"

	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
)

// Rules selects which files are uploaded and which folders are walked.
type Rules struct {
	// Whitelist positively selects files to upload; anything else is deleted.
	Whitelist config.RuleSet

	// Blacklist prunes matching folders from the walk.
	Blacklist config.RuleSet

	// VideoSuffix marks video files; everything else is sent as an image.
	VideoSuffix string
}

// RulesFromConfig extracts the filter rules from the sync configuration.
func RulesFromConfig(cfg config.SyncConfig) Rules {
	suffix := cfg.VideoSuffix
	if suffix == "" {
		suffix = model.DefaultVideoSuffix
	}
	return Rules{
		Whitelist:   cfg.Whitelist,
		Blacklist:   cfg.Blacklist,
		VideoSuffix: suffix,
	}
}

// Matches reports whether name matches any case-insensitive prefix or suffix
// rule, or exactly equals one of the names.
func Matches(rs config.RuleSet, name string) bool {
	lower := strings.ToLower(name)
	for _, p := range rs.Prefixes {
		if strings.HasPrefix(lower, strings.ToLower(p)) {
			return true
		}
	}
	for _, s := range rs.Suffixes {
		if strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return slices.Contains(rs.Names, name)
}

// keepFile reports whether a file should be uploaded.
func (r Rules) keepFile(name string) bool {
	return Matches(r.Whitelist, name)
}

// descend reports whether a folder should be walked.
func (r Rules) descend(name string) bool {
	return !Matches(r.Blacklist, name)
}
