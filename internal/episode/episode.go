// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package episode selects the file belonging to a specific season/episode
// inside a multi-file torrent.
package episode

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Pattern families tried against each file name, in order. All are tolerant
// of leading zeros and padding between the markers; the bounded digit groups
// keep episode 1 from matching episode 10.
var patternFamilies = []*regexp.Regexp{
	// Show.S01E02.mkv
	regexp.MustCompile(`(?i)\bs\s*(\d{1,2})\s*e\s*(\d{1,3})`),
	// Show.1x02.mkv
	regexp.MustCompile(`(?i)\b(\d{1,2})\s*x\s*(\d{1,3})`),
	// Show Season 1 Episode 2.mkv
	regexp.MustCompile(`(?i)\bseason[\s._-]*(\d{1,2})[\s._-]*episode[\s._-]*(\d{1,3})`),
	// Сериал Сезон 1 Серия 2.mkv
	regexp.MustCompile(`(?i)сезон[\s._-]*(\d{1,2})[\s._-]*серия[\s._-]*(\d{1,3})`),
}

var videoExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".avi":  {},
	".mov":  {},
	".wmv":  {},
	".flv":  {},
	".webm": {},
	".m4v":  {},
	".mpg":  {},
	".mpeg": {},
	".ts":   {},
	".m2ts": {},
	".vob":  {},
	".divx": {},
}

// MatchFile returns the 1-based index of the file matching the requested
// season and episode. Only files with a recognized video extension are
// considered; the returned index always refers to the original list. When no
// file matches a pattern family the first video file is returned as a
// fallback. ok is false only when the list contains no video files at all.
func MatchFile(files []string, season, episode int) (index int, ok bool) {
	firstVideo := 0

	for i, name := range files {
		if !isVideo(name) {
			continue
		}
		if firstVideo == 0 {
			firstVideo = i + 1
		}
		if matchesEpisode(name, season, episode) {
			return i + 1, true
		}
	}

	if firstVideo > 0 {
		return firstVideo, true
	}
	return 0, false
}

func matchesEpisode(name string, season, episode int) bool {
	for _, re := range patternFamilies {
		for _, groups := range re.FindAllStringSubmatch(name, -1) {
			s, err := strconv.Atoi(groups[1])
			if err != nil {
				continue
			}
			e, err := strconv.Atoi(groups[2])
			if err != nil {
				continue
			}
			if s == season && e == episode {
				return true
			}
		}
	}
	return false
}

func isVideo(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := videoExtensions[ext]
	return ok
}
