// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package quality derives a structured quality descriptor from a release
// title. Extraction is keyword based and total: unknown tokens leave the
// corresponding field at its zero value, it never fails.
package quality

import "strings"

type Resolution string

const (
	ResolutionUnknown Resolution = "unknown"
	Resolution480p    Resolution = "480p"
	Resolution720p    Resolution = "720p"
	Resolution1080p   Resolution = "1080p"
	Resolution2160p   Resolution = "2160p"
	Resolution4K      Resolution = "4K"
)

type Source string

const (
	SourceUnknown Source = "unknown"
	SourceCAM     Source = "CAM"
	SourceTS      Source = "TS"
	SourceHDTV    Source = "HDTV"
	SourceWEBRip  Source = "WEBRip"
	SourceWEBDL   Source = "WEB-DL"
	SourceBluRay  Source = "BluRay"
	SourceREMUX   Source = "REMUX"
)

type Codec string

const (
	CodecUnknown Codec = "unknown"
	CodecH264    Codec = "H.264"
	CodecHEVC    Codec = "HEVC"
	CodecAV1     Codec = "AV1"
)

// Descriptor is the parsed quality of a single release title. Derived once,
// never mutated.
type Descriptor struct {
	Resolution Resolution `json:"resolution"`
	Source     Source     `json:"source"`
	Codec      Codec      `json:"codec"`
	Audio      string     `json:"audio,omitempty"`
	HDR        bool       `json:"hdr"`
}

// Keyword tables are matched in order, first match wins per field. Keywords
// are matched as whole tokens against the normalized title, so "cam" does not
// fire on "camera" and "remux" does not fire on "bdremux".
var resolutionKeywords = []struct {
	keyword string
	value   Resolution
}{
	{"4k", Resolution4K},
	{"uhd", Resolution4K},
	{"2160p", Resolution2160p},
	{"1080p", Resolution1080p},
	{"1080i", Resolution1080p},
	{"720p", Resolution720p},
	{"480p", Resolution480p},
}

var sourceKeywords = []struct {
	keyword string
	value   Source
}{
	{"remux", SourceREMUX},
	{"bdremux", SourceREMUX},
	{"bluray", SourceBluRay},
	{"blu ray", SourceBluRay},
	{"bdrip", SourceBluRay},
	{"brrip", SourceBluRay},
	{"web dl", SourceWEBDL},
	{"webdl", SourceWEBDL},
	{"webrip", SourceWEBRip},
	{"web rip", SourceWEBRip},
	{"hdtv", SourceHDTV},
	{"hdts", SourceTS},
	{"telesync", SourceTS},
	{"ts", SourceTS},
	{"camrip", SourceCAM},
	{"hdcam", SourceCAM},
	{"cam", SourceCAM},
}

var codecKeywords = []struct {
	keyword string
	value   Codec
}{
	{"x265", CodecHEVC},
	{"h265", CodecHEVC},
	{"h 265", CodecHEVC},
	{"hevc", CodecHEVC},
	{"x264", CodecH264},
	{"h264", CodecH264},
	{"h 264", CodecH264},
	{"avc", CodecH264},
	{"av1", CodecAV1},
}

var audioKeywords = []struct {
	keyword string
	value   string
}{
	{"atmos", "Atmos"},
	{"truehd", "TrueHD"},
	{"dts hd", "DTS-HD"},
	{"dts", "DTS"},
	{"eac3", "DDP"},
	{"ddp5 1", "DDP"},
	{"ddp7 1", "DDP"},
	{"ddp2 0", "DDP"},
	{"ddp", "DDP"},
	{"dd5 1", "AC3"},
	{"ac3", "AC3"},
	{"aac2 0", "AAC"},
	{"aac", "AAC"},
	{"flac", "FLAC"},
}

var hdrKeywords = []string{
	"hdr",
	"hdr10",
	"dolby vision",
	"dolbyvision",
	"dovi",
	"dv",
}

// Extract parses a release title into a Descriptor. Fields are independent:
// a title can set resolution, source, codec, audio and HDR from a single
// pass. Unmatched fields stay unknown/false.
func Extract(title string) Descriptor {
	normalized := normalize(title)

	d := Descriptor{
		Resolution: ResolutionUnknown,
		Source:     SourceUnknown,
		Codec:      CodecUnknown,
	}

	for _, kw := range resolutionKeywords {
		if containsToken(normalized, kw.keyword) {
			d.Resolution = kw.value
			break
		}
	}

	for _, kw := range sourceKeywords {
		if containsToken(normalized, kw.keyword) {
			d.Source = kw.value
			break
		}
	}

	for _, kw := range codecKeywords {
		if containsToken(normalized, kw.keyword) {
			d.Codec = kw.value
			break
		}
	}

	for _, kw := range audioKeywords {
		if containsToken(normalized, kw.keyword) {
			d.Audio = kw.value
			break
		}
	}

	for _, kw := range hdrKeywords {
		if containsToken(normalized, kw) {
			d.HDR = true
			break
		}
	}

	return d
}

// Label returns the single display label for a descriptor, preferring
// resolution over source type. Zero valued fields count as unknown.
func (d Descriptor) Label() string {
	if d.Resolution != ResolutionUnknown && d.Resolution != "" {
		return string(d.Resolution)
	}
	if d.Source != SourceUnknown && d.Source != "" {
		return string(d.Source)
	}
	return ""
}

var separatorReplacer = strings.NewReplacer(
	".", " ",
	"_", " ",
	"-", " ",
	"+", " ",
	",", " ",
	"/", " ",
	":", " ",
	"(", " ",
	")", " ",
	"[", " ",
	"]", " ",
)

// normalize lowercases the title and turns common separators into spaces so
// keywords can be matched as whole tokens.
func normalize(title string) string {
	return " " + separatorReplacer.Replace(strings.ToLower(title)) + " "
}

func containsToken(normalized, keyword string) bool {
	return strings.Contains(normalized, " "+keyword+" ")
}
