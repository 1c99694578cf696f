// Package release parses release and download-folder names into the media
// attributes used for matching: show/season/episode, artist/album,
// author/book, or movie title and year.
package release

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind is the media kind detected from a release name.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindEpisode Kind = "episode"
	KindAlbum   Kind = "album"
	KindBook    Kind = "book"
)

// Parsed holds the attributes extracted from a release or folder name.
type Parsed struct {
	Kind    Kind
	Title   string
	Year    int
	Season  int
	Episode int
	Artist  string
	Author  string
}

var (
	tvRegex    = regexp.MustCompile(`(?i)(.+?)[\s.]*(?:S(\d+)E(\d+)|(\d+)x(\d+))`)
	musicRegex = regexp.MustCompile(`(?i)^(.+?) - (.+?)\s+(?:CD|LP|EP|FLAC|MP3|WEB|Vinyl|\d{4})\b`)
	bookBy     = regexp.MustCompile(`(?i)^(.+?) by (.+?)$`)
	bookDash   = regexp.MustCompile(`^(.+?) - (.+?)$`)
	bookHint   = regexp.MustCompile(`(?i)\b(epub|mobi|pdf|audiobook|ebook)\b`)
	yearRegex  = regexp.MustCompile(`\b(19|20)\d{2}\b`)

	// Tokens accepted immediately after a movie title: sources, resolutions,
	// codecs, and audio formats. Anything else after the title means the
	// release is for a different (longer-titled) work.
	qualityTokens = map[string]bool{
		"bluray": true, "blu": true, "bdrip": true, "brrip": true, "remux": true,
		"web": true, "webdl": true, "web-dl": true, "webrip": true,
		"hdtv": true, "dvdrip": true, "dvd": true, "uhd": true,
		"2160p": true, "1080p": true, "720p": true, "480p": true, "4k": true,
		"x264": true, "x265": true, "h264": true, "h265": true, "hevc": true, "xvid": true,
		"dts": true, "atmos": true, "truehd": true, "ddp": true, "dd5": true,
		"aac": true, "ac3": true, "flac": true,
		"proper": true, "repack": true, "extended": true, "internal": true,
		"multi": true, "hdr": true, "dv": true, "imax": true,
	}
)

// Parse extracts media attributes from a release or folder name. Patterns
// are tried in a fixed order (TV, music, book, movie); the first hit wins.
func Parse(name string) *Parsed {
	// Strip a file extension and flatten dot/underscore separators, keeping
	// hyphens intact for the "Artist - Album" and "Title - Author" forms.
	cleaned := strings.TrimSpace(name)
	cleaned = strings.ReplaceAll(cleaned, ".", " ")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return nil
	}

	if p := parseTV(cleaned); p != nil {
		return p
	}
	if p := parseMusic(cleaned); p != nil {
		return p
	}
	if p := parseBook(cleaned); p != nil {
		return p
	}
	return parseMovie(cleaned)
}

func parseTV(name string) *Parsed {
	m := tvRegex.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	season, episode := m[2], m[3]
	if season == "" {
		season, episode = m[4], m[5]
	}
	return &Parsed{
		Kind:    KindEpisode,
		Title:   strings.TrimSpace(m[1]),
		Season:  atoi(season),
		Episode: atoi(episode),
	}
}

func parseMusic(name string) *Parsed {
	m := musicRegex.FindStringSubmatch(name)
	if m == nil {
		return nil
	}
	return &Parsed{
		Kind:   KindAlbum,
		Artist: strings.TrimSpace(m[1]),
		Title:  strings.TrimSpace(m[2]),
	}
}

// parseBook handles "Title by Author" and "Title - Author", gated on the
// presence of an ebook format hint. The bare dash form is ambiguous: the
// source convention assigns the left side to the title, so "A - B" with no
// "by" may swap author and title for some release groups. Known limitation.
func parseBook(name string) *Parsed {
	if !bookHint.MatchString(name) {
		return nil
	}
	stripped := bookHint.ReplaceAllString(name, "")
	stripped = strings.TrimSpace(strings.Trim(stripped, "-[]() "))

	if m := bookBy.FindStringSubmatch(stripped); m != nil {
		return &Parsed{
			Kind:   KindBook,
			Title:  strings.TrimSpace(m[1]),
			Author: strings.TrimSpace(m[2]),
		}
	}
	if m := bookDash.FindStringSubmatch(stripped); m != nil {
		return &Parsed{
			Kind:   KindBook,
			Title:  strings.TrimSpace(m[1]),
			Author: strings.TrimSpace(m[2]),
		}
	}
	return nil
}

func parseMovie(name string) *Parsed {
	words := strings.Fields(name)
	titleEnd := len(words)
	for i, w := range words {
		if IsQualityToken(w) {
			titleEnd = i
			break
		}
	}

	p := &Parsed{Kind: KindMovie}
	if y := yearRegex.FindString(name); y != "" {
		p.Year = atoi(y)
	}

	// Trim a trailing year (possibly parenthesized) off the title words.
	titleWords := words[:titleEnd]
	if n := len(titleWords); n > 1 {
		last := strings.Trim(titleWords[n-1], "()[]")
		if yearRegex.MatchString(last) && len(last) == 4 {
			titleWords = titleWords[:n-1]
		}
	}
	p.Title = strings.Join(titleWords, " ")
	if p.Title == "" {
		return nil
	}
	return p
}

// IsQualityToken reports whether a single word is a recognized
// quality/source/codec token.
func IsQualityToken(word string) bool {
	w := strings.ToLower(strings.Trim(word, "()[]-"))
	if qualityTokens[w] {
		return true
	}
	// Compound tokens like "web-dl" survive field splitting.
	if i := strings.IndexByte(w, '-'); i > 0 {
		return qualityTokens[w[:i]] && qualityTokens[w[i+1:]]
	}
	return false
}

// IsYear reports whether a word is a plausible 4-digit release year.
func IsYear(word string) bool {
	w := strings.Trim(word, "()[]")
	return len(w) == 4 && yearRegex.MatchString(w)
}

// EpisodeTag formats the canonical zero-padded sNNeMM tag.
func EpisodeTag(season, episode int) string {
	return fmt.Sprintf("s%02de%02d", season, episode)
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
