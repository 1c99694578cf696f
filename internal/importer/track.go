package importer

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/title"
)

var leadingTrackNumber = regexp.MustCompile(`^(\d{1,3})\b`)

// matchTrack links an audio filename to an album track, first by leading
// track number, then by normalized-title containment.
func matchTrack(tracks []store.Track, filename string) *store.Track {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))

	if m := leadingTrackNumber.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			for i := range tracks {
				if tracks[i].TrackNumber == n {
					return &tracks[i]
				}
			}
		}
	}

	normalized := title.Normalize(name)
	for i := range tracks {
		t := title.Normalize(tracks[i].Title)
		if t != "" && strings.Contains(normalized, t) {
			return &tracks[i]
		}
	}
	return nil
}
