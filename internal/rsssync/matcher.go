package rsssync

import (
	"strconv"
	"strings"

	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/title"
)

// wanted is the snapshot of library items awaiting acquisition, loaded once
// per sync cycle. Matched items are removed so one cycle grabs at most one
// release per item.
type wanted struct {
	movies   []store.WantedMovie
	episodes []store.WantedEpisode
	albums   []store.WantedAlbum
	books    []store.WantedBook
}

func (w *wanted) empty() bool {
	return len(w.movies) == 0 && len(w.episodes) == 0 && len(w.albums) == 0 && len(w.books) == 0
}

// match holds the wanted item a release was matched against.
type match struct {
	movieID   *int64
	seriesID  *int64
	episodeID *int64
	albumID   *int64
	bookID    *int64
}

// matchRelease tries the release against each wanted set in fixed order:
// movies, then episodes, then albums, then books. The first hit wins and is
// removed from its set.
func (w *wanted) matchRelease(releaseTitle string) *match {
	normalized := title.Normalize(releaseTitle)
	if normalized == "" {
		return nil
	}

	for i, m := range w.movies {
		if movieMatches(normalized, m) {
			w.movies = append(w.movies[:i], w.movies[i+1:]...)
			id := m.ID
			return &match{movieID: &id}
		}
	}

	for i, e := range w.episodes {
		if episodeMatches(releaseTitle, e) {
			w.episodes = append(w.episodes[:i], w.episodes[i+1:]...)
			epID, srID := e.EpisodeID, e.SeriesID
			return &match{episodeID: &epID, seriesID: &srID}
		}
	}

	for i, a := range w.albums {
		if containsBoth(normalized, a.Artist, a.Title) {
			w.albums = append(w.albums[:i], w.albums[i+1:]...)
			id := a.AlbumID
			return &match{albumID: &id}
		}
	}

	for i, b := range w.books {
		if containsBoth(normalized, b.Author, b.Title) {
			w.books = append(w.books[:i], w.books[i+1:]...)
			id := b.BookID
			return &match{bookID: &id}
		}
	}

	return nil
}

// movieMatches requires the normalized release to open with the movie title,
// immediately followed by nothing, the movie's year, or a quality token.
// That boundary keeps "Alien" from claiming "Aliens" or "Alien Nation".
// A wanted year must additionally appear somewhere in the release.
func movieMatches(normalized string, m store.WantedMovie) bool {
	prefix := title.Normalize(m.Title)
	if prefix == "" || !strings.HasPrefix(normalized, prefix) {
		return false
	}
	if m.Year != 0 && !containsYear(normalized, m.Year) {
		return false
	}

	rest := strings.TrimSpace(normalized[len(prefix):])
	if rest == "" {
		return true
	}
	if !strings.HasPrefix(normalized[len(prefix):], " ") {
		// Title ends mid-word.
		return false
	}

	next := rest
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		next = rest[:i]
	}
	if release.IsYear(next) {
		y, _ := strconv.Atoi(strings.Trim(next, "()[]"))
		return m.Year == 0 || y == m.Year
	}
	return release.IsQualityToken(next)
}

func containsYear(normalized string, year int) bool {
	target := strconv.Itoa(year)
	for _, tok := range strings.Fields(normalized) {
		if strings.Trim(tok, "()[]") == target {
			return true
		}
	}
	return false
}

// episodeMatches parses the release for a season/episode tag and requires
// the exact episode numbers plus the show title somewhere in the pre-tag
// portion, so region or country suffixes do not break the match.
func episodeMatches(releaseTitle string, e store.WantedEpisode) bool {
	parsed := release.Parse(releaseTitle)
	if parsed.Kind != release.KindEpisode {
		return false
	}
	if parsed.Season != e.Season || parsed.Episode != e.Episode {
		return false
	}
	show := title.Normalize(e.ShowTitle)
	return show != "" && strings.Contains(title.Normalize(parsed.Title), show)
}

// containsBoth requires the normalized release to contain both names, used
// for albums (artist + album) and books (author + title).
func containsBoth(normalized, a, b string) bool {
	na, nb := title.Normalize(a), title.Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(normalized, na) && strings.Contains(normalized, nb)
}
