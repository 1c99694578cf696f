package scanner

import (
	"context"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/fetcharr/fetcharr/internal/release"
	"github.com/fetcharr/fetcharr/internal/store"
	"github.com/fetcharr/fetcharr/internal/title"
)

// candidateEpisodeLimit bounds the episode candidate set for orphan
// matching; the scanner looks at far fewer history items per tick.
const candidateEpisodeLimit = 500

// fuzzyThreshold is the Levenshtein distance ratio below which two short
// titles are considered the same work.
const fuzzyThreshold = 0.30

// fuzzyMaxLen disables edit-distance matching for long titles, where small
// ratios still mean whole words of difference.
const fuzzyMaxLen = 20

// libraryMatch names the library item a stray download folder belongs to.
type libraryMatch struct {
	movieID   *int64
	seriesID  *int64
	episodeID *int64
	albumID   *int64
	bookID    *int64
}

// matchLibrary parses a download name and searches file-less requested
// items for its owner.
func matchLibrary(ctx context.Context, st *store.Store, name string) (*libraryMatch, error) {
	parsed := release.Parse(name)
	if parsed == nil {
		return nil, nil
	}

	switch parsed.Kind {
	case release.KindEpisode:
		episodes, err := st.WantedEpisodes(ctx, candidateEpisodeLimit)
		if err != nil {
			return nil, err
		}
		for _, e := range episodes {
			if e.Season == parsed.Season && e.Episode == parsed.Episode &&
				titlesMatch(parsed.Title, e.ShowTitle) {
				epID, srID := e.EpisodeID, e.SeriesID
				return &libraryMatch{episodeID: &epID, seriesID: &srID}, nil
			}
		}

	case release.KindAlbum:
		albums, err := st.WantedAlbums(ctx)
		if err != nil {
			return nil, err
		}
		for _, a := range albums {
			if titlesMatch(parsed.Artist, a.Artist) && titlesMatch(parsed.Title, a.Title) {
				id := a.AlbumID
				return &libraryMatch{albumID: &id}, nil
			}
		}

	case release.KindBook:
		books, err := st.WantedBooks(ctx)
		if err != nil {
			return nil, err
		}
		for _, b := range books {
			if titlesMatch(parsed.Author, b.Author) && titlesMatch(parsed.Title, b.Title) {
				id := b.BookID
				return &libraryMatch{bookID: &id}, nil
			}
		}

	case release.KindMovie:
		movies, err := st.WantedMovies(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range movies {
			if !titlesMatch(parsed.Title, m.Title) {
				continue
			}
			// Folder names carry off-by-one years often enough to tolerate.
			if parsed.Year != 0 && m.Year != 0 && absDiff(parsed.Year, m.Year) > 1 {
				continue
			}
			id := m.ID
			return &libraryMatch{movieID: &id}, nil
		}
	}

	return nil, nil
}

// titlesMatch compares two titles on their strict forms: containment either
// way, or a small edit distance for short titles.
func titlesMatch(a, b string) bool {
	sa, sb := title.Strict(a), title.Strict(b)
	if sa == "" || sb == "" {
		return false
	}
	if strings.Contains(sa, sb) || strings.Contains(sb, sa) {
		return true
	}
	if len(sa) >= fuzzyMaxLen || len(sb) >= fuzzyMaxLen {
		return false
	}

	dist := edlib.LevenshteinDistance(sa, sb)
	longest := len(sa)
	if len(sb) > longest {
		longest = len(sb)
	}
	return float64(dist)/float64(longest) < fuzzyThreshold
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
