package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
)

const maxBodyBytes = 64 << 10

// artists handles GET /artists?artist=.
func (s *Server) artists(w http.ResponseWriter, r *http.Request) {
	artists, err := s.svc.ResolveArtists(r.Context(), r.URL.Query().Get("artist"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, artists)
}

// cachedArtists handles GET /artists/cached.
func (s *Server) cachedArtists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListCached(r.Context()))
}

// artistSongs handles GET /artist-songs?artistPath=.
func (s *Server) artistSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.svc.ResolveArtistSongs(r.Context(), r.URL.Query().Get("artistPath"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// search handles GET /search?artist=&song=.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q, err := catalog.NewSearchQuery(r.URL.Query().Get("artist"), r.URL.Query().Get("song"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.svc.Search(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// chordSheet handles GET /chord-sheet?url=.
func (s *Server) chordSheet(w http.ResponseWriter, r *http.Request) {
	content, err := s.svc.ChordSheet(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, content)
}

// songMetadata handles GET /song-metadata?url=.
func (s *Server) songMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := s.svc.Metadata(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

type addSongRequest struct {
	ArtistPath string       `json:"artistPath"`
	Song       catalog.Song `json:"song"`
}

// addSong handles POST /artist-songs/add.
func (s *Server) addSong(w http.ResponseWriter, r *http.Request) {
	var req addSongRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	songs, err := s.svc.AddSong(r.Context(), req.ArtistPath, req.Song)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

type removeSongRequest struct {
	ArtistPath string `json:"artistPath"`
	SongPath   string `json:"songPath"`
}

// removeSong handles DELETE /artist-songs/remove. The body is optional when
// artistPath and songPath are passed as query parameters.
func (s *Server) removeSong(w http.ResponseWriter, r *http.Request) {
	req := removeSongRequest{
		ArtistPath: r.URL.Query().Get("artistPath"),
		SongPath:   r.URL.Query().Get("songPath"),
	}
	if req.ArtistPath == "" || req.SongPath == "" {
		if err := decodeBody(w, r, &req); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	songs, err := s.svc.RemoveSong(r.Context(), req.ArtistPath, req.SongPath)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if songs == nil {
		songs = []catalog.Song{}
	}
	writeJSON(w, http.StatusOK, songs)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", catalog.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON: %s", catalog.ErrValidation, err.Error())
	}
	return nil
}
