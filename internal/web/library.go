package web

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"net/http"
	"path"
	"time"

	"tunevault/internal/library"
)

type SongResponse struct {
	Key      string `json:"key"`
	Folder   string `json:"folder"`
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
}

func toSongResponse(song library.Song) SongResponse {
	return SongResponse{
		Key:      song.Key,
		Folder:   song.Folder,
		Filename: song.Filename,
		Name:     song.Name(),
		Size:     song.Size,
	}
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request, sess Session) {
	folders, err := s.store.ListFolders(r.Context())
	if err != nil {
		s.logger.Error("Listing folders failed: %v", err)
		writeError(w, 0, err)
		return
	}
	if folders == nil {
		folders = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"folders": folders})
}

func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request, sess Session) {
	songs, err := s.store.ListSongs(r.Context(), r.PathValue("folder"))
	if err != nil {
		s.logger.Error("Listing songs failed: %v", err)
		writeError(w, 0, err)
		return
	}

	resp := make([]SongResponse, len(songs))
	for i, song := range songs {
		resp[i] = toSongResponse(song)
	}
	writeJSON(w, http.StatusOK, map[string][]SongResponse{"songs": resp})
}

// handleRandomSong picks a song from the folder, avoiding ?exclude= when
// there is anything else to choose.
func (s *Server) handleRandomSong(w http.ResponseWriter, r *http.Request, sess Session) {
	folder := r.PathValue("folder")
	songs, err := s.store.ListSongs(r.Context(), folder)
	if err != nil {
		writeError(w, 0, err)
		return
	}
	if len(songs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("folder %q has no songs", folder))
		return
	}

	candidates := songs
	if exclude := r.URL.Query().Get("exclude"); exclude != "" && len(songs) > 1 {
		candidates = candidates[:0:0]
		for _, song := range songs {
			if song.Key != exclude {
				candidates = append(candidates, song)
			}
		}
		if len(candidates) == 0 {
			candidates = songs
		}
	}

	writeJSON(w, http.StatusOK, toSongResponse(candidates[rand.IntN(len(candidates))]))
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request, sess Session) {
	key := r.URL.Query().Get("key")
	if key == "" || !library.IsSongKey(key) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: key must name an .mp3 object", ErrInvalidRequest))
		return
	}

	data, err := s.store.ReadSong(r.Context(), key)
	if err != nil {
		s.logger.Error("Reading %s failed: %v", key, err)
		writeError(w, 0, err)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	http.ServeContent(w, r, path.Base(key), time.Time{}, bytes.NewReader(data))
}
