// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/streambrr/internal/resolver"
	"github.com/autobrr/streambrr/internal/scraper"
)

// StreamsHandler resolves media ids to playable debrid streams.
type StreamsHandler struct {
	resolver *resolver.Service
}

func NewStreamsHandler(resolverService *resolver.Service) *StreamsHandler {
	return &StreamsHandler{
		resolver: resolverService,
	}
}

func (h *StreamsHandler) Routes(r chi.Router) {
	r.Get("/streams/{mediaType}/{mediaID}", h.GetStreams)
}

type streamsResponse struct {
	Streams []resolver.Stream `json:"streams"`
}

func (h *StreamsHandler) GetStreams(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "mediaID")

	req := resolver.Request{
		MediaID:    mediaID,
		Credential: r.Header.Get("X-Debrid-Token"),
	}

	switch mediaType := chi.URLParam(r, "mediaType"); mediaType {
	case "movie":
		req.Kind = scraper.MediaKindMovie
	case "series":
		req.Kind = scraper.MediaKindSeries

		// Season 0 is valid, specials land there
		season, err := strconv.Atoi(r.URL.Query().Get("season"))
		if err != nil || season < 0 {
			RespondError(w, http.StatusBadRequest, "season must be a non-negative integer")
			return
		}

		episode, err := strconv.Atoi(r.URL.Query().Get("episode"))
		if err != nil || episode < 1 {
			RespondError(w, http.StatusBadRequest, "episode must be a positive integer")
			return
		}

		req.Season = season
		req.Episode = episode
	default:
		RespondError(w, http.StatusBadRequest, "mediaType must be movie or series")
		return
	}

	streams, err := h.resolver.Resolve(r.Context(), req)
	if err != nil {
		// Resolution only fails when the caller went away, there is nobody
		// left to write a response to
		log.Debug().Err(err).Str("mediaId", mediaID).Msg("Stream resolution aborted")
		return
	}

	RespondJSON(w, http.StatusOK, streamsResponse{Streams: streams})
}
