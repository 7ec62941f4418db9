package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MJE43/stake-pf-predict-go/internal/backend"
	"github.com/MJE43/stake-pf-predict-go/internal/engine"
	"github.com/MJE43/stake-pf-predict-go/internal/games"
	"github.com/MJE43/stake-pf-predict-go/internal/store"
)

const maxBodyBytes = 64 << 10

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var inputErr *engine.InputError
		if errors.As(err, &inputErr) {
			s.errorHandler.HandleError(w, r, inputErr)
			return false
		}
		s.errorHandler.HandleValidationError(w, r, "body", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleBackend(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, BackendResponse{
		Status:        s.selector.Status(),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GamesResponse{
		Games:         games.List(),
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind, err := backend.ParseGameKind(req.Game)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	seeds, err := req.seeds()
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	pred, err := s.pipeline.Predict(r.Context(), kind, seeds)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PredictResponse{Prediction: pred, EngineVersion: EngineVersion})
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	var req DigestRequest
	if !s.decode(w, r, &req) {
		return
	}
	seeds, err := req.seeds()
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	digest, features, err := s.pipeline.Digest(seeds)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, DigestResponse{
		Algorithm:     s.pipeline.Algorithm(),
		Digest:        digest.Hex(),
		FeatureSize:   len(features),
		Features:      features,
		Seeds:         seeds,
		EngineVersion: EngineVersion,
	})
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.historyDisabled(w, r)
		return
	}
	q := store.PredictionsQuery{
		Game:       r.URL.Query().Get("game"),
		ClientSeed: r.URL.Query().Get("client_seed"),
	}
	var ok bool
	if q.Page, ok = s.intParam(w, r, "page"); !ok {
		return
	}
	if q.PerPage, ok = s.intParam(w, r, "per_page"); !ok {
		return
	}
	if q.Game != "" {
		kind, err := backend.ParseGameKind(q.Game)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		q.Game = string(kind)
	}

	list, err := s.db.ListPredictions(r.Context(), q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, PredictionsResponse{PredictionsList: list, EngineVersion: EngineVersion})
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.historyDisabled(w, r)
		return
	}
	p, err := s.db.GetPrediction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		s.errorHandler.HandleValidationError(w, r, name, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

func (s *Server) historyDisabled(w http.ResponseWriter, r *http.Request) {
	engineErr := NewError(ErrTypeServiceUnavailable, "Prediction history is disabled").
		WithContext("path", r.URL.Path).
		Build()
	s.errorHandler.logError(r, engineErr, http.StatusServiceUnavailable)
	s.errorHandler.writeErrorResponse(w, http.StatusServiceUnavailable, engineErr)
}
