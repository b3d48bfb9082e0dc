// Package api exposes the read surface and the badge catalog over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gamification-service/internal/badge"
	"gamification-service/internal/criteria"
	"gamification-service/internal/leaderboard"
	"gamification-service/internal/model"
	"gamification-service/internal/profile"
	"gamification-service/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	defaultLimit   = 50
	maxLimit       = 200
	requestTimeout = 30 * time.Second
)

var errBadRequest = errors.New("bad request")

type Leaderboard interface {
	Top(ctx context.Context, n int) ([]leaderboard.Standing, leaderboard.Source, error)
	Rank(ctx context.Context, userID string) (leaderboard.Standing, bool, leaderboard.Source, error)
}

type Rankings interface {
	Global(ctx context.Context, limit int) ([]model.RankingEntry, error)
	Monthly(ctx context.Context, departmentID string, limit int) ([]model.RankingEntry, error)
}

type Profiles interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
	History(ctx context.Context, userID string, cursor uint64, limit int) (*profile.HistoryPage, error)
}

type Badges interface {
	List(ctx context.Context) ([]model.Badge, error)
	Get(ctx context.Context, code string) (*model.Badge, error)
	Create(ctx context.Context, in badge.Input) (*model.Badge, error)
	Update(ctx context.Context, code string, p badge.Patch) (*model.Badge, error)
	Delete(ctx context.Context, code string) error
	Evaluate(ctx context.Context, userID string) ([]criteria.Verdict, error)
	Reprocess(ctx context.Context, userID string) (badge.ReprocessReport, error)
}

// Server wires the HTTP handlers to the services.
type Server struct {
	leaderboard Leaderboard
	rankings    Rankings
	profiles    Profiles
	badges      Badges
	log         *logrus.Logger
}

func NewServer(lb Leaderboard, rankings Rankings, profiles Profiles, badges Badges, log *logrus.Logger) *Server {
	return &Server{
		leaderboard: lb,
		rankings:    rankings,
		profiles:    profiles,
		badges:      badges,
		log:         log,
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			r.Get("/leaderboard", s.handleTop)
			r.Get("/leaderboard/{userID}", s.handleRank)

			r.Get("/rankings/global", s.handleGlobalRanking)
			r.Get("/rankings/monthly", s.handleMonthlyRanking)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Get("/profile", s.handleProfile)
				r.Get("/xp-history", s.handleHistory)
				r.Get("/badge-verdicts", s.handleVerdicts)
			})
		})

		r.Route("/badges", func(r chi.Router) {
			// Reprocessing commits grants user by user, so it runs to completion
			// outside the request timeout.
			r.Post("/reprocess", s.handleReprocess)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))

				r.Get("/", s.handleListBadges)
				r.Post("/", s.handleCreateBadge)
				r.Get("/{code}", s.handleGetBadge)
				r.Patch("/{code}", s.handleUpdateBadge)
				r.Delete("/{code}", s.handleDeleteBadge)
			})
		})
	})

	return r
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	top, source, err := s.leaderboard.Top(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": top,
		"source":  source,
	})
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	st, ok, source, err := s.leaderboard.Rank(r.Context(), userID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "user has no leaderboard score")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rank":    st.Rank,
		"user_id": st.UserID,
		"score":   st.Score,
		"source":  source,
	})
}

func (s *Server) handleGlobalRanking(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	entries, err := s.rankings.Global(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleMonthlyRanking(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	entries, err := s.rankings.Monthly(r.Context(), r.URL.Query().Get("department"), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.profiles.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var cursor uint64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "cursor must be a positive integer")
			return
		}
		cursor = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	page, err := s.profiles.History(r.Context(), chi.URLParam(r, "userID"), cursor, limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleVerdicts(w http.ResponseWriter, r *http.Request) {
	verdicts, err := s.badges.Evaluate(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verdicts)
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.badges.List(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

func (s *Server) handleGetBadge(w http.ResponseWriter, r *http.Request) {
	b, err := s.badges.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCreateBadge(w http.ResponseWriter, r *http.Request) {
	var in badge.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.badges.Create(r.Context(), in)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleUpdateBadge(w http.ResponseWriter, r *http.Request) {
	var p badge.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.badges.Update(r.Context(), chi.URLParam(r, "code"), p)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBadge(w http.ResponseWriter, r *http.Request) {
	if err := s.badges.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	report, err := s.badges.Reprocess(context.WithoutCancel(r.Context()), r.URL.Query().Get("user"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadRequest
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

// writeFailure maps service errors to status codes. Unexpected errors are
// logged and reported as 500 without detail.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrUserNotFound), errors.Is(err, repository.ErrBadgeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrDuplicateBadge):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, badge.ErrInvalidBadge), errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.WithError(err).WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"status":  status,
		},
	})
}
