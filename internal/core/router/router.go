// Package router validates HTTP query parameters and dispatches to the fetch
// orchestrator and the blacklist store.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mealradar/placecache/internal/blacklist"
	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/observability"
	"github.com/mealradar/placecache/internal/orchestrator"
	"github.com/mealradar/placecache/internal/sharedcache"
	"github.com/mealradar/placecache/internal/spatial"
)

const defaultLimit = 20

// PlacesRequest is a validated places query.
type PlacesRequest struct {
	Center       model.Coordinate
	RadiusMeters int
	Category     string
	Limit        int
	ForceRefresh bool
	ShownIDs     []string
}

type placesResponse struct {
	Places []model.Place `json:"places"`
	Count  int           `json:"count"`
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParsePlacesRequest validates lat, lng, radius, and the optional knobs.
// An unknown radius snaps to the nearest supported tier rather than erroring.
func ParsePlacesRequest(r *http.Request) (PlacesRequest, error) {
	q := r.URL.Query()

	lat, err := parseFloat(q.Get("lat"))
	if err != nil {
		return PlacesRequest{}, fmt.Errorf("lat: %w", err)
	}
	lng, err := parseFloat(q.Get("lng"))
	if err != nil {
		return PlacesRequest{}, fmt.Errorf("lng: %w", err)
	}
	if lat < -90 || lat > 90 {
		return PlacesRequest{}, errors.New("lat out of range")
	}
	if lng < -180 || lng > 180 {
		return PlacesRequest{}, errors.New("lng out of range")
	}

	radius := 3000
	if raw := strings.TrimSpace(q.Get("radius")); raw != "" {
		radius, err = strconv.Atoi(raw)
		if err != nil {
			return PlacesRequest{}, fmt.Errorf("radius: %w", err)
		}
	}

	limit := defaultLimit
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return PlacesRequest{}, errors.New("limit must be a positive integer")
		}
	}

	var shown []string
	if raw := strings.TrimSpace(q.Get("shown")); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				shown = append(shown, id)
			}
		}
	}

	return PlacesRequest{
		Center:       model.Coordinate{Lat: lat, Lng: lng},
		RadiusMeters: spatial.NormalizeRadius(radius),
		Category:     strings.TrimSpace(q.Get("category")),
		Limit:        limit,
		ForceRefresh: q.Get("force") == "true" || q.Get("force") == "1",
		ShownIDs:     shown,
	}, nil
}

func parseFloat(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("missing required parameter")
	}
	return strconv.ParseFloat(raw, 64)
}

// HandlePlaces serves GET /places.
func HandlePlaces(logger *slog.Logger, orch *orchestrator.Orchestrator) http.HandlerFunc {
	return instrumented("/places", func(w http.ResponseWriter, r *http.Request) {
		req, err := ParsePlacesRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		places := orch.Fetch(r.Context(), orchestrator.Request{
			Center:       req.Center,
			RadiusMeters: req.RadiusMeters,
			Category:     req.Category,
			Limit:        req.Limit,
			ForceRefresh: req.ForceRefresh,
		})
		writeJSON(logger, w, http.StatusOK, placesResponse{Places: places, Count: len(places)})
	})
}

// HandlePlacesFresh serves GET /places/fresh: like /places but excluding ids
// listed in the shown parameter.
func HandlePlacesFresh(logger *slog.Logger, orch *orchestrator.Orchestrator) http.HandlerFunc {
	return instrumented("/places/fresh", func(w http.ResponseWriter, r *http.Request) {
		req, err := ParsePlacesRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		places := orch.FetchFresh(r.Context(), orchestrator.Request{
			Center:       req.Center,
			RadiusMeters: req.RadiusMeters,
			Category:     req.Category,
			Limit:        req.Limit,
		}, req.ShownIDs)
		writeJSON(logger, w, http.StatusOK, placesResponse{Places: places, Count: len(places)})
	})
}

// HandleRecentBuckets serves GET /buckets/recent, an operator view of the
// most recently written shared buckets.
func HandleRecentBuckets(logger *slog.Logger, shared *sharedcache.Store) http.HandlerFunc {
	return instrumented("/buckets/recent", func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = n
		}
		buckets, err := shared.Recent(r.Context(), limit)
		if err != nil {
			logger.Error("recent bucket listing failed", "err", err)
			http.Error(w, "shared tier unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{
			"buckets": buckets,
			"count":   len(buckets),
		})
	})
}

type reportRequest struct {
	PlaceID string `json:"place_id"`
	Name    string `json:"name"`
	Reason  string `json:"reason"`
}

// HandleBlacklistReport serves POST /blacklist.
func HandleBlacklistReport(logger *slog.Logger, bl *blacklist.Store) http.HandlerFunc {
	return instrumented("/blacklist", func(w http.ResponseWriter, r *http.Request) {
		var req reportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.PlaceID) == "" {
			http.Error(w, "place_id is required", http.StatusBadRequest)
			return
		}
		if err := bl.Report(r.Context(), req.PlaceID, req.Name, req.Reason); err != nil {
			logger.Error("blacklist report failed", "place_id", req.PlaceID, "err", err)
			http.Error(w, "report not recorded", http.StatusInternalServerError)
			return
		}
		writeJSON(logger, w, http.StatusAccepted, map[string]string{"status": "recorded"})
	})
}

// HandleBlacklistList serves GET /blacklist.
func HandleBlacklistList(logger *slog.Logger, bl *blacklist.Store) http.HandlerFunc {
	return instrumented("/blacklist", func(w http.ResponseWriter, r *http.Request) {
		entries := bl.List(r.Context())
		writeJSON(logger, w, http.StatusOK, map[string]any{
			"entries": entries,
			"count":   len(entries),
		})
	})
}

// HandleBlacklistClearLocal serves DELETE /blacklist/local.
func HandleBlacklistClearLocal(logger *slog.Logger, bl *blacklist.Store) http.HandlerFunc {
	return instrumented("/blacklist/local", func(w http.ResponseWriter, r *http.Request) {
		if err := bl.ClearLocal(r.Context()); err != nil {
			logger.Error("blacklist local clear failed", "err", err)
			http.Error(w, "clear failed", http.StatusInternalServerError)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]string{"status": "cleared"})
	})
}

func instrumented(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

func writeJSON(logger *slog.Logger, w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response write failed", "err", err)
	}
}
