package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/oleg-messenger/oleg/internal/engine"
	"github.com/oleg-messenger/oleg/internal/store"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	engine.Stats
	Connections int           `json:"connections"`
	Started     string        `json:"started"`
	Mirror      *store.Counts `json:"mirror,omitempty"`
}

// Stats returns in-memory counts, plus the mirror's row counts when a
// database is configured.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Stats:   h.engine.Stats(),
		Started: formatTimeAgo(h.started),
	}
	if h.hub != nil {
		resp.Connections = h.hub.Connections()
	}

	if h.mirror.Enabled() {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		// Non-fatal, the in-memory state is authoritative
		counts, err := h.mirror.Counts(ctx)
		if err != nil {
			h.logger.Warn().Err(err).Msg("mirror counts failed")
		} else {
			resp.Mirror = &counts
		}
	}

	h.JSON(w, http.StatusOK, resp)
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute") + " ago"
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour") + " ago"
	default:
		return plural(int(diff.Hours()/24), "day") + " ago"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
