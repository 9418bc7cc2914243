package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/jamspace/internal/apperror"
	"github.com/sakif/jamspace/internal/auth"
	"github.com/sakif/jamspace/internal/service"
)

// JamHandler serves /api/jams and /api/join.
type JamHandler struct {
	jams   *service.JamService
	logger *slog.Logger
}

// NewJamHandler creates a JamHandler backed by the jam service.
func NewJamHandler(jams *service.JamService, logger *slog.Logger) *JamHandler {
	return &JamHandler{jams: jams, logger: logger}
}

// HandleList handles GET /api/jams?limit=&offset=
func (h *JamHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	jams, err := h.jams.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(jams))
}

type createJamRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Genre           string `json:"genre"`
	SkillLevel      string `json:"skill_level"`
	Location        string `json:"location"`
	DateTime        string `json:"date_time"`
	MaxParticipants int    `json:"max_participants"`
}

// HandleCreate handles POST /api/jams. date_time is RFC 3339.
func (h *JamHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	var req createJamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var when time.Time
	if req.DateTime != "" {
		t, err := time.Parse(time.RFC3339, req.DateTime)
		if err != nil {
			writeError(w, h.logger, apperror.ValidationFailed("date_time",
				"Datetime has wrong format. Use YYYY-MM-DDThh:mm:ssZ."))
			return
		}
		when = t
	}

	jam, err := h.jams.Create(r.Context(), accountID, service.JamInput{
		Title:           req.Title,
		Description:     req.Description,
		Genre:           req.Genre,
		SkillLevel:      req.SkillLevel,
		Location:        req.Location,
		DateTime:        when,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, jam)
}

// HandleGet handles GET /api/jams/{id}.
func (h *JamHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	jam, err := h.jams.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, jam)
}

// HandleDelete handles DELETE /api/jams/{id}. Creator only.
func (h *JamHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	if err := h.jams.Delete(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMine handles GET /api/jams/mine.
func (h *JamHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	jams, err := h.jams.MyJams(r.Context(), accountID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(jams))
}

// HandleJoin handles POST /api/join with {"jam_session": id}.
func (h *JamHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	var req struct {
		JamSession string `json:"jam_session"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	p, err := h.jams.Join(r.Context(), accountID, req.JamSession)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleLeave handles DELETE /api/jams/{id}/leave.
func (h *JamHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	if err := h.jams.Leave(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleParticipants handles GET /api/jams/{id}/participants.
func (h *JamHandler) HandleParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.jams.Participants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(ps))
}

// HandleMessages handles GET /api/jams/{id}/messages.
func (h *JamHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.jams.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(msgs))
}

// HandlePostMessage handles POST /api/jams/{id}/messages with {"text": ...}.
func (h *JamHandler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	accountID, _ := auth.AccountIDFromContext(r.Context())

	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	msg, err := h.jams.PostMessage(r.Context(), accountID, chi.URLParam(r, "id"), req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}
