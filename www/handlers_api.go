package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MakaremHind/human-in-loop-warehouse/orders"
	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
	"github.com/MakaremHind/human-in-loop-warehouse/query"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeLookup maps a query-tool result onto HTTP: ErrNotFound is 404,
// anything else is a 500.
func writeLookup(w http.ResponseWriter, v any, err error) {
	if err != nil {
		if errors.Is(err, query.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handlers) apiHealth(w http.ResponseWriter, r *http.Request) {
	lst := h.engine.Listener()
	masterOnline, masterInfo := h.engine.Tools().MasterStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"bus_online":        lst.BusOnline(),
		"controller_online": lst.ControllerOnline(0),
		"master_claim":      masterOnline,
		"master_info":       masterInfo,
		"last_master_seen":  lst.LastMasterSeen(),
		"snapshot_topics":   len(h.engine.Snapshot().Topics()),
		"journal":           h.engine.DB() != nil,
	})
}

func (h *Handlers) apiSnapshotTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Snapshot().Topics())
}

func (h *Handlers) apiSnapshot(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic parameter required")
		return
	}
	payload, ok := h.engine.Snapshot().Get(topic)
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot for topic "+topic)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handlers) apiListBoxes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Tools().ListBoxes())
}

func (h *Handlers) apiFindBox(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid box id")
		return
	}
	box, err := h.engine.Tools().FindBox(id)
	writeLookup(w, box, err)
}

func (h *Handlers) apiFindBoxByColor(w http.ResponseWriter, r *http.Request) {
	color := r.URL.Query().Get("color")
	if color == "" {
		writeError(w, http.StatusBadRequest, "color parameter required")
		return
	}
	boxes, err := h.engine.Tools().FindBoxByColor(color)
	writeLookup(w, boxes, err)
}

func (h *Handlers) apiListModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Tools().ListModules())
}

func (h *Handlers) apiFindModule(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.Tools().FindModule(chi.URLParam(r, "namespace"))
	writeLookup(w, m, err)
}

func (h *Handlers) apiClosestModule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	x, errX := strconv.ParseFloat(q.Get("x"), 64)
	y, errY := strconv.ParseFloat(q.Get("y"), 64)
	if errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, "x and y parameters required")
		return
	}
	match, err := h.engine.Tools().FindClosestModule(x, y)
	writeLookup(w, match, err)
}

func (h *Handlers) apiPlanPath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, goal := q.Get("start"), q.Get("goal")
	if start == "" || goal == "" {
		writeError(w, http.StatusBadRequest, "start and goal parameters required")
		return
	}
	path, err := h.engine.Tools().PlanPath(start, goal)
	writeLookup(w, map[string]any{"path": path}, err)
}

func (h *Handlers) apiListOrders(w http.ResponseWriter, r *http.Request) {
	// Journal first; fall back to the snapshot cache when running without
	// a database.
	if db := h.engine.DB(); db != nil {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		recs, err := db.ListRecentOrders(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}
	cached, err := h.engine.Tools().ListOrders()
	writeLookup(w, cached, err)
}

func (h *Handlers) apiLastOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.Tools().LastOrder()
	writeLookup(w, order, err)
}

func (h *Handlers) apiConfirmLastOrder(w http.ResponseWriter, r *http.Request) {
	msg, err := h.engine.Tools().ConfirmLastOrder()
	writeLookup(w, map[string]any{"message": msg}, err)
}

func (h *Handlers) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	if db := h.engine.DB(); db != nil {
		rec, err := db.GetOrder(cid)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	resp, ok := h.engine.Orders().Result(cid)
	if !ok {
		writeError(w, http.StatusNotFound, "no result for order "+cid)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) apiOrderEvents(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "no journal database")
		return
	}
	events, err := db.ListOrderEvents(chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handlers) apiDiagnose(w http.ResponseWriter, r *http.Request) {
	reason, err := h.engine.Tools().Diagnose()
	writeLookup(w, map[string]any{"reason": reason}, err)
}

type dispatchPayload struct {
	Start     string         `json:"start"`
	StartPose *protocol.Pose `json:"start_pose,omitempty"`
	Goal      string         `json:"goal"`
	GoalPose  *protocol.Pose `json:"goal_pose,omitempty"`
	BoxID     *int           `json:"box_id,omitempty"`
	BoxColor  string         `json:"box_color,omitempty"`
	Wait      bool           `json:"wait"`
	TimeoutS  float64        `json:"timeout_s,omitempty"`
}

func (h *Handlers) apiDispatchOrder(w http.ResponseWriter, r *http.Request) {
	var p dispatchPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	req := orders.DispatchRequest{
		Start:     p.Start,
		StartPose: p.StartPose,
		Goal:      p.Goal,
		GoalPose:  p.GoalPose,
		BoxID:     p.BoxID,
		BoxColor:  p.BoxColor,
	}

	if !p.Wait {
		cid, err := h.engine.Orders().Dispatch(req)
		if err != nil {
			writeDispatchError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"correlation_id": cid})
		return
	}

	timeout := time.Duration(p.TimeoutS * float64(time.Second))
	outcome, err := h.engine.Orders().DispatchAndAwait(r.Context(), req, timeout)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handlers) apiCancelOrder(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	if err := h.engine.Orders().Cancel(cid); err != nil {
		if errors.Is(err, orders.ErrAlreadyResolved) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": cid})
}

func writeDispatchError(w http.ResponseWriter, err error) {
	if errors.Is(err, orders.ErrModuleNotFound) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
