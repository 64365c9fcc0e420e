// Package www serves the JSON operations API and the SSE event stream for
// the warehouse bus core.
package www

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/MakaremHind/human-in-loop-warehouse/engine"
)

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	eventHub *EventHub
}

func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupEngineListeners(eng)

	h := &Handlers{
		engine:   eng,
		sessions: newSessionStore(eng.AppConfig().Web.SessionSecret),
		eventHub: hub,
	}
	h.ensureDefaultAdmin(eng.DB())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// SSE
	r.Get("/events", hub.SSEHandler)

	// Auth
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)

	// Read-only API
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.apiHealth)
		r.Get("/snapshot/topics", h.apiSnapshotTopics)
		r.Get("/snapshot", h.apiSnapshot)
		r.Get("/boxes", h.apiListBoxes)
		r.Get("/boxes/color", h.apiFindBoxByColor)
		r.Get("/boxes/{id}", h.apiFindBox)
		r.Get("/modules", h.apiListModules)
		r.Get("/modules/closest", h.apiClosestModule)
		r.Get("/modules/{namespace}", h.apiFindModule)
		r.Get("/path", h.apiPlanPath)
		r.Get("/orders", h.apiListOrders)
		r.Get("/orders/last", h.apiLastOrder)
		r.Get("/orders/confirm", h.apiConfirmLastOrder)
		r.Get("/orders/{cid}", h.apiGetOrder)
		r.Get("/orders/{cid}/events", h.apiOrderEvents)
		r.Get("/diagnose", h.apiDiagnose)
	})

	// Mutating API needs a session
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/orders/dispatch", h.apiDispatchOrder)
		r.Post("/api/orders/{cid}/cancel", h.apiCancelOrder)
	})

	stopFn := func() {
		hub.Stop()
	}
	return r, stopFn
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")

	db := h.engine.DB()
	if db == nil {
		writeError(w, http.StatusServiceUnavailable, "no user database")
		return
	}
	user, err := db.GetAdminUser(username)
	if err != nil || !checkPassword(user.PasswordHash, password) {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["username"] = username
	if err := session.Save(r, w); err != nil {
		log.Printf("auth: session save error: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "username": username})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Values["username"] = ""
	session.Save(r, w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
