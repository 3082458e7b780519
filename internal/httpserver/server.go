// package httpserver exposes the REST surface: patient, staff and resource
// CRUD, the triage queue and its settings, statistics and the audit trail.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/triageai/backend/internal/audit"
	"github.com/triageai/backend/internal/auth"
	"github.com/triageai/backend/internal/models"
	"github.com/triageai/backend/internal/service"
	"github.com/triageai/backend/internal/store"
	"github.com/triageai/backend/internal/triage"
)

type Server struct {
	service  *service.Service
	store    store.Store
	engine   *triage.Engine
	settings *triage.SettingsStore
	capacity *triage.CapacityTracker
	auditLog audit.Store
	notifier service.Notifier
	verifier *auth.Verifier // nil disables auth on mutating routes
}

// New wires the HTTP surface. verifier and notifier may be nil; auditLog may
// be nil to disable the audit endpoint.
func New(svc *service.Service, st store.Store, engine *triage.Engine, settings *triage.SettingsStore,
	capacity *triage.CapacityTracker, auditLog audit.Store, notifier service.Notifier, verifier *auth.Verifier) *Server {
	return &Server{
		service:  svc,
		store:    st,
		engine:   engine,
		settings: settings,
		capacity: capacity,
		auditLog: auditLog,
		notifier: notifier,
		verifier: verifier,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/patients", func(r chi.Router) {
			r.Get("/", s.handleListPatients)
			r.Get("/{id}", s.handleGetPatient)
			r.Group(func(r chi.Router) {
				r.Use(s.writeAuth)
				r.Post("/", s.handleCreatePatient)
				r.Put("/{id}", s.handleUpdatePatient)
				r.Put("/{id}/status", s.handleUpdatePatientStatus)
				r.Delete("/{id}", s.handleDeletePatient)
			})
		})

		r.Route("/staff", func(r chi.Router) {
			r.Get("/", s.handleListStaff)
			r.Get("/{id}", s.handleGetStaff)
			r.Group(func(r chi.Router) {
				r.Use(s.writeAuth)
				r.Post("/", s.handleCreateStaff)
				r.Put("/{id}/status", s.handleUpdateStaffStatus)
				r.Delete("/{id}", s.handleDeleteStaff)
			})
		})

		r.Route("/resources", func(r chi.Router) {
			r.Get("/", s.handleListResources)
			r.Get("/{id}", s.handleGetResource)
			r.Group(func(r chi.Router) {
				r.Use(s.writeAuth)
				r.Post("/", s.handleCreateResource)
				r.Put("/{id}/status", s.handleUpdateResourceStatus)
				r.Delete("/{id}", s.handleDeleteResource)
			})
		})

		r.Route("/triage", func(r chi.Router) {
			r.Get("/queue", s.handleQueue)
			r.Post("/calculate", s.handleCalculate)
			r.Get("/settings", s.handleGetSettings)
			r.Get("/statistics", s.handleStatistics)
			r.Get("/audit", s.handleAudit)
			r.Group(func(r chi.Router) {
				r.Use(s.writeAuth)
				r.Put("/settings", s.handleUpdateSettings)
				r.Post("/recalculate", s.handleRecalculate)
			})
		})
	})

	return r
}

func (s *Server) writeAuth(next http.Handler) http.Handler {
	if s.verifier == nil {
		return next
	}
	return s.verifier.Middleware(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC(),
	}
	if err := s.store.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// --- patients ---

type patientRequest struct {
	FirstName             string     `json:"firstName"`
	LastName              string     `json:"lastName"`
	DateOfBirth           string     `json:"dateOfBirth"`
	ChiefComplaint        string     `json:"chiefComplaint"`
	RiskLevel             int        `json:"riskLevel"`
	ShockIndex            float64    `json:"shockIndex"`
	EarlyWarningScore     int        `json:"earlyWarningScore"`
	ArrivalTime           *time.Time `json:"arrivalTime"`
	RequiredResourceTypes []string   `json:"requiredResourceTypes"`
	RequiredSpecialties   []string   `json:"requiredSpecialties"`
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var req patientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	in := store.PatientInput{
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		DateOfBirth:           req.DateOfBirth,
		ChiefComplaint:        req.ChiefComplaint,
		RiskLevel:             models.RiskLevel(req.RiskLevel),
		ShockIndex:            req.ShockIndex,
		EarlyWarningScore:     req.EarlyWarningScore,
		RequiredResourceTypes: req.RequiredResourceTypes,
		RequiredSpecialties:   req.RequiredSpecialties,
	}
	if req.ArrivalTime != nil {
		in.ArrivalTime = *req.ArrivalTime
	}
	p, err := s.service.CreatePatient(r.Context(), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := s.service.ListPatients(r.Context(), store.PatientFilter{
		Status: r.URL.Query().Get("status"),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if patients == nil {
		patients = []models.Patient{}
	}
	respondJSON(w, http.StatusOK, patients)
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	p, err := s.service.GetPatient(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type patientUpdateRequest struct {
	FirstName             *string  `json:"firstName"`
	LastName              *string  `json:"lastName"`
	ChiefComplaint        *string  `json:"chiefComplaint"`
	RiskLevel             *int     `json:"riskLevel"`
	ShockIndex            *float64 `json:"shockIndex"`
	EarlyWarningScore     *int     `json:"earlyWarningScore"`
	RequiredResourceTypes []string `json:"requiredResourceTypes"`
	RequiredSpecialties   []string `json:"requiredSpecialties"`
}

func (s *Server) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req patientUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	upd := store.PatientUpdate{
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		ChiefComplaint:        req.ChiefComplaint,
		ShockIndex:            req.ShockIndex,
		EarlyWarningScore:     req.EarlyWarningScore,
		RequiredResourceTypes: req.RequiredResourceTypes,
		RequiredSpecialties:   req.RequiredSpecialties,
	}
	if req.RiskLevel != nil {
		rl := models.RiskLevel(*req.RiskLevel)
		upd.RiskLevel = &rl
	}
	p, err := s.service.UpdatePatient(r.Context(), id, upd)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdatePatientStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.service.UpdatePatientStatus(r.Context(), id, req.Status)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.service.DeletePatient(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- staff ---

type staffRequest struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Status    string `json:"status"`
}

func (s *Server) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req staffRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.service.CreateStaff(r.Context(), store.StaffInput{
		Name:      req.Name,
		Specialty: req.Specialty,
		Status:    req.Status,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := s.service.ListStaff(r.Context(), store.StaffFilter{
		Status:    r.URL.Query().Get("status"),
		Specialty: r.URL.Query().Get("specialty"),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if staff == nil {
		staff = []models.StaffMember{}
	}
	respondJSON(w, http.StatusOK, staff)
}

func (s *Server) handleGetStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	m, err := s.service.GetStaff(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateStaffStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := s.service.UpdateStaffStatus(r.Context(), id, req.Status)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.service.DeleteStaff(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- resources ---

type resourceRequest struct {
	Name              string `json:"name"`
	Type              string `json:"type"`
	Status            string `json:"status"`
	Capacity          int    `json:"capacity"`
	AvailableCapacity int    `json:"availableCapacity"`
}

func (s *Server) handleCreateResource(w http.ResponseWriter, r *http.Request) {
	var req resourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.CreateResource(r.Context(), store.ResourceInput{
		Name:              req.Name,
		Type:              req.Type,
		Status:            req.Status,
		Capacity:          req.Capacity,
		AvailableCapacity: req.AvailableCapacity,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.service.ListResources(r.Context(), store.ResourceFilter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if resources == nil {
		resources = []models.Resource{}
	}
	respondJSON(w, http.StatusOK, resources)
}

func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	res, err := s.service.GetResource(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type resourceStatusRequest struct {
	Status           string     `json:"status"`
	CurrentPatientID *uuid.UUID `json:"currentPatientId"`
}

func (s *Server) handleUpdateResourceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req resourceStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.service.UpdateResourceStatus(r.Context(), id, req.Status, req.CurrentPatientID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := s.service.DeleteResource(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- triage ---

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	entries := s.engine.Ordering()
	if entries == nil {
		entries = []triage.QueueEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"queue": entries,
		"count": len(entries),
	})
}

type calculateRequest struct {
	PatientID uuid.UUID `json:"patientId"`
}

// handleCalculate computes one patient's score breakdown on demand without
// touching the published ordering.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.service.GetPatient(r.Context(), req.PatientID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	snap, err := s.capacity.Snapshot(r.Context(), p.RequiredResourceTypes, p.RequiredSpecialties)
	if err != nil {
		snap = triage.NeutralCapacity()
	}
	cfg, _ := s.settings.Snapshot()
	b := triage.Breakdown(p.RiskLevel, p.ArrivalTime, time.Now().UTC(), snap, cfg)
	// also nudge the scheduler so the published ordering catches up, subject
	// to the usual debounce
	if s.notifier != nil {
		s.notifier.Notify(r.Context(), audit.ReasonManual)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"patientId": p.ID,
		"riskLevel": p.RiskLevel,
		"score":     b.Total,
		"breakdown": b,
		"capacity":  snap,
	})
}

// handleRecalculate asks the scheduler for a recompute rather than driving
// the engine directly: only the scheduler may start a cycle, so manual
// triggers coalesce under the same debounce as every other notification.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	if s.notifier != nil {
		s.notifier.Notify(r.Context(), audit.ReasonManual)
	}
	entries := s.engine.Ordering()
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"scheduled": true,
		"queue":     entries,
		"count":     len(entries),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, version := s.settings.Snapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"settings": cfg,
		"version":  version,
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	// decode on top of the current config so omitted fields keep their values
	cfg, _ := s.settings.Snapshot()
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, version, err := s.settings.Update(r.Context(), cfg)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.notifier != nil {
		s.notifier.Notify(r.Context(), audit.ReasonConfigChange)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"settings": updated,
		"version":  version,
	})
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.GetStatistics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		respondError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	var q audit.Query
	qs := r.URL.Query()
	pid := qs.Get("patient_id")
	if pid == "" {
		pid = qs.Get("patientId")
	}
	if pid != "" {
		id, err := uuid.Parse(pid)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid patient id")
			return
		}
		q.PatientID = &id
	}
	if v := qs.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		q.Since = &ts
	}
	if v := qs.Get("until"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid until timestamp")
			return
		}
		q.Until = &ts
	}
	q.Limit = 100
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}
	recs, err := s.auditLog.QueryRecords(r.Context(), q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []audit.Record{}
	}
	respondJSON(w, http.StatusOK, recs)
}

// --- helpers ---

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
