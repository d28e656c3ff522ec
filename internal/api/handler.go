// Package api exposes the companion over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/glucomate/glucomate/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Companion is the conversational core as the API consumes it.
type Companion interface {
	Chat(ctx context.Context, patientID, message string) (string, error)
	StartCheckin(ctx context.Context, patientID string) (string, error)
	Report(ctx context.Context, patientID string) (string, error)
	LogReading(ctx context.Context, patientID string, value float64, mealContext, notes string) (string, error)
}

// PatientStore is the slice of storage the API reads and writes directly.
type PatientStore interface {
	GetProfile(patientID string) (storage.PatientProfile, error)
	ListMilestones(patientID string) ([]storage.Milestone, error)
	AddMedication(m storage.Medication) error
}

// Uploader indexes guideline documents into the knowledge base.
type Uploader interface {
	UploadDoc(ctx context.Context, docID, source, text string) error
}

// ReminderQueue surfaces pending medication reminders on the next turn.
type ReminderQueue interface {
	Drain(patientID string) []string
}

type AppDeps struct {
	Store     PatientStore
	Companion Companion
	Uploader  Uploader
	Reminders ReminderQueue // optional; nil disables reminder prefixes
	Token     string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/patients/{id}/messages", handleMessage(deps))
		r.Post("/patients/{id}/checkin", handleCheckin(deps))
		r.Get("/patients/{id}/profile", handleGetProfile(deps))
		r.Get("/patients/{id}/report", handleReport(deps))
		r.Get("/patients/{id}/milestones", handleMilestones(deps))
		r.Post("/patients/{id}/readings", handleReading(deps))
		r.Post("/patients/{id}/medications", handleAddMedication(deps))
		r.Post("/documents", handleUploadDocument(deps))
	})

	return r
}

type messageRequest struct {
	Message string `json:"message"`
}

func handleMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		reply, err := deps.Companion.Chat(r.Context(), patientID, req.Message)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to process message: %v", err)
			return
		}

		if deps.Reminders != nil {
			if pending := deps.Reminders.Drain(patientID); len(pending) > 0 {
				reply = strings.Join(pending, "\n") + "\n\n" + reply
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	}
}

func handleCheckin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "id")

		prompt, err := deps.Companion.StartCheckin(r.Context(), patientID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "patient not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start check-in: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": prompt})
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "id")

		p, err := deps.Store.GetProfile(patientID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "patient not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	}
}

func handleReport(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "id")

		report, err := deps.Companion.Report(r.Context(), patientID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "patient not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to build report: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"report": report})
	}
}

func handleMilestones(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "id")

		milestones, err := deps.Store.ListMilestones(patientID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list milestones: %v", err)
			return
		}
		if milestones == nil {
			milestones = []storage.Milestone{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(milestones)
	}
}

type readingRequest struct {
	Value       float64 `json:"value"`
	MealContext string  `json:"meal_context"`
	Notes       string  `json:"notes"`
}

func handleReading(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req readingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Value < 10 || req.Value > 900 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "value must be a plausible mg/dL reading")
			return
		}

		ack, err := deps.Companion.LogReading(r.Context(), patientID, req.Value, req.MealContext, req.Notes)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "patient not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to log reading: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"reply": ack})
	}
}

type medicationRequest struct {
	Name      string   `json:"name"`
	Dosage    string   `json:"dosage"`
	Frequency string   `json:"frequency"`
	TimeSlots []string `json:"time_slots"`
}

func handleAddMedication(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req medicationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		for _, slot := range req.TimeSlots {
			if _, err := time.Parse("15:04", slot); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "time_slots must be HH:MM, got %q", slot)
				return
			}
		}

		slots, err := json.Marshal(req.TimeSlots)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to marshal time slots: %v", err)
			return
		}

		m := storage.Medication{
			ID:        uuid.NewString(),
			PatientID: patientID,
			Name:      req.Name,
			Dosage:    req.Dosage,
			Frequency: req.Frequency,
			TimeSlots: string(slots),
			Active:    true,
		}
		if err := deps.Store.AddMedication(m); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add medication: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": m.ID, "status": "added"})
	}
}

type documentRequest struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

func handleUploadDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

		var req documentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Source == "" || req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source and text are required")
			return
		}

		docID := uuid.NewString()
		if err := deps.Uploader.UploadDoc(r.Context(), docID, req.Source, req.Text); err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to index document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": docID, "status": "indexed"})
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
