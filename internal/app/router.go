package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/alnlabs/gmstation/internal/errors"
	"github.com/alnlabs/gmstation/internal/models"
)

// ScanRequest is the JSON body for a scan submission
type ScanRequest struct {
	TokenID string `json:"token_id"`
	TeamID  string `json:"team_id"`
}

// ScanResponse is the JSON response for a scan submission
type ScanResponse struct {
	Status      string             `json:"status"`
	Transaction models.Transaction `json:"transaction"`
}

// StatusResponse is the JSON response for the station status endpoint
type StatusResponse struct {
	DeviceID        string        `json:"device_id"`
	SessionID       string        `json:"session_id"`
	GameMode        string        `json:"game_mode"`
	SessionMode     string        `json:"session_mode"`
	ModeLocked      bool          `json:"mode_locked"`
	Connection      string        `json:"connection"`
	Screen          string        `json:"screen"`
	CatalogSource   string        `json:"catalog_source"`
	CatalogDegraded bool          `json:"catalog_degraded"`
	Teams           []models.Team `json:"teams"`
}

// Router returns a configured chi router for the local status surface
func (a *App) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", a.handleHealth)
	r.Get("/status", a.handleStatus)
	r.Get("/pairing.png", a.handlePairingQR)

	r.Post("/api/scan", a.handleScan)
	r.Get("/api/scores", a.handleScores)

	r.Get("/session/export", a.handleSessionExport)
	r.Post("/session/import", a.handleSessionImport)
	r.Post("/session/clear", a.handleSessionClear)

	return r
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	mode, locked := a.controller.Mode()
	writeJSON(w, http.StatusOK, StatusResponse{
		DeviceID:        a.identity.DeviceID,
		SessionID:       a.ledger.SessionID(),
		GameMode:        a.ledger.GameMode(),
		SessionMode:     mode,
		ModeLocked:      locked,
		Connection:      a.channel.State().String(),
		Screen:          a.screens.Current(),
		CatalogSource:   a.loadResult.Source,
		CatalogDegraded: a.loadResult.Degraded,
		Teams:           a.ledger.TeamScores(),
	})
}

// handlePairingQR renders a QR code an operator scans to register this
// station with the orchestrator
func (a *App) handlePairingQR(w http.ResponseWriter, r *http.Request) {
	target := fmt.Sprintf("%s?deviceId=%s", a.cfg.OrchestratorURL, a.identity.DeviceID)
	png, err := qrcode.Encode(target, qrcode.Medium, 256)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to render pairing code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (a *App) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TokenID == "" || req.TeamID == "" {
		writeError(w, http.StatusBadRequest, "token_id and team_id are required")
		return
	}

	tx, err := a.Scan(r.Context(), req.TokenID, req.TeamID)
	if err != nil {
		switch {
		case errors.IsKind(err, errors.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.IsKind(err, errors.ErrTransport):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			a.log.Error("Scan failed", "error", err)
			writeError(w, http.StatusInternalServerError, "scan failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{Status: "recorded", Transaction: tx})
}

func (a *App) handleScores(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.ledger.TeamScores())
}

func (a *App) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	export, err := a.ledger.ExportSession()
	if err != nil {
		a.log.Error("Session export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "session-"+a.ledger.SessionID()+".json"))
	w.WriteHeader(http.StatusOK)
	w.Write(export)
}

func (a *App) handleSessionImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if err := a.ledger.ImportSession(r.Context(), data); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported", "session_id": a.ledger.SessionID()})
}

func (a *App) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	offerer := FileExportOfferer{
		Dir:   filepath.Dir(a.cfg.DBPath),
		Clock: a.clock,
		Log:   a.log,
	}
	if err := a.ledger.ClearSession(r.Context(), offerer); err != nil {
		a.log.Error("Session clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared", "session_id": a.ledger.SessionID()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
