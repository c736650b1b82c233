package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cozyfin/internal/core"
	"cozyfin/internal/export"
	"cozyfin/internal/log"
	"cozyfin/internal/services"
)

const maxReceiptBytes = 5 << 20

type loginRequest struct {
	User string `json:"user"`
	PIN  string `json:"pin"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  string `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := core.ParseUserID(req.User)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	token, err := s.auth.Login(req.PIN, user)
	if err != nil {
		s.logger.WarnContext(r.Context(), "login rejected",
			log.FieldUser, req.User)
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{Token: token, User: string(user)})
}

type createTransactionRequest struct {
	User        string `json:"user"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
	Date        string `json:"date"`
	Monthly     string `json:"monthly,omitempty"`
	Automatic   bool   `json:"automatic,omitempty"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := s.svc.Create(r.Context(), services.CreateInput{
		User:        req.User,
		Type:        req.Type,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    strings.TrimSpace(req.Category),
		Description: strings.TrimSpace(req.Description),
		Source:      strings.TrimSpace(req.Source),
		Date:        req.Date,
		Monthly:     req.Monthly,
		Automatic:   req.Automatic,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	ledger, err := s.svc.List(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ledger.SortedNewestFirst())
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUserSummary(w http.ResponseWriter, r *http.Request) {
	user, err := pathUser(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	sum, err := s.svc.UserSummary(r.Context(), user, filter.Year, filter.Month)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleCombinedSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.CombinedSummary(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	progress, err := s.svc.GoalProgress(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	var goal core.Goal
	if err := decodeJSON(r, &goal); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := goal.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.svc.UpdateGoal(r.Context(), goal); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, goal)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	user, err := pathUser(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	months := 6
	if v := strings.TrimSpace(r.URL.Query().Get("months")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 36 {
			respondError(w, http.StatusUnprocessableEntity, "months must be between 1 and 36")
			return
		}
		months = n
	}
	points, err := s.svc.MonthlySeries(r.Context(), user, months)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	user, err := pathUser(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	profile, err := s.svc.Profile(r.Context(), user)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	user, err := pathUser(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var profile core.Profile
	if err := decodeJSON(r, &profile); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	profile.User = user
	if err := profile.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := s.svc.UpdateProfile(r.Context(), profile); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handleAddSavingsAccount(w http.ResponseWriter, r *http.Request) {
	user, err := pathUser(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var acct core.SavingsAccount
	if err := decodeJSON(r, &acct); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.AddSavingsAccount(r.Context(), user, acct); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleAddFixedExpense(w http.ResponseWriter, r *http.Request) {
	user, err := pathUser(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var exp core.FixedExpense
	if err := decodeJSON(r, &exp); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.AddFixedExpense(r.Context(), user, exp); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleAddDebt(w http.ResponseWriter, r *http.Request) {
	user, err := pathUser(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	var debt core.DebtAccount
	if err := decodeJSON(r, &debt); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.AddDebt(r.Context(), user, debt); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, debt)
}

func (s *Server) handleExportWorkbook(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="cozyfin.xlsx"`)
	if err := s.svc.ExportWorkbook(r.Context(), w); err != nil {
		s.logger.ErrorContext(r.Context(), "workbook export failed",
			log.FieldError, err.Error())
	}
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	user, err := pathUser(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.HistoryFilename(user)+`"`)
	if err := s.svc.ExportUserHistory(r.Context(), w, user); err != nil {
		s.logger.ErrorContext(r.Context(), "history export failed",
			log.FieldUser, string(user),
			log.FieldError, err.Error())
	}
}

func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		respondError(w, http.StatusUnsupportedMediaType, "receipts must be an image or a pdf")
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReceiptBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "receipt too large")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, "empty receipt")
		return
	}
	if err := s.svc.AttachReceipt(r.Context(), id, contentType, data); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents streams ledger change events over SSE so the client can
// refresh without polling.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := s.svc.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	contentType, data, err := s.svc.Receipt(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}
