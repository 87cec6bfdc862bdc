package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/memshield/memshield/internal/auth"
	"github.com/memshield/memshield/internal/guard"
	"github.com/memshield/memshield/internal/models"
	"github.com/memshield/memshield/internal/queue"
	"github.com/memshield/memshield/internal/reports"
	"github.com/memshield/memshield/internal/rules"
	"github.com/memshield/memshield/internal/store"
	"github.com/memshield/memshield/internal/vault"
)

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	tokens, err := s.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	tokens, err := s.authService.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired refresh token")
		return
	}

	respondJSON(w, http.StatusOK, tokens)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		_ = s.authService.LogoutAll(r.Context(), claims.UserID)
	} else {
		_ = s.authService.Logout(r.Context(), claims.UserID, req.RefreshToken)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) getCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}

	user, err := s.userStore.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, http.StatusNotFound, "user_not_found", "User not found")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	role := models.Role(r.URL.Query().Get("role"))
	users, err := s.userStore.ListUsers(r.Context(), role)
	if err != nil {
		if errors.Is(err, auth.ErrUnknownRole) {
			respondError(w, http.StatusBadRequest, "invalid_request", "Unknown role filter")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string      `json:"email"`
		Name     string      `json:"name"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "Email and password are required")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleUser
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to hash password")
		return
	}

	user := &auth.User{
		Email:    req.Email,
		Name:     req.Name,
		Password: hash,
		Role:     req.Role,
	}
	if err := s.userStore.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrUnknownRole) {
			respondError(w, http.StatusBadRequest, "invalid_request", "Unknown role")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to create user")
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

// decodeContent extracts the content field, rejecting non-string values
// loudly instead of coercing them.
func decodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", &guard.MalformedInputError{Reason: "content field is required"}
	}
	var content string
	if err := json.Unmarshal(raw, &content); err != nil {
		return "", &guard.MalformedInputError{Reason: "content must be a string"}
	}
	return content, nil
}

func (s *Server) scanContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content json.RawMessage `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	content, err := decodeContent(req.Content)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed_input", err.Error())
		return
	}
	if int64(len(content)) > s.cfg.Guard.MaxContentSize {
		respondError(w, http.StatusRequestEntityTooLarge, "content_too_large", "Content exceeds maximum scan size")
		return
	}

	result := s.currentScanner().ScanContent(content)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) createEntry(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var req struct {
		Actor      string          `json:"actor"`
		Category   string          `json:"category"`
		Content    json.RawMessage `json:"content"`
		Importance int             `json:"importance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	content, err := decodeContent(req.Content)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed_input", err.Error())
		return
	}
	if int64(len(content)) > s.cfg.Guard.MaxContentSize {
		respondError(w, http.StatusRequestEntityTooLarge, "content_too_large", "Content exceeds maximum scan size")
		return
	}

	actor := req.Actor
	if actor == "" && claims != nil {
		actor = claims.Email
	}

	entry := &models.MemoryEntry{
		Actor:      actor,
		Category:   req.Category,
		Content:    content,
		Importance: req.Importance,
	}

	validated, scan, err := s.currentScanner().ValidateEntry(entry)
	if err != nil {
		var blocked *guard.BlockedContentError
		if errors.As(err, &blocked) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = s.notificationService.NotifyBlockedContent(ctx, actor, blocked.RuleNames)
			}()
			respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"blocked":  true,
				"warnings": blocked.Warnings,
				"patterns": blocked.RuleNames,
			})
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "Validation failed")
		return
	}

	if err := s.store.CreateEntry(r.Context(), validated); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to store entry")
		return
	}

	record := &models.ScanRecord{
		EntryID:          &validated.ID,
		Classification:   scan.Classification,
		Blocked:          scan.Blocked,
		RedactionApplied: scan.RedactionApplied,
		Confidence:       scan.Confidence,
		DetectedPatterns: scan.DetectedPatterns,
		Warnings:         scan.Warnings,
	}
	if err := s.store.CreateScanRecord(r.Context(), record); err != nil {
		s.logger.Error("failed to store scan record", "entry_id", validated.ID, "error", err)
	}

	respondJSON(w, http.StatusCreated, validated)
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	filters := store.ListEntryFilters{
		Limit:  parseIntParam(r, "limit", 50),
		Offset: parseIntParam(r, "offset", 0),
	}
	if actor := r.URL.Query().Get("actor"); actor != "" {
		filters.Actor = &actor
	}
	if category := r.URL.Query().Get("category"); category != "" {
		filters.Category = &category
	}

	entries, total, err := s.store.ListEntries(r.Context(), filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list entries")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, entries, &apiMeta{
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid entry ID")
		return
	}

	entry, err := s.store.GetEntry(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to get entry")
		return
	}
	if entry == nil {
		respondError(w, http.StatusNotFound, "not_found", "Entry not found")
		return
	}

	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid entry ID")
		return
	}

	if err := s.store.DeleteEntry(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to delete entry")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) getEntryScans(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid entry ID")
		return
	}

	records, err := s.store.ListScanRecords(r.Context(), &id, parseIntParam(r, "limit", 20))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list scan records")
		return
	}

	respondJSON(w, http.StatusOK, records)
}

func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	filters := store.ListEventFilters{
		Limit:  parseIntParam(r, "limit", 50),
		Offset: parseIntParam(r, "offset", 0),
	}
	if t := r.URL.Query().Get("type"); t != "" {
		eventType := models.EventType(t)
		filters.Type = &eventType
	}
	if sev := r.URL.Query().Get("severity"); sev != "" {
		severity := models.Severity(sev)
		filters.Severity = &severity
	}
	if res := r.URL.Query().Get("result"); res != "" {
		result := models.EventResult(res)
		filters.Result = &result
	}

	events, total, err := s.store.ListSecurityEvents(r.Context(), filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list events")
		return
	}

	respondJSONWithMeta(w, http.StatusOK, events, &apiMeta{
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

func (s *Server) getAuditReport(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.auditLog.Report())
}

func (s *Server) getAuditReportPDF(w http.ResponseWriter, r *http.Request) {
	pdf, err := reports.AuditReportPDF(s.auditLog.Report(), s.rulesEngine.MergedRules())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to generate report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-report.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	customRules, err := s.rulesEngine.GetRules(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to list rules")
		return
	}
	respondJSON(w, http.StatusOK, customRules)
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var rule rules.CustomRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if claims != nil {
		rule.CreatedBy = claims.Email
	}

	if err := s.rulesEngine.CreateRule(r.Context(), &rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_rule", err.Error())
		return
	}

	s.rebuildScanner()
	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rulesEngine.GetRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Rule not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to get rule")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.CustomRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	rule.ID = chi.URLParam(r, "ruleID")

	if err := s.rulesEngine.UpdateRule(r.Context(), &rule); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Rule not found")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_rule", err.Error())
		return
	}

	s.rebuildScanner()
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rulesEngine.DeleteRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		if errors.Is(err, rules.ErrRuleNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Rule not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to delete rule")
		return
	}

	s.rebuildScanner()
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) testRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rule    rules.CustomRule `json:"rule"`
		Content string           `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	result, err := s.rulesEngine.TestRule(&req.Rule, req.Content)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_rule", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) vaultEncrypt(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var req struct {
		Classification models.Classification `json:"classification"`
		Plaintext      string                `json:"plaintext"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	env, err := s.vault.Encrypt(claims.Email, claims.Role, req.Classification, []byte(req.Plaintext))
	if err != nil {
		if errors.Is(err, vault.ErrAccessDenied) {
			respondError(w, http.StatusForbidden, "access_denied", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "encrypt_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, env)
}

func (s *Server) vaultDecrypt(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.GetUserFromContext(r.Context())

	var req struct {
		Envelope vault.Envelope `json:"envelope"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	plaintext, err := s.vault.Decrypt(claims.Email, claims.Role, &req.Envelope)
	if err != nil {
		if errors.Is(err, vault.ErrAccessDenied) {
			respondError(w, http.StatusForbidden, "access_denied", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "decrypt_failed", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"plaintext": string(plaintext)})
}

func (s *Server) getQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to get queue stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) triggerRescan(w http.ResponseWriter, r *http.Request) {
	job := &queue.Job{Type: queue.JobRescanAll, Priority: 1}
	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Failed to enqueue rescan")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "enqueued",
		"job_id": job.ID.String(),
	})
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
