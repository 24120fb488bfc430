package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-genie/internal/ingest"
	"github.com/zombor/receipt-genie/internal/scanning"
)

// maxUploadSize fits high-resolution phone photos
const maxUploadSize = int64(50 << 20)

const duplicateMessage = "This receipt has already been processed. Upload it again with allow_duplicate=true to process it anyway."

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON {"error": ...} response with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON encodes v with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleRegister creates a user account
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.service.Register(req.Email, req.Password)
	switch {
	case errors.Is(err, ErrUserExists):
		jsonError(w, "Email already registered", http.StatusConflict)
		return
	case errors.Is(err, ErrInvalidInput):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		slog.Error("Error registering user", "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"email":      user.Email,
		"created_at": user.CreatedAt,
	})
}

// detectContentType falls back to the file extension when the part has no type
func detectContentType(header string, filename string) string {
	contentType := header
	if contentType == "" {
		ext := strings.ToLower(filepath.Ext(filename))
		switch ext {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".gif":
			contentType = "image/gif"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// handleUploadReceipt runs one upload through the ingestion pipeline
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	owner := userFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	// Read file data
	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	upload := ingest.Upload{
		Owner:          owner,
		Filename:       header.Filename,
		ContentType:    detectContentType(header.Header.Get("Content-Type"), header.Filename),
		Data:           data,
		AllowDuplicate: r.FormValue("allow_duplicate") == "true",
	}

	outcome, state, err := s.pipeline.Ingest(r.Context(), s.sessions.Get(owner), upload)
	s.sessions.Put(owner, state)
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		if errors.Is(err, scanning.ErrUnavailable) {
			jsonError(w, "The extraction service is unavailable. Please try again later.", http.StatusBadGateway)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch outcome.Status {
	case ingest.StatusDuplicate:
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   duplicateMessage,
			"outcome": outcome,
		})
	case ingest.StatusCached:
		writeJSON(w, http.StatusOK, outcome)
	default:
		writeJSON(w, http.StatusCreated, outcome)
	}
}

// handleGetSession returns the caller's ingestion state
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Get(userFromContext(r.Context())))
}

// handleResetSession abandons a pending duplicate, or forgets the session when none is pending
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	owner := userFromContext(r.Context())
	if s.sessions.Get(owner).PendingDuplicate {
		writeJSON(w, http.StatusOK, s.sessions.Abandon(owner))
		return
	}
	s.sessions.Reset(owner)
	writeJSON(w, http.StatusOK, ingest.State{})
}

// handleListReceipts returns the caller's receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts(userFromContext(r.Context()))
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// receiptError maps a lookup failure to a response
func receiptError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, ErrNotFound) {
		corsError(w, message, http.StatusNotFound)
		return
	}
	slog.Error("Error loading receipt", "error", err)
	corsError(w, "Internal server error", http.StatusInternalServerError)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(userFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		receiptError(w, err, "Receipt not found")
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(userFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		receiptError(w, err, "File not found")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleExportReceipt returns a receipt as CSV
func (s *Server) handleExportReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(userFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		receiptError(w, err, "Receipt not found")
		return
	}

	data, err := ExportCSV(receipt)
	if err != nil {
		slog.Error("Error exporting receipt", "receipt_id", receipt.ID, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.csv"`, receipt.ID))
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(userFromContext(r.Context()), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Receipt not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting receipt", "error", err)
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAnalytics returns the caller's spending summaries
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.service.Analytics(userFromContext(r.Context()))
	if err != nil {
		slog.Error("Error computing analytics", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, analytics)
}

// handleGetBudgets returns the budget report for ?month=YYYY-MM, defaulting to the current month
func (s *Server) handleGetBudgets(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month == "" {
		month = s.service.timeSource.Now().Format("2006-01")
	}

	report, err := s.service.BudgetReport(userFromContext(r.Context()), month)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Error building budget report", "month", month, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handlePutBudgets sets category budgets (in cents) for a month
func (s *Server) handlePutBudgets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Month   string         `json:"month"`
		Budgets map[string]int `json:"budgets"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Month == "" {
		req.Month = s.service.timeSource.Now().Format("2006-01")
	}

	owner := userFromContext(r.Context())
	err := s.service.SetBudgets(owner, req.Month, req.Budgets)
	switch {
	case errors.Is(err, ErrInvalidInput):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ErrPastMonth):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		slog.Error("Error saving budgets", "month", req.Month, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	report, err := s.service.BudgetReport(owner, req.Month)
	if err != nil {
		slog.Error("Error building budget report", "month", req.Month, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
