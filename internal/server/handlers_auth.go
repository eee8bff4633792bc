package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opsdeck/opsdeck/internal/auth"
	"github.com/opsdeck/opsdeck/internal/ctxutil"
	"github.com/opsdeck/opsdeck/internal/model"
	"github.com/opsdeck/opsdeck/internal/service/approvals"
	"github.com/opsdeck/opsdeck/internal/storage"
)

type loginPage struct {
	basePage
	FormError string
}

// HandleLoginPage renders the login form.
func (h *Handlers) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	page := loginPage{basePage: basePage{Title: "Sign in", Active: "login"}}
	if r.URL.Query().Get("error") == "invalid_credentials" {
		page.FormError = "Email or password is incorrect."
	}
	h.renderPage(w, r, "login", page)
}

// HandleLogin checks operator credentials and sets the session cookie.
// Unknown emails burn the same hashing cost as wrong passwords so timing
// does not reveal which one it was.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/login?error=invalid_credentials", http.StatusSeeOther)
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	op, err := h.store.GetOperatorByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.logger.Error("operator lookup failed", "error", err)
		}
		auth.DummyVerify()
		http.Redirect(w, r, "/login?error=invalid_credentials", http.StatusSeeOther)
		return
	}

	valid, err := auth.VerifyPassword(password, op.PasswordHash)
	if err != nil || !valid {
		http.Redirect(w, r, "/login?error=invalid_credentials", http.StatusSeeOther)
		return
	}

	token, expiresAt, err := h.sessions.IssueSession(op)
	if err != nil {
		h.logger.Error("issue session failed", "error", err)
		http.Redirect(w, r, "/login?error=invalid_credentials", http.StatusSeeOther)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("operator logged in", "operator_id", op.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// HandleApprovalDecision processes the decision form on the approvals page.
// Validation failures come back as query-string flags so the page can show
// the message; the decision itself goes through the approvals service.
func (h *Handlers) HandleApprovalDecision(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.OperatorFromContext(r.Context())
	if claims == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	operatorID, err := uuid.Parse(claims.Subject)
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	approvalID, err := uuid.Parse(r.PathValue("approval_id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/approvals?error=invalid_form", http.StatusSeeOther)
		return
	}
	action, err := model.ParseApprovalAction(r.PostFormValue("action"))
	if err != nil {
		http.Redirect(w, r, "/approvals?error=invalid_form", http.StatusSeeOther)
		return
	}
	note := r.PostFormValue("note")

	_, err = h.approvalSvc.Decide(r.Context(), approvalID, action, note, operatorID)
	switch {
	case err == nil:
		http.Redirect(w, r, "/approvals", http.StatusSeeOther)
	case errors.Is(err, approvals.ErrNoteRequired):
		http.Redirect(w, r, "/approvals?error=note_required", http.StatusSeeOther)
	case errors.Is(err, storage.ErrAlreadyDecided):
		http.Redirect(w, r, "/approvals?error=already_decided", http.StatusSeeOther)
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
	default:
		h.logger.Error("approval decision failed", "error", err, "approval_id", approvalID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
