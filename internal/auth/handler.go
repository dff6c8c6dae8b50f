package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elskow/mystery-message/internal/api"
	"github.com/elskow/mystery-message/internal/config"
)

const maxBodyBytes = 1 << 20

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Handler struct {
	config    *config.AuthConfig
	registrar *Registrar
	verifier  *Verifier
	sessions  *SessionAuthority
	messages  *Messages
	auth      *AuthMiddleware
	log       *zap.Logger
}

func NewHandler(
	config *config.AuthConfig,
	registrar *Registrar,
	verifier *Verifier,
	sessions *SessionAuthority,
	messages *Messages,
	auth *AuthMiddleware,
	log *zap.Logger,
) *Handler {
	return &Handler{
		config:    config,
		registrar: registrar,
		verifier:  verifier,
		sessions:  sessions,
		messages:  messages,
		auth:      auth,
		log:       log,
	}
}

// Routes mounts the API endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post(api.SignUp, h.SignUp)
	r.Post(api.VerifyCode, h.VerifyCode)
	r.Post(api.SignIn, h.SignIn)
	r.Post(api.SignOut, h.SignOut)
	r.Post(api.Messages, h.SendMessage)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.RequireSession)
		r.Get(api.Session, h.Session)
		r.Get(api.Messages, h.ListMessages)
		r.Get(api.AcceptMessages, h.GetAcceptMessages)
		r.Post(api.AcceptMessages, h.SetAcceptMessages)
	})
}

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   Kind   `json:"error,omitempty"`
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type VerifyCodeRequest struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type SignInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type SessionResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Token   string         `json:"token,omitempty"`
	Expires time.Time      `json:"expires"`
	User    *SessionClaims `json:"user"`
}

type SendMessageRequest struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

type MessagesResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
}

type AcceptMessagesRequest struct {
	AcceptMessages bool `json:"acceptMessages"`
}

type AcceptMessagesResponse struct {
	Success             bool   `json:"success"`
	Message             string `json:"message,omitempty"`
	IsAcceptingMessages bool   `json:"isAcceptingMessages"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Email = NormalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)

	// Validate input fields
	if err := validateSignUpRequest(&req); err != nil {
		h.log.Warn("invalid sign-up request", zap.String("error", err.Error()))
		writeError(w, err)
		return
	}

	h.log.Info("handling sign-up request", zap.String("username", req.Username))

	_, err := h.registrar.Register(r.Context(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if KindOf(err) == KindInternalFailure {
			h.log.Error("failed to register user", zap.Error(err))
		}
		writeFailure(w, err, "Error registering user")
		return
	}

	writeJSON(w, http.StatusCreated, Response{
		Success: true,
		Message: "User registered successfully. Please verify your email address.",
	})
}

func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	username, err := url.PathUnescape(req.Username)
	if err != nil {
		username = req.Username
	}
	if username == "" || req.Code == "" {
		writeError(w, fmt.Errorf("%w: username and code are required", ErrInvalidInput))
		return
	}

	outcome, err := h.verifier.Verify(r.Context(), username, strings.TrimSpace(req.Code))
	if err != nil {
		switch KindOf(err) {
		case KindUsernameTaken:
			writeJSON(w, http.StatusConflict, Response{
				Message: ErrUsernameTaken.Error(),
				Error:   KindUsernameTaken,
			})
		case KindInternalFailure:
			h.log.Error("failed to verify user", zap.String("username", username), zap.Error(err))
			writeFailure(w, err, "Error verifying user")
		default:
			writeError(w, err)
		}
		return
	}

	message := "User verified successfully!"
	if outcome == OutcomeAlreadyVerified {
		message = "User is already verified"
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Identifier = strings.TrimSpace(req.Identifier)

	if req.Identifier == "" || req.Password == "" {
		writeError(w, fmt.Errorf("%w: identifier and password are required", ErrInvalidInput))
		return
	}

	claims, err := h.sessions.Authenticate(r.Context(), req.Identifier, req.Password)
	if err != nil {
		switch KindOf(err) {
		case KindAccountNotFound, KindNotVerified, KindIncorrectPassword:
			writeJSON(w, http.StatusUnauthorized, Response{
				Message: PublicMessage(err),
				Error:   KindOf(err),
			})
		case KindInternalFailure:
			h.log.Error("sign-in failed",
				zap.String("identifier", req.Identifier),
				zap.Error(err))
			writeFailure(w, err, "Authorization error")
		default:
			writeError(w, err)
		}
		return
	}

	h.issueSession(w, *claims, "Signed in successfully")
}

func (h *Handler) SignOut(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Signed out"})
}

// Session returns the caller's claims, sliding the expiry when refresh is enabled.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	if !h.config.RefreshTokenEnabled {
		writeJSON(w, http.StatusOK, SessionResponse{Success: true, Message: "Session is valid", User: claims})
		return
	}

	token, expiresAt, refreshed, err := h.sessions.RefreshToken(h.auth.TokenFromRequest(r))
	if err != nil {
		h.log.Error("failed to refresh session", zap.Error(err))
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, token, expiresAt)
	writeJSON(w, http.StatusOK, SessionResponse{
		Success: true,
		Message: "Session is valid",
		Token:   token,
		Expires: expiresAt,
		User:    refreshed,
	})
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	if err := validateMessage(&req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.messages.Send(r.Context(), req.Username, req.Content); err != nil {
		if KindOf(err) == KindInternalFailure {
			h.log.Error("failed to send message", zap.Error(err))
		}
		writeFailure(w, err, "Error sending message")
		return
	}

	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "Message sent successfully"})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	messages, err := h.messages.List(r.Context(), accountID)
	if err != nil {
		if KindOf(err) == KindInternalFailure {
			h.log.Error("failed to list messages", zap.Error(err))
		}
		writeFailure(w, err, "Error fetching messages")
		return
	}
	if messages == nil {
		messages = []Message{}
	}

	writeJSON(w, http.StatusOK, MessagesResponse{Success: true, Messages: messages})
}

func (h *Handler) GetAcceptMessages(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	accepting, err := h.messages.AcceptingMessages(r.Context(), accountID)
	if err != nil {
		if KindOf(err) == KindInternalFailure {
			h.log.Error("failed to read accept-messages flag", zap.Error(err))
		}
		writeFailure(w, err, "Error getting message acceptance status")
		return
	}

	writeJSON(w, http.StatusOK, AcceptMessagesResponse{Success: true, IsAcceptingMessages: accepting})
}

// SetAcceptMessages updates the flag and re-issues the session so the token
// claims match the stored value.
func (h *Handler) SetAcceptMessages(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req AcceptMessagesRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.messages.SetAcceptingMessages(r.Context(), accountID, req.AcceptMessages)
	if err != nil {
		if KindOf(err) == KindInternalFailure {
			h.log.Error("failed to update accept-messages flag", zap.Error(err))
		}
		writeFailure(w, err, "Error updating message acceptance status")
		return
	}

	token, expiresAt, err := h.sessions.MintToken(account.Claims())
	if err != nil {
		h.log.Error("failed to re-issue session", zap.Error(err))
		writeError(w, err)
		return
	}
	h.setSessionCookie(w, token, expiresAt)

	writeJSON(w, http.StatusOK, AcceptMessagesResponse{
		Success:             true,
		Message:             "Message acceptance status updated successfully",
		IsAcceptingMessages: account.IsAcceptingMessages,
	})
}

func (h *Handler) issueSession(w http.ResponseWriter, claims SessionClaims, message string) {
	token, expiresAt, err := h.sessions.MintToken(claims)
	if err != nil {
		h.log.Error("failed to mint session token", zap.Error(err))
		writeFailure(w, err, "Authorization error")
		return
	}

	h.setSessionCookie(w, token, expiresAt)
	writeJSON(w, http.StatusOK, SessionResponse{
		Success: true,
		Message: message,
		Token:   token,
		Expires: expiresAt,
		User:    &claims,
	})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.config.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, ErrUnauthenticated)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(claims.ID)
	if err != nil {
		writeError(w, ErrUnauthenticated)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body", ErrInvalidInput))
		return false
	}
	return true
}

func validateSignUpRequest(req *SignUpRequest) error {
	if err := validateUsername(req.Username); err != nil {
		return err
	}
	if req.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !isValidEmail(req.Email) {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return fmt.Errorf("%w: password must contain at least 8 characters", ErrInvalidInput)
	}
	if len(req.Password) > maxPasswordBytes {
		return errPasswordTooLong
	}
	return nil
}

func validateUsername(username string) error {
	if utf8.RuneCountInString(username) < 3 {
		return fmt.Errorf("%w: username must contain at least 3 characters", ErrInvalidInput)
	}
	if utf8.RuneCountInString(username) > 20 {
		return fmt.Errorf("%w: username must contain at most 20 characters", ErrInvalidInput)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: username must not contain special characters", ErrInvalidInput)
	}
	return nil
}

func validateMessage(req *SendMessageRequest) error {
	if req.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	n := utf8.RuneCountInString(req.Content)
	if n < 10 {
		return fmt.Errorf("%w: content must be at least 10 characters", ErrInvalidInput)
	}
	if n > 300 {
		return fmt.Errorf("%w: content can be at most 300 characters", ErrInvalidInput)
	}
	return nil
}

func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	// Reject display-name forms such as "Bob <bob@x.com>"
	return err == nil && addr.Address == email && strings.Contains(email[strings.LastIndex(email, "@"):], ".")
}

var kindStatus = map[Kind]int{
	KindInvalidInput:           http.StatusBadRequest,
	KindUsernameTaken:          http.StatusBadRequest,
	KindEmailTaken:             http.StatusBadRequest,
	KindNotificationFailed:     http.StatusInternalServerError,
	KindAccountNotFound:        http.StatusNotFound,
	KindNotVerified:            http.StatusUnauthorized,
	KindIncorrectPassword:      http.StatusUnauthorized,
	KindInvalidCode:            http.StatusBadRequest,
	KindExpiredCode:            http.StatusGone,
	KindUnauthenticated:        http.StatusUnauthorized,
	KindRegistrationInProgress: http.StatusConflict,
	KindTooManyAttempts:        http.StatusTooManyRequests,
	KindNotAcceptingMessages:   http.StatusForbidden,
}

func statusOf(kind Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeFailure(w, err, "An internal error occurred")
}

// writeFailure renders err as a {success: false} body. Internal failures are
// answered with internalMessage only; their detail stays in the logs.
func writeFailure(w http.ResponseWriter, err error, internalMessage string) {
	kind := KindOf(err)
	message := PublicMessage(err)
	if kind == KindInternalFailure {
		message = internalMessage
	}
	writeJSON(w, statusOf(kind), Response{
		Success: false,
		Message: message,
		Error:   kind,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	// Headers are already sent, so an encoding error can only be dropped
	_ = json.NewEncoder(w).Encode(data)
}
