package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	stepauth "github.com/patientprogress/stepauth"
	"github.com/patientprogress/stepauth/captcha"
	"github.com/patientprogress/stepauth/middleware"
)

const (
	msgInvalidCredentials = "Invalid credentials"
	msgInvalidURL         = "Invalid url"
	msgInvalidCode        = "Invalid code"
	msgCaptchaMissing     = "Please complete reCaptcha"
	msgCaptchaRejected    = "Invalid reCaptcha"
	msgPasswordTooShort   = "Please enter a password with 6 or more characters"
)

// Server mounts the authentication routes on a chi router around one engine.
type Server struct {
	engine *stepauth.Engine
}

// NewServer describes the newserver operation and its observable behavior.
//
// NewServer may return an error when input validation, dependency calls, or security checks fail.
// NewServer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewServer(engine *stepauth.Engine) *Server {
	return &Server{engine: engine}
}

// Router describes the router operation and its observable behavior.
//
// Router may return an error when input validation, dependency calls, or security checks fail.
// Router does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/", s.handleLogin)
		r.Post("/verify", s.handleVerify)
		r.Post("/forgot", s.handleForgot)
		r.Post("/passwordreset", s.handlePasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(s.engine))
			r.Get("/", s.handleCurrentUser)
		})
	})

	return r
}

type fieldError struct {
	Msg   string `json:"msg"`
	Param string `json:"param,omitempty"`
}

type errorResponse struct {
	Errors []fieldError `json:"errors"`
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	Code           string `json:"code"`
	RecaptchaValue string `json:"recaptchaValue"`
}

type forgotRequest struct {
	Email          string `json:"email"`
	RecaptchaValue string `json:"recaptchaValue"`
}

type resetRequest struct {
	Password       string `json:"password"`
	ID             string `json:"id"`
	Token          string `json:"token"`
	RecaptchaValue string `json:"recaptchaValue"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validLoginFields(w, req.Email, req.Password) {
		return
	}

	ctx := contextWithClientIP(r)
	result, err := s.engine.Login(ctx, req.Email, req.Password, req.RecaptchaValue)
	if err != nil {
		writeLoginError(w, err)
		return
	}

	writeLoginResult(w, result)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validLoginFields(w, req.Email, req.Password) {
		return
	}
	if req.Code == "" {
		writeFieldErrors(w, fieldError{Msg: msgInvalidCode, Param: "code"})
		return
	}

	ctx := contextWithClientIP(r)
	result, err := s.engine.ConfirmStepUp(ctx, req.Email, req.Password, req.Code, req.RecaptchaValue)
	if err != nil {
		if errors.Is(err, stepauth.ErrChallengeInvalid) {
			writeFieldErrors(w, fieldError{Msg: msgInvalidCode, Param: "code"})
			return
		}
		writeLoginError(w, err)
		return
	}

	writeLoginResult(w, result)
}

func (s *Server) handleForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validEmail(req.Email) {
		writeFieldErrors(w, fieldError{Msg: "Invalid email", Param: "email"})
		return
	}

	ctx := contextWithClientIP(r)
	if err := s.engine.Forgot(ctx, req.Email, req.RecaptchaValue); err != nil {
		writeLoginError(w, err)
		return
	}

	// Deliberately identical for known and unknown addresses.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" || req.Token == "" {
		writeFieldErrors(w, fieldError{Msg: msgInvalidURL})
		return
	}
	if req.Password == "" {
		writeFieldErrors(w, fieldError{Msg: "Password is required", Param: "password"})
		return
	}

	ctx := contextWithClientIP(r)
	err := s.engine.ResetPassword(ctx, req.ID, req.Token, req.Password, req.RecaptchaValue)
	if err != nil {
		switch {
		case errors.Is(err, stepauth.ErrInvalidLink):
			writeFieldErrors(w, fieldError{Msg: msgInvalidURL})
		case errors.Is(err, stepauth.ErrPasswordPolicy):
			writeFieldErrors(w, fieldError{Msg: msgPasswordTooShort, Param: "password"})
		default:
			writeLoginError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r.Header.Get("Authorization"))

	user, err := s.engine.CurrentUser(r.Context(), token)
	if err != nil {
		if errors.Is(err, stepauth.ErrUnauthorized) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:    user.UserID,
		Email: user.Email,
		Type:  string(user.Role),
		Name:  user.Name,
	})
}

func writeLoginResult(w http.ResponseWriter, result *stepauth.LoginResult) {
	switch result.Status {
	case stepauth.LoginChallengeSent:
		writeJSON(w, http.StatusCreated, map[string]string{"status": string(result.Status)})
	case stepauth.LoginChallengePending:
		// 304 carries no body.
		w.WriteHeader(http.StatusNotModified)
	default:
		writeJSON(w, http.StatusOK, map[string]string{"token": result.Token})
	}
}

// writeLoginError maps engine sentinels to the wire contract. A captcha
// outage is the only retryable case and answers 503; everything unexpected
// stays a bare 500.
func writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, captcha.ErrMissing):
		writeFieldErrors(w, fieldError{Msg: msgCaptchaMissing, Param: "recaptchaValue"})
	case errors.Is(err, captcha.ErrFailed):
		writeFieldErrors(w, fieldError{Msg: msgCaptchaRejected, Param: "recaptchaValue"})
	case errors.Is(err, captcha.ErrUnavailable):
		http.Error(w, "captcha verification unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, stepauth.ErrInvalidCredentials):
		writeFieldErrors(w, fieldError{Msg: msgInvalidCredentials})
	case errors.Is(err, stepauth.ErrChallengeInvalid):
		writeFieldErrors(w, fieldError{Msg: msgInvalidCode, Param: "code"})
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeFieldErrors(w, fieldError{Msg: "Invalid request body"})
		return false
	}
	return true
}

func validLoginFields(w http.ResponseWriter, email, password string) bool {
	var errs []fieldError
	if !validEmail(email) {
		errs = append(errs, fieldError{Msg: "Invalid email", Param: "email"})
	}
	if password == "" {
		errs = append(errs, fieldError{Msg: "Password is required", Param: "password"})
	}
	if len(errs) > 0 {
		writeFieldErrors(w, errs...)
		return false
	}
	return true
}

func validEmail(address string) bool {
	if address == "" {
		return false
	}
	_, err := mail.ParseAddress(address)
	return err == nil
}

func writeFieldErrors(w http.ResponseWriter, errs ...fieldError) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Errors: errs})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// contextWithClientIP attributes the request to its client address for the
// slow-down counter and trust marks. chi's RealIP middleware has already
// rewritten RemoteAddr from X-Forwarded-For when present.
func contextWithClientIP(r *http.Request) context.Context {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return stepauth.WithClientIP(r.Context(), host)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	return token, token != ""
}
