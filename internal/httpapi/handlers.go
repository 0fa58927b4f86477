package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pulseapp/identity"
	"github.com/pulseapp/identity/middleware"
)

type registerBody struct {
	Email                string `json:"email"`
	Username             string `json:"username"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
	CaptchaResponse      string `json:"captchaResponse"`
}

type loginBody struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Pin             string `json:"pin"`
	CaptchaResponse string `json:"captchaResponse"`
}

type existsBody struct {
	Email string `json:"email"`
}

type onboardingBody struct {
	OrganizationName string `json:"organizationName"`
	OrganizationSlug string `json:"organizationSlug"`
	StatusPageName   string `json:"statusPageName"`
}

type enableTFABody struct {
	Secret string `json:"secret"`
	Pin    string `json:"pin"`
}

type disableTFABody struct {
	Pin string `json:"pin"`
}

type authTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	// Expires is a unix timestamp in milliseconds.
	Expires int64 `json:"expires"`
}

type setupTFAResponse struct {
	Secret    string    `json:"secret"`
	QRCodeURL string    `json:"qrCodeUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type userResponse struct {
	ID         string    `json:"snowflake"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Flags      []string  `json:"flags"`
	TFAEnabled bool      `json:"tfaEnabled"`
	Onboarded  bool      `json:"onboarded"`
	Created    time.Time `json:"created"`
	LastLogin  time.Time `json:"lastLogin,omitempty"`
}

type deviceResponse struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	IP         string    `json:"ip"`
	Location   string    `json:"location"`
	FirstLogin time.Time `json:"firstLogin"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Current    bool      `json:"current"`
}

var success = map[string]bool{"success": true}

func toAuthToken(res *identity.AuthResult) authTokenResponse {
	return authTokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		Expires:      res.ExpiresAt.UnixMilli(),
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Health(r.Context())
	code := http.StatusOK
	if !status.RedisAvailable {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"redis":     status.RedisAvailable,
		"latencyMs": status.RedisLatency.Milliseconds(),
	})
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !h.decode(w, r, &body) {
		return
	}

	res, err := h.svc.Register(r.Context(), identity.RegisterRequest{
		Email:           body.Email,
		Username:        body.Username,
		Password:        body.Password,
		ConfirmPassword: body.PasswordConfirmation,
		CaptchaToken:    body.CaptchaResponse,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthToken(res))
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !h.decode(w, r, &body) {
		return
	}

	res, err := h.svc.Login(r.Context(), identity.LoginRequest{
		Email:        body.Email,
		Password:     body.Password,
		Pin:          body.Pin,
		CaptchaToken: body.CaptchaResponse,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthToken(res))
}

func (h *handlers) exists(w http.ResponseWriter, r *http.Request) {
	var body existsBody
	if !h.decode(w, r, &body) {
		return
	}

	exists, err := h.svc.UserExists(r.Context(), body.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	profile, err := h.svc.Profile(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:         profile.ID,
		Email:      profile.Email,
		Username:   profile.Username,
		Flags:      profile.Flags,
		TFAEnabled: profile.TFAEnabled,
		Onboarded:  profile.Onboarded,
		Created:    profile.CreatedAt,
		LastLogin:  profile.LastLogin,
	})
}

func (h *handlers) completeOnboarding(w http.ResponseWriter, r *http.Request) {
	var body onboardingBody
	if !h.decode(w, r, &body) {
		return
	}

	sess, _ := middleware.SessionFromContext(r.Context())
	err := h.svc.CompleteOnboarding(r.Context(), sess, identity.OnboardingRequest{
		OrganizationName: body.OrganizationName,
		OrganizationSlug: body.OrganizationSlug,
		StatusPageName:   body.StatusPageName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *handlers) setupTFA(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	setup, err := h.svc.BeginTFASetup(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setupTFAResponse{
		Secret:    setup.Secret,
		QRCodeURL: setup.URI,
		ExpiresAt: setup.ExpiresAt,
	})
}

func (h *handlers) enableTFA(w http.ResponseWriter, r *http.Request) {
	var body enableTFABody
	if !h.decode(w, r, &body) {
		return
	}

	sess, _ := middleware.SessionFromContext(r.Context())
	codes, err := h.svc.ConfirmTFASetup(r.Context(), sess, identity.ConfirmTFARequest{
		Secret: body.Secret,
		Pin:    body.Pin,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

func (h *handlers) disableTFA(w http.ResponseWriter, r *http.Request) {
	var body disableTFABody
	if !h.decode(w, r, &body) {
		return
	}

	sess, _ := middleware.SessionFromContext(r.Context())
	if err := h.svc.DisableTFA(r.Context(), sess, body.Pin); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	if err := h.svc.Logout(r.Context(), sess); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

func (h *handlers) devices(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	devices, err := h.svc.Devices(r.Context(), sess)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceResponse{
			ID:         d.ID,
			Type:       d.DeviceType,
			Browser:    d.Browser,
			OS:         d.OS,
			IP:         d.IP,
			Location:   d.Location,
			FirstLogin: d.FirstLogin,
			ExpiresAt:  d.ExpiresAt,
			Current:    d.Current,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) revokeDevice(w http.ResponseWriter, r *http.Request) {
	sess, _ := middleware.SessionFromContext(r.Context())
	if err := h.svc.RevokeDevice(r.Context(), sess, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}
