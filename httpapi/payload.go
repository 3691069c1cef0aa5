package httpapi

import "time"

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=256"`
	Name     string `json:"name"     validate:"max=120"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"       validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,max=256"`
}

type csrfRequest struct {
	CSRFToken string `json:"csrfToken"`
}

type adminActionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type suspiciousRequest struct {
	IPs []string `json:"ips" validate:"dive,ip"`
}

type csrfResponse struct {
	CSRFToken *string `json:"csrfToken"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type auditQueryParams struct {
	UserID    string    `validate:"omitempty,max=64"`
	EventType string    `validate:"omitempty,max=64"`
	Since     time.Time `validate:"-"`
	Limit     int       `validate:"gte=0,lte=1000"`
}
