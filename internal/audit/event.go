package audit

import (
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a security event.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarn     Level = "WARN"
	LevelError    Level = "ERROR"
	LevelSecurity Level = "SECURITY"
	LevelAudit    Level = "AUDIT"
)

// Risk is the derived risk classification admins query on.
type Risk string

const (
	RiskLow    Risk = "LOW"
	RiskMedium Risk = "MEDIUM"
	RiskHigh   Risk = "HIGH"
)

// EventType identifies what happened.
type EventType string

const (
	EventRegisterSuccess      EventType = "REGISTER_SUCCESS"
	EventLoginSuccess         EventType = "LOGIN_SUCCESS"
	EventLoginFailure         EventType = "LOGIN_FAILURE"
	EventLoginLocked          EventType = "LOGIN_LOCKED"
	EventLoginBlockedIP       EventType = "LOGIN_BLOCKED_IP"
	EventAccountLocked        EventType = "ACCOUNT_LOCKED"
	EventAccountUnlocked      EventType = "ACCOUNT_UNLOCKED"
	EventPasswordResetRequest EventType = "PASSWORD_RESET_REQUEST"
	EventPasswordResetSuccess EventType = "PASSWORD_RESET_SUCCESS"
	EventPasswordResetFailure EventType = "PASSWORD_RESET_FAILURE"
	EventPasswordChanged      EventType = "PASSWORD_CHANGED"
	EventEmailVerified        EventType = "EMAIL_VERIFIED"
	EventEmailVerifyFailure   EventType = "EMAIL_VERIFY_FAILURE"
	EventVerificationResent   EventType = "VERIFICATION_RESENT"
	EventCSRFRejected         EventType = "CSRF_REJECTED"
	EventAccessDenied         EventType = "ACCESS_DENIED"
	EventUserDeleted          EventType = "USER_DELETED"
	EventAdminLogged          EventType = "ADMIN_LOGGED"
)

// Event categories admins query by.
const (
	CategoryCSRF = "csrf"
	CategoryAuth = "auth"
)

// Event is an immutable security event. Events are appended, queried, and
// never mutated or deleted through the API surface.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Type      EventType      `json:"type"`
	Category  string         `json:"category"`
	Risk      Risk           `json:"risk"`
	IP        string         `json:"ip"`
	UserAgent string         `json:"userAgent,omitempty"`
	Email     string         `json:"email,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewEvent stamps an event with identity, timestamp, and its derived category.
func NewEvent(level Level, typ EventType, risk Risk, ip, userAgent, email string, details map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Type:      typ,
		Category:  categoryFor(typ),
		Risk:      risk,
		IP:        ip,
		UserAgent: userAgent,
		Email:     email,
		Details:   details,
	}
}

func categoryFor(typ EventType) string {
	if typ == EventCSRFRejected {
		return CategoryCSRF
	}
	return CategoryAuth
}
