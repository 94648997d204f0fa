package access

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var _ Session = &SessionObject{}

// SessionObject is the concrete principal handed out by the SessionStore.
type SessionObject struct {
	UserID         string         `json:"user_id,omitempty"`
	Email          string         `json:"email,omitempty"`
	Issuer         string         `json:"issuer,omitempty"`
	IssuedAt       *time.Time     `json:"issued_at,omitempty"`
	ExpirationDate *time.Time     `json:"expiration_date,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *SessionObject) GetUserID() string {
	return s.UserID
}

func (s *SessionObject) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(s.UserID)
}

func (s *SessionObject) GetEmail() string {
	return s.Email
}

func (s *SessionObject) GetIssuer() string {
	return s.Issuer
}

func (s *SessionObject) GetIssuedAt() *time.Time {
	return s.IssuedAt
}

func (s *SessionObject) GetData() map[string]any {
	return s.Data
}

// Role returns the acting role carried in the session claims, falling back to
// client when absent or unknown. The record store remains the source of truth
// for the effective user's status; the claims role only scopes what the
// acting principal may do.
func (s *SessionObject) Role() Role {
	if s.Data != nil {
		if roleData, exists := s.Data["role"]; exists {
			if roleStr, ok := roleData.(string); ok {
				if role, valid := ParseRole(roleStr); valid {
					return role
				}
			}
		}
	}
	return RoleClient
}

func (s SessionObject) String() string {
	issuedAt := "<nil>"
	if s.IssuedAt != nil {
		issuedAt = s.IssuedAt.Format(time.RFC1123)
	}
	return fmt.Sprintf(
		"user=%s email=%s iss=%s iat=%s data=%v",
		s.UserID,
		s.Email,
		s.Issuer,
		issuedAt,
		s.Data,
	)
}

// SessionFromToken validates a raw JWT issued by the auth provider and maps
// its claims into a Session.
func SessionFromToken(raw string, signingKey []byte) (Session, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnableToDecodeSession, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromClaims(claims)
}

func sessionFromClaims(claims jwt.MapClaims) (*SessionObject, error) {
	session := &SessionObject{
		Data: map[string]any{},
	}

	if sub, err := claims.GetSubject(); err == nil {
		session.UserID = sub
	}

	if session.UserID == "" {
		if uid, ok := claims["uid"].(string); ok {
			session.UserID = uid
		}
	}

	if session.UserID == "" {
		return nil, ErrUnableToMapClaims
	}

	if email, ok := claims["email"].(string); ok {
		session.Email = email
	}

	if iss, err := claims.GetIssuer(); err == nil {
		session.Issuer = iss
	}

	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		session.IssuedAt = &iat.Time
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpirationDate = &exp.Time
	}

	if role, ok := claims["role"].(string); ok {
		session.Data["role"] = role
	}

	if meta, ok := claims["metadata"].(map[string]any); ok {
		session.Data["metadata"] = meta
	}

	return session, nil
}

// sessionRole extracts the acting role from any Session implementation.
func sessionRole(session Session) Role {
	if session == nil {
		return RoleClient
	}

	if s, ok := session.(*SessionObject); ok {
		return s.Role()
	}

	if data := session.GetData(); data != nil {
		if roleStr, ok := data["role"].(string); ok {
			if role, valid := ParseRole(roleStr); valid {
				return role
			}
		}
	}

	return RoleClient
}
