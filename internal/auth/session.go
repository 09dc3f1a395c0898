package auth

import (
	"encoding/gob"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

func init() {
	// Register types for session serialization
	gob.Register(uuid.UUID{})
	gob.Register(time.Time{})
}

const (
	// SessionName is the name of the session cookie.
	SessionName = "landppt_session"
	// StateKey is the session key for OIDC state.
	StateKey = "oidc_state"
	// UserIDKey is the session key for the authenticated user ID.
	UserIDKey = "user_id"
	// UsernameKey is the session key for the username.
	UsernameKey = "username"
	// RoleKey is the session key for the user role.
	RoleKey = "role"
	// AuthenticatedAtKey is the session key for when the user authenticated.
	AuthenticatedAtKey = "authenticated_at"
	// LastActiveKey is the session key for the last request time, used to
	// enforce the idle timeout.
	LastActiveKey = "last_active"
	// SessionRecordKey is the session key for the database session record ID.
	SessionRecordKey = "session_record_id"
)

// SessionConfig holds session store configuration.
type SessionConfig struct {
	Secret      []byte
	MaxAge      int           // seconds
	IdleTimeout time.Duration // zero disables the idle check
	Secure      bool          // require HTTPS
	HTTPOnly    bool          // prevent JavaScript access
	SameSite    http.SameSite
	CookiePath  string
}

// DefaultSessionConfig returns a SessionConfig with secure defaults.
func DefaultSessionConfig(secret []byte, secure bool) SessionConfig {
	return SessionConfig{
		Secret:      secret,
		MaxAge:      86400, // 24 hours
		IdleTimeout: 30 * time.Minute,
		Secure:      secure,
		HTTPOnly:    true,
		SameSite:    http.SameSiteLaxMode,
		CookiePath:  "/",
	}
}

// SessionStore wraps a gorilla/sessions store with helper methods.
type SessionStore struct {
	store       *sessions.CookieStore
	idleTimeout time.Duration
	logger      zerolog.Logger
}

// NewSessionStore creates a new session store.
func NewSessionStore(cfg SessionConfig, logger zerolog.Logger) (*SessionStore, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	store := sessions.NewCookieStore(cfg.Secret)
	store.Options = &sessions.Options{
		Path:     cfg.CookiePath,
		MaxAge:   cfg.MaxAge,
		HttpOnly: cfg.HTTPOnly,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}

	s := &SessionStore{
		store:       store,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger.With().Str("component", "session").Logger(),
	}

	s.logger.Info().
		Bool("secure", cfg.Secure).
		Int("max_age", cfg.MaxAge).
		Dur("idle_timeout", cfg.IdleTimeout).
		Msg("session store initialized")

	return s, nil
}

// Get retrieves a session from the request.
func (s *SessionStore) Get(r *http.Request) (*sessions.Session, error) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// Save saves the session to the response.
func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SetOIDCState stores the OIDC state in the session.
func (s *SessionStore) SetOIDCState(r *http.Request, w http.ResponseWriter, state string) error {
	session, err := s.Get(r)
	if err != nil {
		return err
	}
	session.Values[StateKey] = state
	return s.Save(r, w, session)
}

// GetOIDCState retrieves and clears the OIDC state from the session.
func (s *SessionStore) GetOIDCState(r *http.Request, w http.ResponseWriter) (string, error) {
	session, err := s.Get(r)
	if err != nil {
		return "", err
	}
	state, ok := session.Values[StateKey].(string)
	if !ok {
		return "", fmt.Errorf("no state in session")
	}
	delete(session.Values, StateKey)
	if err := s.Save(r, w, session); err != nil {
		return "", err
	}
	return state, nil
}

// SessionUser represents the authenticated user data stored in session.
type SessionUser struct {
	ID              uuid.UUID
	Username        string
	Role            string
	AuthenticatedAt time.Time
	// SessionRecordID links the cookie to the server-side session record
	// used for listing and revocation. Zero when no record exists.
	SessionRecordID uuid.UUID
}

// SetUser stores user data in the session after successful authentication.
func (s *SessionStore) SetUser(r *http.Request, w http.ResponseWriter, user *SessionUser) error {
	session, err := s.Get(r)
	if err != nil {
		return err
	}
	session.Values[UserIDKey] = user.ID
	session.Values[UsernameKey] = user.Username
	session.Values[RoleKey] = user.Role
	session.Values[AuthenticatedAtKey] = user.AuthenticatedAt
	session.Values[SessionRecordKey] = user.SessionRecordID
	session.Values[LastActiveKey] = time.Now()
	return s.Save(r, w, session)
}

// GetUser retrieves the authenticated user from the session. Sessions idle
// longer than the configured timeout are treated as unauthenticated.
func (s *SessionStore) GetUser(r *http.Request) (*SessionUser, error) {
	session, err := s.Get(r)
	if err != nil {
		return nil, err
	}

	userID, ok := session.Values[UserIDKey].(uuid.UUID)
	if !ok {
		return nil, fmt.Errorf("no user in session")
	}

	if s.idleTimeout > 0 {
		lastActive, ok := session.Values[LastActiveKey].(time.Time)
		if ok && time.Since(lastActive) > s.idleTimeout {
			return nil, fmt.Errorf("session idle timeout exceeded")
		}
	}

	username, _ := session.Values[UsernameKey].(string)
	role, _ := session.Values[RoleKey].(string)
	authenticatedAt, _ := session.Values[AuthenticatedAtKey].(time.Time)
	recordID, _ := session.Values[SessionRecordKey].(uuid.UUID)

	return &SessionUser{
		ID:              userID,
		Username:        username,
		Role:            role,
		AuthenticatedAt: authenticatedAt,
		SessionRecordID: recordID,
	}, nil
}

// Touch refreshes the session's last active timestamp.
func (s *SessionStore) Touch(r *http.Request, w http.ResponseWriter) error {
	session, err := s.Get(r)
	if err != nil {
		return err
	}
	session.Values[LastActiveKey] = time.Now()
	return s.Save(r, w, session)
}

// ClearUser removes user data from the session (logout).
func (s *SessionStore) ClearUser(r *http.Request, w http.ResponseWriter) error {
	session, err := s.Get(r)
	if err != nil {
		return err
	}
	delete(session.Values, UserIDKey)
	delete(session.Values, UsernameKey)
	delete(session.Values, RoleKey)
	delete(session.Values, AuthenticatedAtKey)
	delete(session.Values, SessionRecordKey)
	delete(session.Values, LastActiveKey)
	// Set MaxAge to -1 to delete the cookie
	session.Options.MaxAge = -1
	return s.Save(r, w, session)
}

// IsAuthenticated checks if the session has a valid authenticated user.
func (s *SessionStore) IsAuthenticated(r *http.Request) bool {
	_, err := s.GetUser(r)
	return err == nil
}
