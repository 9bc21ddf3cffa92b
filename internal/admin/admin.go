// Package admin holds the single admin account: login, JWT session tokens,
// permissions, the admin configuration blob and the activity journal.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/logger"
	"github.com/google/uuid"

	"tombola/internal/clock"
	"tombola/internal/store"
)

const (
	TokenTTL        = 24 * time.Hour
	SessionTTL      = 8 * time.Hour
	MaxActivities   = 50
	MinSecurityCode = 6
)

// Permissions.
const (
	PermTicketManagement  = "ticket_management"
	PermViewAnalytics     = "view_analytics"
	PermViewDashboard     = "view_dashboard"
	PermUserManagement    = "user_management"
	PermSystemSettings    = "system_settings"
	PermPaymentManagement = "payment_management"
	PermExportData        = "export_data"
)

var (
	basePermissions     = []string{PermTicketManagement, PermViewAnalytics, PermViewDashboard}
	advancedPermissions = []string{PermUserManagement, PermSystemSettings, PermPaymentManagement, PermExportData}
)

var (
	ErrMissingSecret        = errors.New("admin: token secret is required")
	ErrInvalidCredentials   = errors.New("admin: invalid credentials")
	ErrInvalidToken         = errors.New("admin: invalid or expired token")
	ErrNotAuthenticated     = errors.New("admin: not authenticated")
	ErrForbidden            = errors.New("admin: permission denied")
	ErrSecurityCodeTooShort = fmt.Errorf("admin: security code must have at least %d characters", MinSecurityCode)
)

// Credentials identify the admin account.
type Credentials struct {
	Email        string
	Password     string
	SecurityCode string
}

// Config wires a Service.
type Config struct {
	Credentials Credentials
	// Secret signs session tokens.
	Secret      string
	SuperAdmins []string
	Store       store.Store
	Clock       clock.Clock
}

// User is the logged-in admin as stored under adminUser.
type User struct {
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	LoginTime   time.Time `json:"loginTime"`
	SessionID   string    `json:"sessionId"`
	Permissions []string  `json:"permissions"`
}

// Activity is one journal entry.
type Activity struct {
	Action    string         `json:"action"`
	User      string         `json:"user"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
	SessionID string         `json:"sessionId"`
}

// PasswordStrength scores a password against five requirements.
type PasswordStrength struct {
	Strength     int             `json:"strength"`
	Requirements map[string]bool `json:"requirements"`
	IsValid      bool            `json:"isValid"`
}

// Service manages the admin session. Only one session exists at a time:
// logging in replaces it, logging out deletes it.
type Service struct {
	mu          sync.Mutex
	creds       Credentials
	secret      []byte
	superAdmins []string
	store       store.Store
	clock       clock.Clock
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Service{
		creds:       cfg.Credentials,
		secret:      []byte(cfg.Secret),
		superAdmins: cfg.SuperAdmins,
		store:       cfg.Store,
		clock:       clk,
	}, nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Login checks the credentials and opens a session. It returns the user and
// a signed token valid for TokenTTL.
func (s *Service) Login(email, password, securityCode string) (User, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := equal(email, s.creds.Email)
	ok = equal(password, s.creds.Password) && ok
	ok = equal(securityCode, s.creds.SecurityCode) && ok
	if !ok {
		logger.Warningf("admin login failed for %q", email)
		return User{}, "", ErrInvalidCredentials
	}

	now := s.clock.Now()
	user := User{
		Email:       email,
		Name:        "Administrateur Tombola",
		Role:        "admin",
		LoginTime:   now,
		SessionID:   uuid.NewString(),
		Permissions: s.Permissions(email),
	}
	token, err := s.sign(user, now)
	if err != nil {
		return User{}, "", err
	}

	if err := store.SaveJSON(s.store, store.KeyAdminUser, user); err != nil {
		return User{}, "", err
	}
	if err := s.store.Set(store.KeyAdminToken, []byte(token)); err != nil {
		return User{}, "", fmt.Errorf("store admin token: %w", err)
	}

	logger.Infof("admin %s logged in", email)
	return user, token, nil
}

func (s *Service) sign(user User, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   user.Email,
		ID:        user.SessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign admin token: %w", err)
	}
	return signed, nil
}

// parse checks the signature and the expiry against the service clock.
func (s *Service) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !claims.VerifyExpiresAt(s.clock.Now(), true) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// session returns the stored user and token, or ok=false.
func (s *Service) session() (User, string, bool) {
	var user User
	found, err := store.LoadJSON(s.store, store.KeyAdminUser, &user)
	if err != nil {
		logger.Warningf("admin session: %v", err)
	}
	if !found {
		return User{}, "", false
	}
	raw, ok, err := s.store.Get(store.KeyAdminToken)
	if err != nil || !ok || len(raw) == 0 {
		return User{}, "", false
	}
	return user, string(raw), true
}

// ValidateToken returns the session user when token is the current,
// unexpired session token.
func (s *Service) ValidateToken(token string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, err := s.parse(token)
	if err != nil {
		return User{}, err
	}
	user, current, ok := s.session()
	if !ok || !equal(token, current) || claims.ID != user.SessionID {
		return User{}, ErrInvalidToken
	}
	return user, nil
}

// IsAuthenticated reports whether an unexpired session exists. An expired
// session is closed.
func (s *Service) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticatedLocked()
}

func (s *Service) authenticatedLocked() bool {
	_, token, ok := s.session()
	if !ok {
		return false
	}
	if _, err := s.parse(token); err != nil {
		s.logoutLocked()
		return false
	}
	return true
}

// CurrentUser returns the logged-in admin.
func (s *Service) CurrentUser() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.authenticatedLocked() {
		return User{}, false
	}
	user, _, _ := s.session()
	return user, true
}

// Logout closes the session.
func (s *Service) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logoutLocked()
}

func (s *Service) logoutLocked() error {
	if err := s.store.Delete(store.KeyAdminUser); err != nil {
		return err
	}
	if err := s.store.Delete(store.KeyAdminToken); err != nil {
		return err
	}
	logger.Info("admin logged out")
	return nil
}

// ValidateSession enforces the SessionTTL limit on the login time, which is
// shorter than the token lifetime.
func (s *Service) ValidateSession() bool {
	user, ok := s.CurrentUser()
	if !ok || user.LoginTime.IsZero() {
		s.Logout()
		return false
	}
	if s.clock.Now().Sub(user.LoginTime) > SessionTTL {
		s.Logout()
		return false
	}
	return true
}

// SessionDuration formats the time since login as "42min" or "2h5min".
func (s *Service) SessionDuration() string {
	user, ok := s.CurrentUser()
	if !ok {
		return "0min"
	}
	mins := int(s.clock.Now().Sub(user.LoginTime) / time.Minute)
	if mins < 60 {
		return fmt.Sprintf("%dmin", mins)
	}
	return fmt.Sprintf("%dh%dmin", mins/60, mins%60)
}

// Permissions returns what email may do. Super admins get the advanced set
// on top of the base set.
func (s *Service) Permissions(email string) []string {
	perms := slices.Clone(basePermissions)
	if slices.Contains(s.superAdmins, email) {
		perms = append(perms, advancedPermissions...)
	}
	return perms
}

// HasPermission reports whether the current admin holds perm.
func (s *Service) HasPermission(perm string) bool {
	user, ok := s.CurrentUser()
	return ok && slices.Contains(user.Permissions, perm)
}

// SaveConfig stores the admin configuration. It needs system_settings.
func (s *Service) SaveConfig(cfg map[string]any) error {
	if !s.HasPermission(PermSystemSettings) {
		return ErrForbidden
	}
	return store.SaveJSON(s.store, store.KeyAdminConfig, cfg)
}

// LoadConfig returns the admin configuration, empty when absent or corrupt.
func (s *Service) LoadConfig() map[string]any {
	cfg := map[string]any{}
	found, err := store.LoadJSON(s.store, store.KeyAdminConfig, &cfg)
	if err != nil {
		logger.Warningf("admin config: %v", err)
	}
	if !found {
		return map[string]any{}
	}
	return cfg
}

// LogActivity journals action for the current admin. Without a session it
// does nothing.
func (s *Service) LogActivity(action string, details map[string]any) {
	user, ok := s.CurrentUser()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var activities []Activity
	if _, err := store.LoadJSON(s.store, store.KeyAdminActivities, &activities); err != nil {
		logger.Errorf("journal %s: %v (not recorded)", action, err)
		return
	}
	entry := Activity{
		Action:    action,
		User:      user.Email,
		Timestamp: s.clock.Now(),
		Details:   details,
		SessionID: user.SessionID,
	}
	activities = append([]Activity{entry}, activities...)
	if len(activities) > MaxActivities {
		activities = activities[:MaxActivities]
	}
	if err := store.SaveJSON(s.store, store.KeyAdminActivities, activities); err != nil {
		logger.Errorf("journal %s: %v", action, err)
	}
}

// RecentActivities returns up to limit entries, newest first.
func (s *Service) RecentActivities(limit int) []Activity {
	var activities []Activity
	found, err := store.LoadJSON(s.store, store.KeyAdminActivities, &activities)
	if err != nil {
		logger.Warningf("admin journal: %v", err)
	}
	if !found {
		return []Activity{}
	}
	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}
	return activities
}

// ValidateSecurityCode checks code against the configured security code.
func (s *Service) ValidateSecurityCode(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return equal(code, s.creds.SecurityCode)
}

// UpdateSecurityCode replaces the security code and returns the previous one.
func (s *Service) UpdateSecurityCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) < MinSecurityCode {
		return "", ErrSecurityCodeTooShort
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.creds.SecurityCode
	s.creds.SecurityCode = code
	logger.Info("admin security code updated")
	return previous, nil
}

var (
	reUpper   = regexp.MustCompile(`[A-Z]`)
	reLower   = regexp.MustCompile(`[a-z]`)
	reDigit   = regexp.MustCompile(`\d`)
	reSpecial = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

// ValidatePasswordStrength scores password; four of five requirements make
// it valid.
func ValidatePasswordStrength(password string) PasswordStrength {
	req := map[string]bool{
		"minLength":      len(password) >= 8,
		"hasUpperCase":   reUpper.MatchString(password),
		"hasLowerCase":   reLower.MatchString(password),
		"hasNumbers":     reDigit.MatchString(password),
		"hasSpecialChar": reSpecial.MatchString(password),
	}
	strength := 0
	for _, met := range req {
		if met {
			strength++
		}
	}
	return PasswordStrength{Strength: strength, Requirements: req, IsValid: strength >= 4}
}

type tokenKey struct{}

// WithToken attaches a bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token attached by WithToken.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// HasAdminAccess reports whether ctx carries the current session token.
func (s *Service) HasAdminAccess(ctx context.Context) bool {
	token := TokenFromContext(ctx)
	if token == "" {
		return false
	}
	_, err := s.ValidateToken(token)
	return err == nil
}
