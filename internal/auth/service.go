package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidCode     = errors.New("invalid sign-in code")
	ErrCodeExpired     = errors.New("sign-in code expired")
	ErrTooManyAttempts = errors.New("too many invalid attempts")
	ErrBadCodeFormat   = errors.New("sign-in code must be 6 digits")
)

// Service issues sign-in codes, exchanges them for cookie sessions, and
// resolves the current identity per request. Sign-in/sign-out hooks let the
// rest of the app react to session changes.
type Service struct {
	repo   *MemoryRepo
	logger *log.Logger

	cookieName  string
	codeTTL     time.Duration
	sessionTTL  time.Duration
	maxAttempts int

	onSignIn  func(userID string)
	onSignOut func(userID string)
}

type ServiceOptions struct {
	Repo       *MemoryRepo
	Logger     *log.Logger
	CookieName string
	CodeTTL    time.Duration
	SessionTTL time.Duration
}

func NewService(opts ServiceOptions) *Service {
	if opts.Repo == nil {
		opts.Repo = NewMemoryRepo()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.CookieName == "" {
		opts.CookieName = "tracker_session"
	}
	if opts.CodeTTL <= 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	return &Service{
		repo:        opts.Repo,
		logger:      opts.Logger,
		cookieName:  opts.CookieName,
		codeTTL:     opts.CodeTTL,
		sessionTTL:  opts.SessionTTL,
		maxAttempts: 5,
	}
}

// SetSignInHook registers fn to run after each successful sign-in.
func (s *Service) SetSignInHook(fn func(userID string)) { s.onSignIn = fn }

// SetSignOutHook registers fn to run after each sign-out.
func (s *Service) SetSignOutHook(fn func(userID string)) { s.onSignOut = fn }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return ErrInvalidEmail
	}
	if strings.ToLower(addr.Address) != email {
		return ErrInvalidEmail
	}
	return nil
}

func validateCode(code string) error {
	if len(code) != 6 {
		return ErrBadCodeFormat
	}
	for _, ch := range code {
		if ch < '0' || ch > '9' {
			return ErrBadCodeFormat
		}
	}
	return nil
}

func hashCode(email, code string) string {
	sum := sha256.Sum256([]byte(email + ":" + code))
	return hex.EncodeToString(sum[:])
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func generateToken() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func (s *Service) RequestCode(email string, now time.Time) (expiresAt time.Time, code string, err error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return time.Time{}, "", err
	}
	code, err = generateCode()
	if err != nil {
		return time.Time{}, "", err
	}
	ch := CodeChallenge{
		Email:       email,
		CodeHash:    hashCode(email, code),
		ExpiresAt:   now.Add(s.codeTTL),
		RequestedAt: now,
		Attempts:    0,
	}
	if err := s.repo.PutChallenge(ch); err != nil {
		return time.Time{}, "", err
	}
	return ch.ExpiresAt, code, nil
}

func (s *Service) VerifyCode(email, code string, now time.Time) (User, string, time.Time, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return User{}, "", time.Time{}, err
	}
	if err := validateCode(code); err != nil {
		return User{}, "", time.Time{}, err
	}

	ch, ok := s.repo.GetChallenge(email)
	if !ok {
		return User{}, "", time.Time{}, ErrInvalidCode
	}
	if now.After(ch.ExpiresAt) {
		_ = s.repo.DeleteChallenge(email)
		return User{}, "", time.Time{}, ErrCodeExpired
	}
	if ch.Attempts >= s.maxAttempts {
		_ = s.repo.DeleteChallenge(email)
		return User{}, "", time.Time{}, ErrTooManyAttempts
	}

	if hashCode(email, code) != ch.CodeHash {
		ch.Attempts++
		if ch.Attempts >= s.maxAttempts {
			_ = s.repo.DeleteChallenge(email)
			return User{}, "", time.Time{}, ErrTooManyAttempts
		}
		_ = s.repo.PutChallenge(ch)
		return User{}, "", time.Time{}, ErrInvalidCode
	}

	if err := s.repo.DeleteChallenge(email); err != nil {
		return User{}, "", time.Time{}, err
	}

	u, _, err := s.repo.GetOrCreateUser(email, now)
	if err != nil {
		return User{}, "", time.Time{}, err
	}

	token, err := generateToken()
	if err != nil {
		return User{}, "", time.Time{}, err
	}

	exp := now.Add(s.sessionTTL)
	sess := Session{
		ID:        "sess_" + uuid.NewString(),
		UserID:    u.ID,
		TokenHash: hashToken(token),
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: exp,
	}
	if err := s.repo.CreateSession(sess); err != nil {
		return User{}, "", time.Time{}, err
	}

	if s.onSignIn != nil {
		s.onSignIn(u.ID)
	}
	return u, token, exp, nil
}

func (s *Service) AuthenticateRequest(r *http.Request, now time.Time) (User, Session, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return User{}, Session{}, false
	}

	hash := hashToken(cookie.Value)
	sess, ok := s.repo.GetSessionByTokenHash(hash)
	if !ok {
		return User{}, Session{}, false
	}
	if now.After(sess.ExpiresAt) {
		_, _ = s.repo.DeleteSessionByTokenHash(hash)
		return User{}, Session{}, false
	}

	u, ok := s.repo.GetUserByID(sess.UserID)
	if !ok {
		_, _ = s.repo.DeleteSessionByTokenHash(hash)
		return User{}, Session{}, false
	}

	// Best-effort last-seen update, throttled to reduce writes.
	if now.Sub(sess.LastSeen) >= 5*time.Minute {
		s.repo.TouchSession(hash, now)
		sess.LastSeen = now
	}
	return u, sess, true
}

func (s *Service) RevokeSessionForRequest(r *http.Request) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil || cookie.Value == "" {
		return
	}
	sess, ok := s.repo.DeleteSessionByTokenHash(hashToken(cookie.Value))
	if ok && s.onSignOut != nil {
		s.onSignOut(sess.UserID)
	}
}

func (s *Service) shouldUseSecureCookie(r *http.Request) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("TRACKER_COOKIE_SECURE"))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}

func (s *Service) SetSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.shouldUseSecureCookie(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Service) ClearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.shouldUseSecureCookie(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireAPI rejects unauthenticated requests with a JSON 401 and otherwise
// injects user and session into the request context.
func (s *Service) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, sess, ok := s.AuthenticateRequest(r, time.Now())
		if !ok {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "unauthorized"})
			return
		}
		ctx := withSessionContext(withUserContext(r.Context(), u), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
