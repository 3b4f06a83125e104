package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// Redactor decides which attributes are secret. Keys are compared after
// lowercasing and mapping '-' to '_'.
type Redactor struct {
	keys     map[string]struct{}
	keywords []string
	patterns []*regexp.Regexp
}

// defaultKeys are attribute keys that are always masked.
var defaultKeys = []string{
	// HTTP
	"authorization", "proxy_authorization", "cookie", "set_cookie",
	"x_api_key", "x_auth_token",
	// Sessions
	"session", "session_id", "sessionid", "sid", "jsessionid",
	// Keys
	"api_key", "apikey", "private_key", "privatekey", "secret_key", "secretkey",
	"access_token", "refresh_token", "wallet_key",
	// Tor control port and SOCKS isolation credentials
	"control_cookie", "cookie_hex", "hashedcontrolpassword",
	"socks_username", "socks_password",
}

// defaultKeywords mask any key containing them. A bare "key" is not listed:
// it would hide fields such as "primary_key" or "monkey".
var defaultKeywords = []string{
	"password", "passwd", "secret", "token", "auth",
	"credential", "private", "seed", "mnemonic",
}

// defaultPatterns mask string values regardless of their key.
var defaultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`), // JWT
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`), // opaque API keys and hex cookies
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
	regexp.MustCompile(`== ed25519v1-secret:`), // hs_ed25519_secret_key header
	regexp.MustCompile(`(?i)^AUTHENTICATE\s+\S+`),
	regexp.MustCompile(`^16:[0-9A-Fa-f]{58}$`), // HashedControlPassword
}

// DefaultRedactor returns the redactor used by NewSecureHandler.
func DefaultRedactor() *Redactor {
	r := &Redactor{
		keys:     make(map[string]struct{}, len(defaultKeys)),
		keywords: defaultKeywords,
		patterns: defaultPatterns,
	}
	r.AddKeys(defaultKeys...)
	return r
}

// AddKeys marks additional attribute keys as secret.
func (r *Redactor) AddKeys(keys ...string) {
	for _, k := range keys {
		r.keys[normalizeKey(k)] = struct{}{}
	}
}

// IsSensitiveKey reports whether values under key must be masked.
func (r *Redactor) IsSensitiveKey(key string) bool {
	k := normalizeKey(key)
	if _, ok := r.keys[k]; ok {
		return true
	}
	for _, kw := range r.keywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether value looks like a secret.
func (r *Redactor) IsSensitiveValue(value string) bool {
	for _, p := range r.patterns {
		if p.MatchString(value) {
			return true
		}
	}
	return false
}

// Redact returns a with secrets masked. Groups are walked recursively and
// URLs keep everything but their password.
func (r *Redactor) Redact(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		redacted := make([]slog.Attr, len(group))
		for i, ga := range group {
			redacted[i] = r.Redact(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redacted...)}
	}

	if r.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}

	s := a.Value.String()
	if r.IsSensitiveValue(s) {
		return slog.String(a.Key, MaskValue)
	}
	if masked, ok := maskURLPassword(s); ok {
		return slog.String(a.Key, masked)
	}
	return a
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

// maskURLPassword replaces the password of an absolute URL with MaskValue.
// SOCKS isolation credentials travel this way in proxy URLs.
func maskURLPassword(s string) (string, bool) {
	if !strings.Contains(s, "://") || !strings.Contains(s, "@") {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return "", false
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return "", false
	}
	u.User = url.UserPassword(u.User.Username(), MaskValue)
	// url.String escapes the mask, so splice it back in.
	return strings.Replace(u.String(), url.PathEscape(MaskValue), MaskValue, 1), true
}

// SecureHandler wraps an slog.Handler and masks secrets before records
// reach it. It works with any underlying handler and with tornago's slog
// integration.
type SecureHandler struct {
	handler  slog.Handler
	redactor *Redactor
}

// HandlerOption configures a SecureHandler.
type HandlerOption func(*SecureHandler)

// WithRedactor replaces the default redactor.
func WithRedactor(r *Redactor) HandlerOption {
	return func(h *SecureHandler) {
		if r != nil {
			h.redactor = r
		}
	}
}

// NewSecureHandler wraps handler. A nil handler wraps slog.Default().Handler().
func NewSecureHandler(handler slog.Handler, opts ...HandlerOption) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	h := &SecureHandler{handler: handler, redactor: DefaultRedactor()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled delegates to the wrapped handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle masks the record's attributes and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(h.redactor.Redact(a))
		return true
	})
	return h.handler.Handle(ctx, masked)
}

// WithAttrs masks attrs once, when they are bound.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.redactor.Redact(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(masked), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name), redactor: h.redactor}
}

// NewSecureLogger returns a text logger on w that masks secrets.
// The level is Warn, or Debug when verbose. The result suits
// slog.SetDefault and every component that takes a *slog.Logger.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
