// Package log provides slog loggers that mask secrets.
//
// A Redactor masks an attribute when its key names a secret (cookies,
// passwords, Tor control credentials) or when its string value looks like
// one, such as a JWT, an AUTHENTICATE command or a hashed control password.
// Passwords embedded in URLs are masked in place, so a SOCKS proxy URL with
// isolation credentials still shows its host.
//
// SecureHandler applies a Redactor to every record, including attributes
// bound with With and nested groups. Masking applies in verbose mode too.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//	logger.Debug("control port", "control_cookie", cookieHex) // control_cookie=***REDACTED***
package log
