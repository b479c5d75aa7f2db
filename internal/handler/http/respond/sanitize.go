package respond

import (
	"regexp"
)

var (
	// 接続文字列のパスワード (postgres://user:pass@, redis://:pass@)
	dsnPasswordPattern = regexp.MustCompile(`://([^:/@]*):([^@]+)@`)

	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)

	// JWT (unsubscribe トークンなど)
	jwtPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)

	// Postmark のサーバートークンは UUID 形式
	serverTokenPattern = regexp.MustCompile(`(?i)(x-postmark-server-token[:=]\s*)[0-9a-f-]{36}`)
)

// SanitizeError returns err's message with credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = dsnPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = bearerPattern.ReplaceAllString(msg, "Bearer ****")
	msg = jwtPattern.ReplaceAllString(msg, "****")
	msg = serverTokenPattern.ReplaceAllString(msg, "${1}****")
	return msg
}
