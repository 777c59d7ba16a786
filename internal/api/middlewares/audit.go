package middlewares

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/model/audit"
)

type AuditRecorder interface {
	Record(ctx context.Context, e *audit.Entry) error
}

// Audit writes one audit row per authenticated request. The fraud
// detector's IP and timing heuristics read these rows back.
func Audit(recorder AuditRecorder, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		auditFunc := func(w http.ResponseWriter, r *http.Request) {
			memberID, _ := r.Context().Value(model.KeyContextMemberID).(string)
			if memberID != "" {
				entry := audit.Entry{
					CreatedAt: time.Now().UTC(),
					MemberID:  memberID,
					IPAddress: ClientIP(r),
					Action:    r.Method + " " + r.URL.Path,
				}
				if err := recorder.Record(r.Context(), &entry); err != nil {
					log.LogAttrs(r.Context(),
						slog.LevelError,
						"failed to record audit entry",
						slog.Any(model.KeyLoggerError, err),
					)
				}
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(auditFunc)
	}
}

// ClientIP prefers the first X-Forwarded-For hop over RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
