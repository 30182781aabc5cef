package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/asyncview/internal/api/shared"
	"golang.org/x/time/rate"
)

// Idle clients are forgotten after visitorTTL; the check runs at most once
// per sweepInterval.
const (
	visitorTTL    = 3 * time.Minute
	sweepInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SubmissionLimiter throttles job submissions per client. Only requests
// without a task_id are counted; polling an existing job is never limited.
type SubmissionLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewSubmissionLimiter allows rps submissions per second per client with the
// given burst. A burst below one is raised to one.
func NewSubmissionLimiter(rps float64, burst int) *SubmissionLimiter {
	if burst < 1 {
		burst = 1
	}
	return &SubmissionLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// WithClock replaces the limiter's time source.
func (l *SubmissionLimiter) WithClock(now func() time.Time) *SubmissionLimiter {
	l.now = now
	return l
}

// allow reports whether key may submit now.
func (l *SubmissionLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= sweepInterval {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Len returns the number of tracked clients.
func (l *SubmissionLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Middleware rejects submissions over the limit with 429.
func (l *SubmissionLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get(shared.TaskIDParam) != "" {
			next.ServeHTTP(w, r)
			return
		}

		if !l.allow(clientKey(r)) {
			retryAfter := 1
			if l.limit > 0 {
				retryAfter = int(1/float64(l.limit)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
				"Too many submissions, try again later", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the submitter: the principal when authenticated,
// otherwise the remote IP.
func clientKey(r *http.Request) string {
	if p := shared.Principal(r.Context()); p != nil {
		return "user:" + p.String()
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.Trim(r.RemoteAddr, "[]")
	}
	return "ip:" + ip
}
