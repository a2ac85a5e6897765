package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle limits requests per client IP. It complements the credential
// limiter inside the Manager: Throttle protects HTTP surfaces as a whole,
// the Manager limits attempts per account.
type Throttle struct {
	rpm     int
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewThrottle allows rpm requests per minute per client IP, with a matching
// burst. rpm <= 0 falls back to 60.
func NewThrottle(rpm int) *Throttle {
	if rpm <= 0 {
		rpm = 60
	}
	return &Throttle{rpm: rpm, clients: map[string]*clientLimiter{}}
}

func (t *Throttle) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.getLimiter(clientIP(r)).Allow() {
			w.Header().Set("Retry-After", "60")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *Throttle) getLimiter(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.clients[ip]; ok {
		c.lastSeen = time.Now()
		t.gcLocked()
		return c.limiter
	}
	created := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.rpm)), t.rpm),
		lastSeen: time.Now(),
	}
	t.clients[ip] = created
	t.gcLocked()
	return created.limiter
}

func (t *Throttle) gcLocked() {
	if len(t.clients) < 1000 {
		return
	}
	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, c := range t.clients {
		if c.lastSeen.Before(cutoff) {
			delete(t.clients, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return forwarded
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
