package web

import (
	"net/http"
)

// preventCSRF rejects cross-origin state changing requests from browsers using Go's
// CrossOriginProtection. Requests without the Sec-Fetch-Site and Origin headers, such
// as those from command line clients and schedulers, are allowed.
func (web *WebApp) preventCSRF(next http.Handler) http.Handler {
	cop := http.NewCrossOriginProtection()
	cop.SetDenyHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.log.Warn("cross origin request rejected", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"))
		web.clientError(w, "CSRF check failed", http.StatusForbidden)
	}))
	return cop.Handler(next)
}
