package shield

import "net/http"

// HeadToGet rewrites HEAD requests to GET before routing, so handlers only
// need a Get registration and HEAD still answers 200 rather than 405.
// net/http strips the response body for HEAD on its own.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
