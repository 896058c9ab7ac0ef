package middleware

import "net/http"

// 跨域调用方（网页端）允许携带的头部与方法。
const (
	allowOrigin  = "*"
	allowHeaders = "authorization, x-client-info, apikey, content-type"
	allowMethods = "GET, POST, OPTIONS"
)

// CORS 为所有响应附加宽松的跨域头，并直接应答预检请求。
// 预检请求不触发任何业务逻辑，返回204且无响应体。
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		w.Header().Set("Access-Control-Allow-Methods", allowMethods)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
