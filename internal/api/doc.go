// Package api hosts the HTTP server, middleware, and JSON handlers. Routes:
//   - GET / liveness banner.
//   - GET /healthz for health checks and GET /metrics for Prometheus scraping.
//   - GET /api/fetch runs one fetch-and-store cycle.
//   - POST /api/notify relays unnotified posts to a Telegram chat.
//   - GET /api/posts?limit=N lists stored posts, newest first.
package api
