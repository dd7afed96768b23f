// Package middleware provides HTTP middleware for the downloader API.
//
// It includes:
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labeled by route template
//   - CORS headers for the configured browser origins
//   - Panic recovery into a JSON 500 response
package middleware
