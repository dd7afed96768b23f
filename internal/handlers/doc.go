// Package handlers provides HTTP request handlers for the downloader API.
//
// It includes handlers for:
//   - Video metadata lookup and artifact downloads
//   - Serving registered artifacts and their preview thumbnails
//   - Health, liveness and version probes
//   - Diagnostics over the managed directory, the registry and the history
package handlers
