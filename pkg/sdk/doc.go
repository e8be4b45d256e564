// Package takeoff is the Go client for the takeoff auto-count API. It
// covers condition and document management, template extraction, search
// runs in both blocking and streaming delivery, and result retrieval.
package takeoff
