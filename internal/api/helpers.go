package api

import (
	"net/http"

	"github.com/amityvox/notifyhub/internal/api/apiutil"
)

// WriteJSON, WriteError, WriteNoContent, and DecodeJSON forward to apiutil
// so handler files in this package can call them unqualified, matching the
// teacher's own server.go convention.

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	apiutil.WriteJSON(w, status, data)
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	apiutil.WriteError(w, status, code, message)
}

func WriteNoContent(w http.ResponseWriter) {
	apiutil.WriteNoContent(w)
}

func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return apiutil.DecodeJSON(w, r, dst)
}
