package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/filestore"
)

// handleStaticFile serves a stored image by its public name. The mime type
// comes from the file extension via http.ServeFile.
func (h *Handler) handleStaticFile(folder filestore.Folder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		path, err := h.files.Resolve(folder, name)
		if err != nil {
			h.respondError(w, r, apperrors.NotFound("file not found"))
			return
		}
		http.ServeFile(w, r, path)
	}
}
