package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/halogen-labs/halogen/internal/errors"
)

const maxFormMemory = 32 << 20

// form is a parsed multipart request: text fields plus at most one uploaded
// image.
type form struct {
	fields map[string]string
	image  io.Reader
}

// parseForm reads the request's multipart body. The image rides under any
// file field; only the first one counts.
func parseForm(r *http.Request) (*form, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("malformed multipart form: %v", err))
	}

	f := &form{fields: make(map[string]string)}
	for key, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			f.fields[key] = values[0]
		}
	}
	for _, headers := range r.MultipartForm.File {
		if len(headers) == 0 {
			continue
		}
		file, err := headers[0].Open()
		if err != nil {
			return nil, apperrors.BadRequest(fmt.Sprintf("unreadable file upload: %v", err))
		}
		f.image = file
		break
	}
	return f, nil
}

// requireFields returns the listed fields, erroring with the full missing
// set when any are absent.
func (f *form) requireFields(names ...string) (map[string]string, error) {
	var missing []string
	for _, name := range names {
		if strings.TrimSpace(f.fields[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.MissingFields(missing)
	}
	return f.fields, nil
}
