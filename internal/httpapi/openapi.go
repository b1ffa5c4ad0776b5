package httpapi

import (
	"net/http"

	"github.com/swaggo/swag"

	"omnid/internal/apidocs"
)

// serveOpenAPI writes the registered OpenAPI document.
func serveOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc(apidocs.SwaggerInfo.InstanceName())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "openapi document unavailable: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}
