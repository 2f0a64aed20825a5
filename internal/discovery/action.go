package discovery

import (
	"net/http"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/frahmantamala/backoffice/internal/core/common/validation"
)

// DeriveAction maps an exposed operation onto a "verb:resource" permission.
// The verb comes from the method, and from whether a GET addresses one item.
// The resource is the last literal path segment, pluralised when singular.
// ok is false for methods and paths that yield no valid action.
func DeriveAction(method, path string) (action string, ok bool) {
	segments := splitPath(path)

	resource := ""
	trailingParam := false
	for i := len(segments) - 1; i >= 0; i-- {
		if isParam(segments[i]) {
			if i == len(segments)-1 {
				trailingParam = true
			}
			continue
		}
		resource = segments[i]
		break
	}
	if resource == "" {
		return "", false
	}

	verb := verbFor(strings.ToUpper(method), trailingParam)
	if verb == "" {
		return "", false
	}

	action = verb + ":" + plural(strings.ToLower(resource))
	if validation.ValidateAction(action) != nil {
		return "", false
	}
	return action, true
}

func verbFor(method string, trailingParam bool) string {
	switch method {
	case http.MethodGet:
		if trailingParam {
			return "view"
		}
		return "list"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return ""
}

func splitPath(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		// chi reports mounted sub-routers with a trailing "/*"
		if s == "" || s == "*" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// isParam recognises chi and OpenAPI "{id}" as well as ":id" placeholders.
func isParam(segment string) bool {
	return strings.HasPrefix(segment, "{") || strings.HasPrefix(segment, ":")
}

func plural(word string) string {
	if inflection.Singular(word) != word {
		return word
	}
	return inflection.Plural(word)
}
