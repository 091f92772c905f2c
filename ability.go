package auth

import (
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// ResourceNamer lets a type choose the resource name used in permission
// checks instead of its Go type name.
type ResourceNamer interface {
	ResourceName() string
}

// Ability answers capability questions against a fixed permission set.
// Permissions use the "{action}:{resource}" shape, e.g. "read:posts".
type Ability struct {
	scopes map[string]struct{}
}

// NewAbility builds an Ability from the given permission strings. Blank
// entries are ignored.
func NewAbility(scopes []string) Ability {
	set := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		set[scope] = struct{}{}
	}
	return Ability{scopes: set}
}

// Can reports whether the ability grants action on resource. resource may be
// a string, a ResourceNamer, or any value whose type name identifies it.
func (a Ability) Can(action string, resource any) bool {
	if len(a.scopes) == 0 {
		return false
	}
	permission := PermissionName(action, resource)
	if permission == "" {
		return false
	}
	_, ok := a.scopes[permission]
	return ok
}

// Cannot is the negation of Can.
func (a Ability) Cannot(action string, resource any) bool {
	return !a.Can(action, resource)
}

// Has reports whether the raw permission string is granted.
func (a Ability) Has(permission string) bool {
	_, ok := a.scopes[permission]
	return ok
}

// Empty reports whether no permissions are granted.
func (a Ability) Empty() bool {
	return len(a.scopes) == 0
}

// Scopes returns the granted permissions in sorted order.
func (a Ability) Scopes() []string {
	out := make([]string, 0, len(a.scopes))
	for scope := range a.scopes {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// PermissionName returns "{action}:{plural resource}" for the given pair, or
// an empty string when either side is blank.
func PermissionName(action string, resource any) string {
	action = strings.TrimSpace(action)
	name := ResourceName(resource)
	if action == "" || name == "" {
		return ""
	}
	return action + ":" + name
}

// ResourceName converts a resource into its pluralized, snake_cased form.
// Namespaces separated by "::" or "." become "/" and only the last segment
// is pluralized: "Admin::BlogPost" -> "admin/blog_posts".
func ResourceName(resource any) string {
	var raw string
	switch r := resource.(type) {
	case nil:
		return ""
	case string:
		raw = r
	case ResourceNamer:
		raw = r.ResourceName()
	default:
		raw = typeName(resource)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = strings.ReplaceAll(raw, "::", "/")
	raw = strings.ReplaceAll(raw, ".", "/")

	segments := strings.Split(raw, "/")
	kept := segments[:0]
	for _, segment := range segments {
		segment = underscore(segment)
		if segment != "" {
			kept = append(kept, segment)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	last := len(kept) - 1
	kept[last] = inflection.Plural(kept[last])
	return strings.Join(kept, "/")
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}

// underscore turns CamelCase into snake_case, keeping acronyms together:
// "HTTPRequest" -> "http_request", "SomeResourceType" -> "some_resource_type".
func underscore(s string) string {
	runes := []rune(strings.ReplaceAll(s, "-", "_"))
	var b strings.Builder
	b.Grow(len(runes) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prev != '_' && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}
