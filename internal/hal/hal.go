// Package hal reads the parts of HAL+JSON documents a CRUD client needs:
// embedded collections, self links and attribute values.
package hal

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jmespath/go-jmespath"
)

// MediaType is sent as the Accept header on every request
const MediaType = "application/hal+json, application/json"

// NoID is returned by IDFromHref when no id can be extracted
const NoID = "-"

var (
	idPattern    = regexp.MustCompile(`/([^/?]+)(\?.*)?$`)
	selfHrefPath = jmespath.MustCompile("_links.self.href")
)

// Entity is a decoded HAL resource
type Entity map[string]interface{}

// SelfHref returns _links.self.href, or "" when the entity has no usable self link
func (e Entity) SelfHref() string {
	if e == nil {
		return ""
	}
	v, err := selfHrefPath.Search(map[string]interface{}(e))
	if err != nil {
		return ""
	}
	href, _ := v.(string)
	return href
}

// ID returns the display id derived from the self link
func (e Entity) ID() string {
	return IDFromHref(e.SelfHref())
}

// Attr returns the attribute as form text.
// Missing and null attributes are "", numbers and booleans use their JSON spelling.
func (e Entity) Attr(key string) string {
	if e == nil {
		return ""
	}
	return Text(e[key])
}

// Text renders a decoded JSON value as a string
func Text(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

// IDFromHref extracts the final path segment of href, ignoring any query string
func IDFromHref(href string) string {
	m := idPattern.FindStringSubmatch(href)
	if m == nil {
		return NoID
	}
	return m[1]
}

// Embedded returns the entities stored under _embedded[key].
// A document without the envelope yields an empty, non-nil slice.
func Embedded(doc interface{}, key string) ([]Entity, error) {
	quoted, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("failed to quote embedded key: %w", err)
	}

	expr := "_embedded." + string(quoted)
	result, err := jmespath.Search(expr, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", expr, err)
	}

	items := make([]Entity, 0)
	list, ok := result.([]interface{})
	if !ok {
		return items, nil
	}
	for _, raw := range list {
		if obj, ok := raw.(map[string]interface{}); ok {
			items = append(items, Entity(obj))
		}
	}
	return items, nil
}

// Decode parses a JSON body into a generic document; an empty body decodes to nil
func Decode(body []byte) (interface{}, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return doc, nil
}

// AsEntity returns doc as an Entity when it is a JSON object
func AsEntity(doc interface{}) Entity {
	if obj, ok := doc.(map[string]interface{}); ok {
		return Entity(obj)
	}
	return nil
}
