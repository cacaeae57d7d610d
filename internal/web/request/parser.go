// Package request parses the bodies of api requests
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

// DefaultMaxBodySize limits request bodies unless configured otherwise
const DefaultMaxBodySize int64 = 10 << 20

// Parser handles parsing of HTTP request bodies
type Parser struct {
	maxBodySize int64 // Maximum size for request bodies (in bytes)
}

// NewParser creates a new request parser with default settings
func NewParser() *Parser {
	return NewParserWithMaxSize(DefaultMaxBodySize)
}

// NewParserWithMaxSize creates a parser with a custom max body size
func NewParserWithMaxSize(maxBytes int64) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return &Parser{maxBodySize: maxBytes}
}

// MaxBodySize returns the body size limit
func (p *Parser) MaxBodySize() int64 {
	return p.maxBodySize
}

// BodyMethod reports whether requests using method have their body parsed
func BodyMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// Parse reads the request body based on Content-Type. JSON decodes into
// maps, slices and scalars; form data into map[string]any; any other
// content is returned as string. An empty body yields "".
func (p *Parser) Parse(w http.ResponseWriter, r *http.Request) (any, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == "application/x-www-form-urlencoded":
		return p.ParseForm(w, r)
	case strings.HasPrefix(mediaType, "multipart/form-data"):
		return p.ParseMultipart(w, r)
	}

	data, err := p.read(w, r)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil
	}

	switch {
	case isJSON(mediaType):
		return decodeJSON(data)
	case mediaType == "":
		// no content type: JSON if it decodes, raw text otherwise
		if v, err := decodeJSON(data); err == nil {
			return v, nil
		}
		return string(data), nil
	default:
		return string(data), nil
	}
}

// ParseForm parses URL-encoded form data
func (p *Parser) ParseForm(w http.ResponseWriter, r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form data: %w", err)
	}
	return formToMap(r.PostForm), nil
}

// ParseMultipart parses the values of multipart/form-data. Files are not
// read into the body, but count towards the size limit.
func (p *Parser) ParseMultipart(w http.ResponseWriter, r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	if err := r.ParseMultipartForm(p.maxBodySize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()
	return formToMap(r.MultipartForm.Value), nil
}

func (p *Parser) read(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer r.Body.Close()

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return data, nil
}

func decodeJSON(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))

	var v any
	if err := decoder.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if decoder.More() {
		return nil, errors.New("request body contains multiple JSON documents")
	}
	return v, nil
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// formToMap converts form values to a map; repeated keys become []string
func formToMap(values url.Values) map[string]any {
	result := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) == 1 {
			result[key] = vals[0]
		} else {
			result[key] = vals
		}
	}
	return result
}
