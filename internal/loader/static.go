package loader

import (
	"encoding/json"
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/grundstein/gas/internal/api"
)

// responseDocument is a static response: {code, body, json, head}
type responseDocument struct {
	Code int               `yaml:"code"`
	Body any               `yaml:"body"`
	JSON *bool             `yaml:"json"`
	Head map[string]string `yaml:"head"`
}

var documentKeys = map[string]bool{"code": true, "body": true, "json": true, "head": true}

// parseResponseDocument decodes a response document. A document that
// uses none of the response keys is served as JSON body as a whole.
func parseResponseDocument(content []byte) (*responseDocument, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	node := root.Content[0]

	if node.Kind == yaml.MappingNode && hasDocumentKey(node) {
		var doc responseDocument
		if err := node.Decode(&doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}

	var body any
	if err := node.Decode(&body); err != nil {
		return nil, err
	}
	asJSON := true
	return &responseDocument{Body: body, JSON: &asJSON}, nil
}

func hasDocumentKey(node *yaml.Node) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if documentKeys[node.Content[i].Value] {
			return true
		}
	}
	return false
}

// response renders the document. String bodies are plain text unless json
// is set; any other body is encoded as JSON.
func (d *responseDocument) response() (*api.Response, error) {
	code := d.Code
	if code == 0 {
		code = http.StatusOK
	}

	var resp *api.Response
	text, isText := d.Body.(string)
	switch {
	case d.Body == nil && (d.JSON == nil || !*d.JSON):
		resp = api.Text(code, "")
	case isText && (d.JSON == nil || !*d.JSON):
		resp = api.Text(code, text)
	default:
		body, err := json.Marshal(d.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		resp = &api.Response{StatusCode: code, Body: body, JSON: true, Headers: make(http.Header)}
	}

	for name, value := range d.Head {
		resp.Headers.Set(name, value)
	}
	return resp, nil
}

// staticEndpoint serves a fixed response document
func staticEndpoint(doc *responseDocument) api.Endpoint {
	return api.EndpointFunc(func(rc *api.RequestContext) (*api.Response, error) {
		return doc.response()
	})
}
