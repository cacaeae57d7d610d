package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/grundstein/gas/internal/api"
)

// execRequest is written to the stdin of executable handlers
type execRequest struct {
	Method   string              `json:"method"`
	URL      string              `json:"url"`
	Path     string              `json:"path"`
	Query    map[string][]string `json:"query"`
	Headers  map[string][]string `json:"headers"`
	Body     any                 `json:"body"`
	Hostname string              `json:"hostname"`
	Host     string              `json:"host"`
	Version  string              `json:"version"`
}

// execEndpoint runs an executable per request. The request is passed as
// JSON on stdin, stdout is parsed as response document. Output that is not
// a document is returned as plain text.
type execEndpoint struct {
	path   string
	route  api.Route
	shell  bool // run with sh, the file is not executable
	logger *zap.Logger
}

func (e *execEndpoint) Serve(rc *api.RequestContext) (*api.Response, error) {
	ctx := rc.Context
	if ctx == nil {
		ctx = context.Background()
	}

	input, err := json.Marshal(e.request(rc))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.path)
	if e.shell {
		cmd = exec.CommandContext(ctx, "sh", e.path)
	}
	cmd.Dir = filepath.Dir(e.path)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("handler %s failed: %w: %s", e.route.Key(), err, strings.TrimSpace(stderr.String()))
	}
	if stderr.Len() > 0 {
		e.logger.Debug("handler stderr", zap.String("route", e.route.Key()), zap.String("stderr", stderr.String()))
	}

	out := stdout.Bytes()
	if len(bytes.TrimSpace(out)) == 0 {
		return &api.Response{StatusCode: http.StatusNoContent, Headers: make(http.Header)}, nil
	}

	return execResponse(out)
}

// execResponse interprets handler output: a response document, a JSON
// object or array, or plain text
func execResponse(out []byte) (*api.Response, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(out, &root); err == nil && len(root.Content) > 0 {
		node := root.Content[0]
		if node.Kind == yaml.MappingNode && hasDocumentKey(node) {
			var doc responseDocument
			if err := node.Decode(&doc); err != nil {
				return nil, fmt.Errorf("invalid response document: %w", err)
			}
			return doc.response()
		}
	}

	trimmed := bytes.TrimSpace(out)
	if (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return &api.Response{StatusCode: http.StatusOK, Body: trimmed, JSON: true, Headers: make(http.Header)}, nil
	}
	return api.Text(http.StatusOK, string(out)), nil
}

func (e *execEndpoint) request(rc *api.RequestContext) execRequest {
	req := execRequest{
		Method:   rc.Method,
		Headers:  rc.Headers,
		Body:     rc.Body,
		Hostname: rc.Hostname,
		Host:     e.route.Host,
		Version:  e.route.Version,
		Path:     e.route.Path,
	}
	if rc.URL != nil {
		req.URL = rc.URL.String()
		req.Query = rc.URL.Query()
	}
	return req
}
