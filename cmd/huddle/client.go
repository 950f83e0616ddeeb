package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/antoniostano/huddle/internal/auth"
)

// clientDeps holds what the client commands need from the outside world.
type clientDeps struct {
	HTTPClient *http.Client
	Getenv     func(string) string
}

func defaultClientDeps() *clientDeps {
	return &clientDeps{
		HTTPClient: &http.Client{Timeout: 90 * time.Second},
		Getenv:     os.Getenv,
	}
}

type clientFlags struct {
	server string
	token  string
	user   string
	output string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "server base URL (default $HUDDLE_SERVER or http://localhost:8080)")
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token (default $HUDDLE_TOKEN)")
	cmd.Flags().StringVar(&f.user, "user", "", "user id sent as "+auth.UserIDHeader+" when the server runs in header auth mode")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "output format: text, json")
}

func (f *clientFlags) client(deps *clientDeps) (*apiClient, error) {
	switch f.output {
	case "text", "json":
	default:
		return nil, fmt.Errorf("unsupported output format %q (expected text|json)", f.output)
	}
	server := firstSet(f.server, deps.Getenv("HUDDLE_SERVER"), "http://localhost:8080")
	return &apiClient{
		baseURL: strings.TrimRight(server, "/"),
		token:   firstSet(f.token, deps.Getenv("HUDDLE_TOKEN")),
		user:    f.user,
		http:    deps.HTTPClient,
	}, nil
}

type apiClient struct {
	baseURL string
	token   string
	user    string
	http    *http.Client
}

// apiError is a non-2xx response decoded from the server's error body.
type apiError struct {
	Status  int
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s (%s, HTTP %d)", e.Message, e.Code, e.Status)
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.user != "" {
		req.Header.Set(auth.UserIDHeader, c.user)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &apiError{Status: res.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
