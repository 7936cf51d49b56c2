package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/arenaledger/internal/crypto"
)

// apiClient calls the ledger API, signing mutations with the local key.
type apiClient struct {
	baseURL string
	http    *http.Client
	signer  *crypto.Signer
	out     io.Writer
}

func newAPIClient(baseURL string, signer *crypto.Signer, out io.Writer) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		signer:  signer,
		out:     out,
	}
}

// get fetches path and prints the JSON response.
func (c *apiClient) get(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

// post signs body and sends it to path.
func (c *apiClient) post(ctx context.Context, path string, body any) error {
	if c.signer == nil {
		return fmt.Errorf("no signing key configured (set client.private_key or client.encrypted_key_path)")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.signer.SignRequest(req, raw, time.Now()); err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") != nil {
		pretty.Reset()
		pretty.Write(data)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(pretty.String()))
	}
	fmt.Fprintln(c.out, pretty.String())
	return nil
}
