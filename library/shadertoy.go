package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/richinsley/goshadermixer/logging"
)

// ShadertoyClient fetches shaders from shadertoy.com.
type ShadertoyClient struct {
	// APIKey defaults to $SHADERTOY_KEY.
	APIKey string
	// BaseURL defaults to https://www.shadertoy.com.
	BaseURL string
	HTTP    *http.Client
}

const defaultShadertoyURL = "https://www.shadertoy.com"

var reShaderID = regexp.MustCompile(`^(?:.*/view/)?([A-Za-z0-9]{6})/?$`)

// ShaderID extracts the shader ID from a bare ID or a /view/ URL.
func ShaderID(idOrURL string) (string, bool) {
	m := reShaderID.FindStringSubmatch(strings.TrimSpace(idOrURL))
	if m == nil {
		return "", false
	}
	return m[1], true
}

type apiResponse struct {
	Shader *Bundle `json:"Shader"`
	Error  string  `json:"Error,omitempty"`
}

func (c *ShadertoyClient) base() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return defaultShadertoyURL
}

func (c *ShadertoyClient) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// Fetch downloads a public shader and returns its image pass as an asset.
// Shaders not published to the API are retried through the site endpoint.
func (c *ShadertoyClient) Fetch(ctx context.Context, idOrURL string) (Asset, error) {
	id, ok := ShaderID(idOrURL)
	if !ok {
		return Asset{}, fmt.Errorf("not a shadertoy id or url: %q", idOrURL)
	}

	b, err := c.fetchAPI(ctx, id)
	if err != nil {
		logging.Logger().Warn("shadertoy api fetch failed, trying site", "id", id, "err", err)
		b, err = c.fetchSite(ctx, id)
		if err != nil {
			return Asset{}, err
		}
	}

	pass := imagePass(b.RenderPass)
	if pass < 0 {
		return Asset{}, &ImportFormatError{Name: id, Reason: "shader has no image pass"}
	}
	if len(b.RenderPass) > 1 {
		logging.Logger().Warn("only the image pass is imported", "id", id, "passes", len(b.RenderPass))
	}
	b.RenderPass = []RenderPass{b.RenderPass[pass]}
	a := bundleAsset(id, *b)
	a.ID = ""
	return a, nil
}

func imagePass(passes []RenderPass) int {
	for i, p := range passes {
		if p.Type == "image" {
			return i
		}
	}
	if len(passes) > 0 && passes[0].Type == "" {
		return 0
	}
	return -1
}

func (c *ShadertoyClient) fetchAPI(ctx context.Context, id string) (*Bundle, error) {
	key := c.APIKey
	if key == "" {
		key = os.Getenv("SHADERTOY_KEY")
	}
	if key == "" {
		return nil, errors.New("SHADERTOY_KEY environment variable not set")
	}

	u := fmt.Sprintf("%s/api/v1/shaders/%s?key=%s", c.base(), id, url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode shader JSON: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("shadertoy: %s", resp.Error)
	}
	if resp.Shader == nil || resp.Shader.Info == nil {
		return nil, errors.New("invalid JSON response: 'Shader' key is missing")
	}
	return resp.Shader, nil
}

// fetchSite uses the endpoint the website itself calls.
func (c *ShadertoyClient) fetchSite(ctx context.Context, id string) (*Bundle, error) {
	form := url.Values{}
	form.Set("s", fmt.Sprintf(`{"shaders":["%s"]}`, id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/shadertoy", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://www.shadertoy.com")
	req.Header.Set("Referer", "https://www.shadertoy.com/browse")
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var shaders []Bundle
	if err := json.Unmarshal(body, &shaders); err != nil {
		return nil, fmt.Errorf("failed to decode raw shader JSON: %w", err)
	}
	if len(shaders) == 0 || shaders[0].Info == nil {
		return nil, fmt.Errorf("raw shader response is empty for %s", id)
	}
	return &shaders[0], nil
}

func (c *ShadertoyClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to shadertoy failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad response status: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
