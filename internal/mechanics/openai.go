package mechanics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"raidlab/internal/combatlog"
)

// DefaultResponsesURL is the OpenAI responses endpoint.
const DefaultResponsesURL = "https://api.openai.com/v1/responses"

// OpenAIConfig configures the generative enrichment collaborator.
type OpenAIConfig struct {
	APIKey            string
	ResponsesURL      string
	Model             string
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// OpenAIEnricher asks a hosted model to name mechanics and classify
// abilities. Without an API key every call returns ErrUnavailable.
type OpenAIEnricher struct {
	cfg     OpenAIConfig
	limiter *rate.Limiter
}

// NewOpenAIEnricher builds an enricher. Zero-valued fields get defaults.
func NewOpenAIEnricher(cfg OpenAIConfig) *OpenAIEnricher {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if strings.TrimSpace(cfg.ResponsesURL) == "" {
		cfg.ResponsesURL = DefaultResponsesURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 20
	}
	return &OpenAIEnricher{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
	}
}

func (o *OpenAIEnricher) Name() string { return "openai" }

// Available reports whether a credential is configured.
func (o *OpenAIEnricher) Available() bool {
	return o != nil && strings.TrimSpace(o.cfg.APIKey) != ""
}

func (o *OpenAIEnricher) Mechanics(ctx context.Context, encounter string, abilities []string) ([]Mechanic, error) {
	if !o.Available() {
		return nil, ErrUnavailable
	}
	if len(abilities) == 0 {
		return nil, nil
	}

	prompt := fmt.Sprintf(`You design a dodge-the-hazard training game for the raid encounter %q.
From these enemy abilities pick at most %d that players must physically react to: %s.
Reply with JSON only: {"mechanics":[{"name":"","type":"dodge|soak|spread","color":"#rrggbb","description":"","damage":20,"interval":3000,"radius":60}]}
interval is milliseconds between occurrences, radius is pixels on a 600x600 arena.`,
		encounter, MaxMechanics, strings.Join(quoteAll(abilities), ", "))

	text, err := o.invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}

	doc := stripFences(text)
	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("mechanics response is not valid json")
	}
	var out []Mechanic
	gjson.Get(doc, "mechanics").ForEach(func(_, v gjson.Result) bool {
		out = append(out, Mechanic{
			Name:        v.Get("name").String(),
			Type:        ParseType(v.Get("type").String()),
			Color:       v.Get("color").String(),
			Description: v.Get("description").String(),
			Damage:      int(v.Get("damage").Int()),
			Interval:    int(v.Get("interval").Int()),
			Radius:      v.Get("radius").Float(),
		})
		return true
	})
	return out, nil
}

func (o *OpenAIEnricher) Classify(ctx context.Context, spells []combatlog.SpellStats) (map[string]Classification, error) {
	if !o.Available() {
		return nil, ErrUnavailable
	}
	names := make([]string, 0, len(spells))
	seen := make(map[string]struct{}, len(spells))
	for _, sp := range spells {
		if _, ok := seen[sp.Name]; ok {
			continue
		}
		seen[sp.Name] = struct{}{}
		names = append(names, sp.Name)
	}
	if len(names) == 0 {
		return map[string]Classification{}, nil
	}

	prompt := fmt.Sprintf(`For each raid boss ability below, list which roles it mainly affects (Tank, Healer, Melee, Ranged) and give a one sentence tip.
Abilities: %s.
Reply with JSON only: {"classifications":{"<ability>":{"roles":["Tank"],"description":""}}}`,
		strings.Join(quoteAll(names), ", "))

	text, err := o.invoke(ctx, prompt)
	if err != nil {
		return nil, err
	}
	doc := stripFences(text)
	if !gjson.Valid(doc) {
		return nil, fmt.Errorf("classification response is not valid json")
	}

	out := make(map[string]Classification, len(names))
	gjson.Get(doc, "classifications").ForEach(func(k, v gjson.Result) bool {
		var c Classification
		v.Get("roles").ForEach(func(_, r gjson.Result) bool {
			if role, ok := parseRole(r.String()); ok {
				c.Roles = append(c.Roles, role)
			}
			return true
		})
		c.Description = v.Get("description").String()
		out[k.String()] = c
		return true
	})
	return out, nil
}

// invoke sends one prompt and returns the model's output text.
func (o *OpenAIEnricher) invoke(ctx context.Context, prompt string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limit: %w", err)
	}

	requestBody, err := json.Marshal(map[string]any{
		"model": o.cfg.Model,
		"input": prompt,
	})
	if err != nil {
		return "", fmt.Errorf("marshal invoke request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.ResponsesURL, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(o.cfg.APIKey))

	res, err := o.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("invoke request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read invoke response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet := body
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return "", fmt.Errorf("invoke request status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if text := strings.TrimSpace(gjson.GetBytes(body, "output_text").String()); text != "" {
		return text, nil
	}
	var text string
	gjson.GetBytes(body, "output").ForEach(func(_, item gjson.Result) bool {
		item.Get("content").ForEach(func(_, content gjson.Result) bool {
			text = strings.TrimSpace(content.Get("text").String())
			return text == ""
		})
		return text == ""
	})
	if text == "" {
		return "", fmt.Errorf("invoke response missing output text")
	}
	return text, nil
}

// stripFences removes a surrounding markdown code fence if the model added one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

func parseRole(s string) (combatlog.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tank":
		return combatlog.RoleTank, true
	case "healer":
		return combatlog.RoleHealer, true
	case "melee":
		return combatlog.RoleMelee, true
	case "ranged":
		return combatlog.RoleRanged, true
	default:
		return "", false
	}
}
