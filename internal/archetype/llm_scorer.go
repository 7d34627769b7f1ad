package archetype

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/resilience"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

// LLMOptions configures the model call of an LLMScorer.
type LLMOptions struct {
	Model       string
	MaxTokens   int64
	Temperature float64
}

// LLMScorer asks the model to re-read a candidate's four signals in the
// persona's voice, then runs the rule set on the refined signals. Confidence
// therefore still comes from the rules, never from the model directly.
type LLMScorer struct {
	client   anthropic.Client
	opts     LLMOptions
	breakers *resilience.Breakers
	retry    resilience.RetryConfig
}

// NewLLMScorer builds an LLMScorer. Each policy gets its own breaker from
// breakers so one failing persona prompt does not silence the others.
func NewLLMScorer(client anthropic.Client, opts LLMOptions, breakers *resilience.Breakers, retry resilience.RetryConfig) *LLMScorer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	retry.ShouldRetry = Retryable
	retry.Operation = "anthropic.create_message"
	return &LLMScorer{client: client, opts: opts, breakers: breakers, retry: retry}
}

// Retryable reports LLM errors worth retrying. It also serves as the breaker
// failure filter so malformed requests do not open the circuit.
func Retryable(err error) bool {
	return anthropic.IsRetryable(err) || resilience.IsTransient(err)
}

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, c model.ArtworkCandidate, p model.ArchetypePolicy) (*model.ArchetypeDecision, error) {
	temp := s.opts.Temperature
	req := anthropic.MessageRequest{
		Model:       s.opts.Model,
		MaxTokens:   s.opts.MaxTokens,
		System:      personaPrompt(p),
		CacheSystem: true,
		Messages:    []anthropic.Message{{Role: "user", Content: candidatePrompt(c)}},
		Temperature: &temp,
	}

	resp, err := resilience.ExecuteVal(ctx, s.breakers.For(p.Name), func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return s.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "archetype: llm score %s/%s", p.Name, c.ID)
	}
	resp.Usage.LogCost(s.opts.Model, p.Name)

	refined, note, err := ParseSignals(resp.Text(), c.Signals)
	if err != nil {
		return nil, eris.Wrapf(err, "archetype: parse reply %s/%s", p.Name, c.ID)
	}

	zap.L().Debug("archetype: signals refined",
		zap.String("policy", p.Name),
		zap.String("candidate", c.ID),
		zap.Float64("market_before", c.Signals.Market),
		zap.Float64("market_after", refined.Market),
	)

	c.Signals = refined
	d := Evaluate(c, p)
	if note != "" {
		d.Reasoning = append(d.Reasoning, "Persona note: "+note)
	}
	return &d, nil
}

// ParseSignals reads the JSON object in a model reply. Missing signals keep
// their prior values; all values are clamped to [0,1]. The optional "note"
// field is returned trimmed to 200 characters.
func ParseSignals(reply string, prior model.Signals) (model.Signals, string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return prior, "", eris.New("no json object in reply")
	}
	raw := reply[start : end+1]
	if !gjson.Valid(raw) {
		return prior, "", eris.New("invalid json in reply")
	}

	doc := gjson.Parse(raw)
	out := prior
	pick := func(key string, dst *float64) {
		if v := doc.Get(key); v.Exists() && v.Type == gjson.Number {
			*dst = v.Float()
		}
	}
	pick("technical", &out.Technical)
	pick("cultural", &out.Cultural)
	pick("market", &out.Market)
	pick("aesthetic", &out.Aesthetic)

	note := strings.TrimSpace(doc.Get("note").String())
	if r := []rune(note); len(r) > 200 {
		note = string(r[:200])
	}
	return out.Clamp(), note, nil
}

func personaPrompt(p model.ArchetypePolicy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %q collector archetype.\n", p.Name)
	fmt.Fprintf(&b, "Philosophy: %s\n", p.Philosophy)
	if len(p.NonNegotiables) > 0 {
		fmt.Fprintf(&b, "Non-negotiables: %s\n", strings.Join(p.NonNegotiables, "; "))
	}
	b.WriteString("Re-score the candidate's technical, cultural, market and aesthetic signals " +
		"from your perspective, each between 0 and 1. Reply with a single JSON object " +
		`{"technical":n,"cultural":n,"market":n,"aesthetic":n,"note":"one sentence"} and nothing else.`)
	return b.String()
}

func candidatePrompt(c model.ArtworkCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nCreator: %s\nCategory: %s\n", c.Title, c.Creator, c.CategoryOrDefault())
	fmt.Fprintf(&b, "Price: %s %s on %s\n", c.PriceAmount.String(), c.PriceCurrency, c.SourcePlatform)
	fmt.Fprintf(&b, "Discovery signals: technical=%.2f cultural=%.2f market=%.2f aesthetic=%.2f\n",
		c.Signals.Technical, c.Signals.Cultural, c.Signals.Market, c.Signals.Aesthetic)
	if c.HasProvenance() {
		fmt.Fprintf(&b, "Provenance: %s\n", strings.Join(c.Provenance, " -> "))
	} else {
		b.WriteString("Provenance: none\n")
	}
	return b.String()
}
