package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reelmatch/match-cli/internal/model"
	"github.com/reelmatch/match-cli/internal/schema"
)

// notObserved is the sentinel value the model returns for attributes it
// cannot see in the frame. It must never be treated as an observed value.
const notObserved = "not_observed"

const systemPromptHeader = `You identify physical product attributes in video frames and product photos.
You only report what is visually present. When an attribute is not visible or
you cannot tell, report "not_observed" rather than guessing.

Return a single JSON object with one key per attribute listed below. Each key
maps to an object: {"value": "<observed value or not_observed>", "confidence": <0-100>, "note": "<optional short note>"}.
Return only the JSON object, no prose.`

// BuildSystemPrompt renders the category schema into the extraction system
// prompt. The schema portion is stable per category, which makes it a good
// prompt-cache target.
func BuildSystemPrompt(cs *schema.CategorySchema) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\n\n# Category: ")
	b.WriteString(cs.Name)
	b.WriteString("\n\nAttributes to report:\n")

	for _, def := range cs.Attributes {
		fmt.Fprintf(&b, "- %s (%s)", def.Name, def.Kind)
		if def.Kind == schema.KindEnum && len(def.EnumValues) > 0 {
			fmt.Fprintf(&b, ": one of %s", strings.Join(def.EnumValues, ", "))
		}
		if def.Kind == schema.KindNumber {
			b.WriteString(": numeric value only, no units")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// observedField is the per-attribute JSON shape the model returns.
type observedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note,omitempty"`
}

// ParseObservation converts the model's response text into a SourceObservation.
// Parsing is defensive: an unparseable response yields an observation with
// every attribute not-observed rather than an error, so one bad response
// never aborts a run.
func ParseObservation(text string, cs *schema.CategorySchema, ev model.Evidence, version string, at time.Time) model.SourceObservation {
	obs := model.SourceObservation{
		Source:           ev,
		Category:         cs.Name,
		Values:           make(map[string]model.ObservedValue, len(cs.Attributes)),
		ExtractorVersion: version,
		ExtractedAt:      at.UTC(),
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		zap.L().Warn("extract: unparseable response, treating all attributes as unobserved",
			zap.String("evidence_id", ev.ID),
			zap.Error(err),
		)
		obs.Notes = "extraction response was not valid JSON"
		for _, def := range cs.Attributes {
			obs.Values[def.Name] = model.ObservedValue{Observed: false}
		}
		return obs
	}

	var confSum float64
	var confN int
	for _, def := range cs.Attributes {
		fieldJSON, ok := raw[def.Name]
		if !ok {
			obs.Values[def.Name] = model.ObservedValue{Observed: false}
			continue
		}
		var f observedField
		if err := json.Unmarshal(fieldJSON, &f); err != nil {
			// Tolerate a bare string value.
			var s string
			if err2 := json.Unmarshal(fieldJSON, &s); err2 != nil {
				obs.Values[def.Name] = model.ObservedValue{Observed: false}
				continue
			}
			f = observedField{Value: s, Confidence: 50}
		}

		if f.Value == "" || strings.EqualFold(strings.TrimSpace(f.Value), notObserved) {
			obs.Values[def.Name] = model.ObservedValue{Observed: false, Note: f.Note}
			continue
		}

		conf := f.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 100 {
			conf = 100
		}
		obs.Values[def.Name] = model.ObservedValue{
			Raw:        f.Value,
			Observed:   true,
			Confidence: conf,
			Note:       f.Note,
		}
		confSum += conf
		confN++
	}

	if confN > 0 {
		obs.OverallConfidence = confSum / float64(confN)
	}
	return obs
}

// cleanJSON strips markdown code fences the model sometimes wraps around
// JSON output.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	return strings.TrimSpace(text)
}
