package stats

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Variant Variant         `json:"variant"`
	Result  json.RawMessage `json:"result"`
}

// Tagged wraps a Result so it can be encoded inside other JSON documents
type Tagged struct {
	Result
}

// MarshalJSON writes the result inside a variant-tagged envelope
func (t Tagged) MarshalJSON() ([]byte, error) {
	if t.Result == nil {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(t.Result)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Variant: t.Result.Variant(), Result: raw})
}

// UnmarshalJSON restores the concrete variant named by the envelope
func (t *Tagged) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Result = nil
		return nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	var r Result
	switch env.Variant {
	case VariantCorrelation:
		r = &CorrelationResult{}
	case VariantGroupDifference:
		r = &GroupDifferenceResult{}
	case VariantClassificationSignal:
		r = &ClassificationSignalResult{}
	case VariantFailed:
		r = &FailedResult{}
	default:
		return fmt.Errorf("unknown result variant %q", env.Variant)
	}
	if err := json.Unmarshal(env.Result, r); err != nil {
		return fmt.Errorf("decoding %s result: %w", env.Variant, err)
	}
	t.Result = r
	return nil
}

// Results is a list of results that encodes each element as a tagged envelope
type Results []Result

// MarshalJSON encodes every element as a tagged envelope
func (rs Results) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("null"), nil
	}
	tagged := make([]Tagged, len(rs))
	for i, r := range rs {
		tagged[i] = Tagged{Result: r}
	}
	return json.Marshal(tagged)
}

// UnmarshalJSON decodes tagged envelopes back into concrete variants
func (rs *Results) UnmarshalJSON(data []byte) error {
	var tagged []Tagged
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	if tagged == nil {
		*rs = nil
		return nil
	}
	out := make(Results, len(tagged))
	for i, t := range tagged {
		out[i] = t.Result
	}
	*rs = out
	return nil
}
