package synthesis

import (
	"encoding/json"

	"github.com/vantage-fi/advisor/internal/intent"
)

// ParsePlan reads model output into a Plan, tolerating code fences, smart
// quotes, trailing commas, and prose around the object. Schema bounds are
// checked separately so violations can feed a corrective retry.
func ParsePlan(raw string) (*Plan, error) {
	obj, err := intent.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var p Plan
	if err := json.Unmarshal([]byte(obj), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
