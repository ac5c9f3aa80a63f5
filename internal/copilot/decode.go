package copilot

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jxucoder/flowstudio/internal/blueprint"
)

// decodeUpdates decodes an update block field by field. Only a body that is
// not a JSON object is an error; a mistyped field, step attribute, section or
// assumption is dropped on its own.
func decodeUpdates(body string, log *zap.Logger) (*blueprint.Updates, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, err
	}

	u := &blueprint.Updates{}
	if raw, ok := lookup(fields, "summary"); ok {
		u.Summary, _ = decodeField[string](log, "summary", raw)
	}
	if raw, ok := lookup(fields, "steps"); ok {
		u.Steps = decodeSteps(raw, log)
	}
	if raw, ok := lookup(fields, "sections"); ok {
		u.Sections = decodeSections(raw, log)
	}
	if raw, ok := lookup(fields, "assumptions"); ok {
		u.Assumptions = decodeStrings("assumptions", raw, log)
	}
	return u, nil
}

func decodeSteps(raw json.RawMessage, log *zap.Logger) []blueprint.Step {
	entries, ok := decodeField[[]json.RawMessage](log, "steps", raw)
	if !ok || entries == nil {
		return nil
	}

	steps := make([]blueprint.Step, 0, len(entries))
	for i, entry := range entries {
		path := fmt.Sprintf("steps[%d]", i)
		obj, ok := decodeField[map[string]json.RawMessage](log, path, entry)
		if !ok || obj == nil {
			continue
		}

		var s blueprint.Step
		decodeInto(log, obj, path, "id", &s.ID)
		decodeInto(log, obj, path, "title", &s.Title)
		decodeInto(log, obj, path, "type", &s.Type)
		decodeInto(log, obj, path, "summary", &s.Summary)
		decodeInto(log, obj, path, "systemsInvolved", &s.SystemsInvolved)
		decodeInto(log, obj, path, "inputs", &s.Inputs)
		decodeInto(log, obj, path, "outputs", &s.Outputs)
		decodeInto(log, obj, path, "dependsOnIds", &s.DependsOnIDs)
		steps = append(steps, s)
	}
	return steps
}

func decodeSections(raw json.RawMessage, log *zap.Logger) map[blueprint.SectionKey]string {
	values, ok := decodeField[map[string]json.RawMessage](log, "sections", raw)
	if !ok || values == nil {
		return nil
	}
	sections := make(map[blueprint.SectionKey]string, len(values))
	for k, v := range values {
		if text, ok := decodeField[string](log, "sections."+k, v); ok {
			sections[blueprint.SectionKey(k)] = text
		}
	}
	return sections
}

func decodeStrings(path string, raw json.RawMessage, log *zap.Logger) []string {
	entries, ok := decodeField[[]json.RawMessage](log, path, raw)
	if !ok || entries == nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for i, e := range entries {
		if s, ok := decodeField[string](log, fmt.Sprintf("%s[%d]", path, i), e); ok {
			out = append(out, s)
		}
	}
	return out
}

// decodeInto decodes obj[name] into dst, leaving dst untouched when the field
// is absent or mistyped.
func decodeInto[T any](log *zap.Logger, obj map[string]json.RawMessage, path, name string, dst *T) {
	raw, ok := lookup(obj, name)
	if !ok {
		return
	}
	if v, ok := decodeField[T](log, path+"."+name, raw); ok {
		*dst = v
	}
}

func decodeField[T any](log *zap.Logger, path string, raw json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Debug("dropping mistyped blueprint update field",
			zap.String("field", path),
			zap.Error(err))
		var zero T
		return zero, false
	}
	return v, true
}

// lookup finds a key the way encoding/json matches struct fields: exact
// match first, then case-insensitive.
func lookup(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	if raw, ok := fields[name]; ok {
		return raw, true
	}
	for k, raw := range fields {
		if strings.EqualFold(k, name) {
			return raw, true
		}
	}
	return nil, false
}
