package task

import "strings"

// Render substitutes {key} placeholders in s with values from params.
// Doubled braces escape to literals: {{ renders as { and }} as }.
//
// Rendering fails closed: an unclosed brace, an empty placeholder, or a
// key absent from params returns s unchanged. A half-rendered command
// reaching a device is worse than a visibly literal one.
func Render(s string, params map[string]string) string {
	if !strings.ContainsAny(s, "{}") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(s[i+1:], '}')
			if end < 0 {
				return s
			}
			key := s[i+1 : i+1+end]
			if key == "" || strings.ContainsAny(key, "{ \t\n") {
				return s
			}
			val, ok := params[key]
			if !ok {
				return s
			}
			b.WriteString(val)
			i += end + 2
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return s
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

// renderStep returns a copy of the step with its string fields rendered
// against params. Numeric fields never carry placeholders.
func renderStep(s Step, params map[string]string) Step {
	if len(params) == 0 {
		return s
	}
	s.DeviceID = Render(s.DeviceID, params)
	s.Note = Render(s.Note, params)
	s.Command = Render(s.Command, params)
	s.Text = Render(s.Text, params)
	s.Key = Render(s.Key, params)
	s.Package = Render(s.Package, params)
	s.Activity = Render(s.Activity, params)
	s.Prompt = Render(s.Prompt, params)
	return s
}
