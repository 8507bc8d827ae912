package validate

import "time"

// Input is a candidate payload keyed by field name. Values are whatever the
// sanitizers or the JSON decoder produced.
type Input map[string]any

// Output holds the accepted, normalized values. Optional fields that were
// absent are omitted.
type Output map[string]any

// String returns the string value for key, or "" when absent or not a string.
func (o Output) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Float returns the numeric value for key.
func (o Output) Float(key string) float64 {
	f, _ := o[key].(float64)
	return f
}

// Has reports whether key was accepted with a non-nil value.
func (o Output) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// Field declares one key of a schema.
type Field struct {
	Name string

	// Optional fields may be absent or null; they are then left out of Output.
	Optional bool

	// Nullable fields may be null and keep the null in Output.
	Nullable bool

	// AllowEmpty accepts "" without running the rules.
	AllowEmpty bool

	// Default replaces an absent, null or empty-string value before the rules run.
	Default any

	// Transform normalizes an accepted value, e.g. lowercasing an email.
	Transform func(any) any

	Rules []Rule
}

// Schema is a named, ordered list of fields.
type Schema struct {
	Name   string
	Fields []Field
}

// Field returns the declaration for name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validator interprets schemas. The zero value is not usable; use New.
type Validator struct {
	now func() time.Time
}

type Option func(*Validator)

// WithClock sets the time source used by date range rules.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Validate checks in against s. On success issues is nil and out holds the
// normalized values. On failure out holds whatever fields did pass.
func (v *Validator) Validate(s Schema, in Input) (Output, Issues) {
	now := v.now()
	out := make(Output, len(s.Fields))
	var issues Issues

	for _, f := range s.Fields {
		val, present := in[f.Name]
		if f.Default != nil && isBlank(val) {
			val, present = f.Default, true
		}

		if !present || val == nil {
			switch {
			case present && f.Nullable:
				out[f.Name] = nil
			case f.Optional:
			default:
				issues = append(issues, Issue{Path: []string{f.Name}, Message: requiredMessage(f)})
			}
			continue
		}

		if f.AllowEmpty {
			if str, ok := val.(string); ok && str == "" {
				out[f.Name] = ""
				continue
			}
		}

		failed := false
		for _, r := range f.Rules {
			next, ok := r.eval(val, now)
			if !ok {
				failed = true
				issues = append(issues, Issue{Path: []string{f.Name}, Message: r.Message})
				if r.Kind.fatal() {
					break
				}
				continue
			}
			val = next
		}
		if failed {
			continue
		}

		if f.Transform != nil {
			val = f.Transform(val)
		}
		out[f.Name] = val
	}

	if len(issues) > 0 {
		return out, issues
	}
	return out, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func requiredMessage(f Field) string {
	for _, r := range f.Rules {
		if r.Kind == KindRequired && r.Message != "" {
			return r.Message
		}
	}
	return MsgRequired
}
