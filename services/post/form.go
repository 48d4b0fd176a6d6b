package post

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"ideapulse-marketplace/pkg/errutil"
)

// FieldKind is a closed set: a schema with any other kind is rejected at
// post creation, never stored.
type FieldKind string

const (
	FieldText    FieldKind = "text"
	FieldNumber  FieldKind = "number"
	FieldSelect  FieldKind = "select"
	FieldRating  FieldKind = "rating"
	FieldBoolean FieldKind = "boolean"
)

const (
	defaultRatingMin = 1
	defaultRatingMax = 5
)

// Field describes one question on a post's detailed-validation form.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
	Min      *float64  `json:"min,omitempty"`
	Max      *float64  `json:"max,omitempty"`
}

type Schema []Field

func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, f := range s {
		if f.Name == "" {
			return errutil.ValidationFailed(fmt.Sprintf("form field %d has no name", i), nil)
		}
		if seen[f.Name] {
			return errutil.ValidationFailed(fmt.Sprintf("duplicate form field %q", f.Name), nil)
		}
		seen[f.Name] = true

		switch f.Kind {
		case FieldText, FieldBoolean:
		case FieldNumber, FieldRating:
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				return errutil.ValidationFailed(fmt.Sprintf("form field %q has min above max", f.Name), nil)
			}
		case FieldSelect:
			if len(f.Options) == 0 {
				return errutil.ValidationFailed(fmt.Sprintf("select field %q has no options", f.Name), nil)
			}
		default:
			return errutil.ValidationFailed(fmt.Sprintf("unknown field kind %q on %q", f.Kind, f.Name), nil)
		}
	}
	return nil
}

func (s Schema) field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Answer holds exactly one typed value, matching its field's kind.
type Answer struct {
	Text   *string  `json:"text,omitempty"`
	Number *float64 `json:"number,omitempty"`
	Option *string  `json:"option,omitempty"`
	Rating *int     `json:"rating,omitempty"`
	Flag   *bool    `json:"flag,omitempty"`
}

func (a Answer) variants() int {
	n := 0
	if a.Text != nil {
		n++
	}
	if a.Number != nil {
		n++
	}
	if a.Option != nil {
		n++
	}
	if a.Rating != nil {
		n++
	}
	if a.Flag != nil {
		n++
	}
	return n
}

type Answers map[string]Answer

// Validate type-checks every answer against the schema: required fields
// present, no answers to unknown fields, and each value in the variant its
// field demands.
func (a Answers) Validate(s Schema) error {
	for name := range a {
		if _, ok := s.field(name); !ok {
			return errutil.ValidationFailed(fmt.Sprintf("answer for unknown field %q", name), nil)
		}
	}

	for _, f := range s {
		ans, ok := a[f.Name]
		if !ok {
			if f.Required {
				return errutil.ValidationFailed(fmt.Sprintf("missing answer for required field %q", f.Name), nil)
			}
			continue
		}

		if ans.variants() != 1 {
			return errutil.ValidationFailed(fmt.Sprintf("answer for %q must carry exactly one value", f.Name), nil)
		}

		switch f.Kind {
		case FieldText:
			if ans.Text == nil {
				return errutil.ValidationFailed(fmt.Sprintf("field %q expects a text value", f.Name), nil)
			}
		case FieldNumber:
			if ans.Number == nil {
				return errutil.ValidationFailed(fmt.Sprintf("field %q expects a number value", f.Name), nil)
			}
			if f.Min != nil && *ans.Number < *f.Min {
				return errutil.ValidationFailed(fmt.Sprintf("field %q is below its minimum", f.Name), nil)
			}
			if f.Max != nil && *ans.Number > *f.Max {
				return errutil.ValidationFailed(fmt.Sprintf("field %q is above its maximum", f.Name), nil)
			}
		case FieldSelect:
			if ans.Option == nil {
				return errutil.ValidationFailed(fmt.Sprintf("field %q expects an option value", f.Name), nil)
			}
			valid := false
			for _, opt := range f.Options {
				if opt == *ans.Option {
					valid = true
					break
				}
			}
			if !valid {
				return errutil.ValidationFailed(fmt.Sprintf("field %q got an option outside its list", f.Name), nil)
			}
		case FieldRating:
			if ans.Rating == nil {
				return errutil.ValidationFailed(fmt.Sprintf("field %q expects a rating value", f.Name), nil)
			}
			min, max := defaultRatingMin, defaultRatingMax
			if f.Min != nil {
				min = int(*f.Min)
			}
			if f.Max != nil {
				max = int(*f.Max)
			}
			if *ans.Rating < min || *ans.Rating > max {
				return errutil.ValidationFailed(fmt.Sprintf("field %q rating out of range", f.Name), nil)
			}
		case FieldBoolean:
			if ans.Flag == nil {
				return errutil.ValidationFailed(fmt.Sprintf("field %q expects a boolean value", f.Name), nil)
			}
		}
	}

	return nil
}

func (a Answers) JSON() (datatypes.JSON, error) {
	if len(a) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func (s Schema) JSON() (datatypes.JSON, error) {
	if len(s) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func ParseSchema(raw datatypes.JSON) (Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}
