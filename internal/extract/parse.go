package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\r?\n?(.*?)```")

var errNotObject = errors.New("reply is not a JSON object or array")

// Parse decodes a model reply in two stages: a generic JSON decode, then a
// conformance pass that coerces every field to the schema or nulls it.
func Parse(schema Schema, reply string) (Record, error) {
	payload := extractPayload(reply)
	if payload == "" {
		return nil, errUnparsable(errors.New("empty reply"))
	}

	v, err := decodeGeneric(payload)
	if err != nil {
		return nil, errUnparsable(err)
	}

	switch v.(type) {
	case map[string]any, []any:
	default:
		return nil, errUnparsable(errNotObject)
	}

	record, err := schema.conform(v)
	if err != nil {
		return nil, errUnparsable(err)
	}
	return record, nil
}

// extractPayload returns the body of the first fenced block, or the whole
// reply when there is none.
func extractPayload(reply string) string {
	if m := fenceRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}

// decodeGeneric tries strict JSON, then json5, then the outermost {...} or
// [...] span for replies with prose around an unfenced object.
func decodeGeneric(payload string) (any, error) {
	v, err := decodeJSON(payload)
	if err == nil {
		return v, nil
	}

	if v, err5 := decodeJSON5(payload); err5 == nil {
		return v, nil
	}

	if inner, ok := outermostSpan(payload); ok && inner != payload {
		if v, err := decodeJSON(inner); err == nil {
			return v, nil
		}
		if v, err := decodeJSON5(inner); err == nil {
			return v, nil
		}
	}

	return nil, fmt.Errorf("decode reply: %w", err)
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func decodeJSON5(s string) (any, error) {
	var v any
	if err := json5.Unmarshal(bytes.TrimSpace([]byte(s)), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func outermostSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func conformPosition(v any) (Record, error) {
	var obj map[string]any
	switch t := v.(type) {
	case map[string]any:
		obj = t
	case []any:
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				obj = m
				break
			}
		}
	}
	if obj == nil {
		return nil, errors.New("no position object in reply")
	}

	f := fields(obj)
	return &PositionRecord{
		Title:          f.text("title"),
		EmploymentType: f.employment("employmentType"),
		SalaryMin:      f.yen("salaryMin"),
		SalaryMax:      f.yen("salaryMax"),
		HourlyMin:      f.yen("hourlyMin"),
		HourlyMax:      f.yen("hourlyMax"),
		Description:    f.text("description"),
		Requirements:   f.text("requirements"),
		Benefits:       f.text("benefits"),
		WorkingHours:   f.text("workingHours"),
		Holidays:       f.text("holidays"),
	}, nil
}

func conformCompetitor(v any) (Record, error) {
	record := &CompetitorRecord{Conditions: []Condition{}}

	var items []any
	switch t := v.(type) {
	case map[string]any:
		f := fields(t)
		record.ClinicName = f.text("clinicName")
		record.Address = f.text("address")
		record.Website = f.text("website")
		if list, ok := f.get("conditions"); ok {
			switch l := list.(type) {
			case []any:
				items = l
			case map[string]any:
				items = []any{l}
			}
		}
	case []any:
		items = t
	}

	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		f := fields(m)
		record.Conditions = append(record.Conditions, Condition{
			JobTitle:       f.text("jobTitle"),
			EmploymentType: f.employment("employmentType"),
			SalaryMin:      f.yen("salaryMin"),
			SalaryMax:      f.yen("salaryMax"),
			HourlyMin:      f.yen("hourlyMin"),
			HourlyMax:      f.yen("hourlyMax"),
			Benefits:       f.text("benefits"),
			WorkingHours:   f.text("workingHours"),
			Holidays:       f.text("holidays"),
			Source:         f.text("source"),
		})
	}
	return record, nil
}

// fields looks up camelCase names, falling back to their snake_case form.
type fields map[string]any

func (f fields) get(name string) (any, bool) {
	if v, ok := f[name]; ok {
		return v, true
	}
	v, ok := f[snakeCase(name)]
	return v, ok
}

func (f fields) text(name string) *string {
	v, _ := f.get(name)
	return coerceText(v)
}

func (f fields) yen(name string) *int64 {
	v, _ := f.get(name)
	return coerceYen(v)
}

func (f fields) employment(name string) *EmploymentType {
	v, _ := f.get(name)
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return normalizeEmployment(s)
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func coerceText(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if str, ok := item.(string); ok {
				if str = strings.TrimSpace(str); str != "" {
					parts = append(parts, str)
				}
			}
		}
		s = strings.Join(parts, "\n")
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

const maxYen = 1e12

func coerceYen(v any) *int64 {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return wholeYen(float64(i))
		}
		f, err := t.Float64()
		if err != nil {
			return nil
		}
		return wholeYen(f)
	case float64:
		return wholeYen(t)
	case string:
		return parseYenString(t)
	default:
		return nil
	}
}

func wholeYen(f float64) *int64 {
	if math.IsNaN(f) || f < 0 || f > maxYen || f != math.Trunc(f) {
		return nil
	}
	i := int64(f)
	return &i
}

var yenNoise = strings.NewReplacer(",", "", "，", "", "円", "", "¥", "", "￥", "", " ", "", "　", "")

// parseYenString accepts "250,000円", "¥1,800" and "25万" / "25.5万円".
// Ranges and free text yield nil.
func parseYenString(s string) *int64 {
	s = yenNoise.Replace(strings.TrimSpace(s))
	if s == "" {
		return nil
	}

	multiplier := 1.0
	if strings.HasSuffix(s, "万") {
		multiplier = 10000
		s = strings.TrimSuffix(s, "万")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	f *= multiplier
	if rounded := math.Round(f); math.Abs(rounded-f) < 1e-6 {
		f = rounded
	}
	return wholeYen(f)
}

var employmentAliases = map[string]EmploymentType{
	"fulltime":  EmploymentFullTime,
	"full":      EmploymentFullTime,
	"parttime":  EmploymentPartTime,
	"part":      EmploymentPartTime,
	"contract":  EmploymentContract,
	"other":     EmploymentOther,
	"正社員":       EmploymentFullTime,
	"常勤":        EmploymentFullTime,
	"パート":       EmploymentPartTime,
	"アルバイト":     EmploymentPartTime,
	"パート・アルバイト": EmploymentPartTime,
	"非常勤":       EmploymentPartTime,
	"契約社員":      EmploymentContract,
	"業務委託":      EmploymentContract,
}

func normalizeEmployment(s string) *EmploymentType {
	key := strings.ToLower(strings.TrimSpace(s))
	if t := EmploymentType(strings.NewReplacer("-", "_", " ", "_").Replace(key)); t.Valid() {
		return &t
	}
	if t, ok := employmentAliases[strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)]; ok {
		return &t
	}
	return nil
}
