package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// FieldKind — дискриминатор размеченного значения поля.
// Произвольные пары field=value из чат-парсинга приводятся к одному из
// трех типов до сохранения, а не хранятся как свободный объект.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindDate   FieldKind = "date"
)

// FieldValue — значение поля после валидации и коэрции
type FieldValue struct {
	Kind FieldKind
	Str  string
	Num  float64
	Date time.Time
}

func StringValue(s string) FieldValue  { return FieldValue{Kind: KindString, Str: s} }
func NumberValue(n float64) FieldValue { return FieldValue{Kind: KindNumber, Num: n} }
func DateValue(t time.Time) FieldValue { return FieldValue{Kind: KindDate, Date: t} }

// Wire возвращает представление для JSON-пейлоада Copper.
// Даты Copper принимает как unix-секунды.
func (v FieldValue) Wire() interface{} {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindDate:
		return v.Date.Unix()
	default:
		return v.Str
	}
}

// Display — человекочитаемая форма для уведомлений и аудита
func (v FieldValue) Display() string {
	switch v.Kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.Num)
	case KindDate:
		return v.Date.Format("2006-01-02")
	default:
		return v.Str
	}
}

// fieldValueJSON — стабильная схема хранения в jsonb
type fieldValueJSON struct {
	Kind  FieldKind   `json:"kind"`
	Value interface{} `json:"value"`
}

func (v FieldValue) MarshalJSON() ([]byte, error) {
	out := fieldValueJSON{Kind: v.Kind}
	switch v.Kind {
	case KindNumber:
		out.Value = v.Num
	case KindDate:
		out.Value = v.Date.Format(time.RFC3339)
	default:
		out.Value = v.Str
	}
	return json.Marshal(out)
}

func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var in fieldValueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	v.Kind = in.Kind
	switch in.Kind {
	case KindNumber:
		n, ok := in.Value.(float64)
		if !ok {
			return fmt.Errorf("field value: expected number, got %T", in.Value)
		}
		v.Num = n
	case KindDate:
		s, ok := in.Value.(string)
		if !ok {
			return fmt.Errorf("field value: expected date string, got %T", in.Value)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		v.Date = t
	case KindString:
		s, ok := in.Value.(string)
		if !ok {
			return fmt.Errorf("field value: expected string, got %T", in.Value)
		}
		v.Str = s
	default:
		return fmt.Errorf("field value: unknown kind %q", in.Kind)
	}
	return nil
}
