package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// QuestionType tags the kind of a question.
type QuestionType string

const (
	TypeMCQ       QuestionType = "mcq"
	TypeTrueFalse QuestionType = "truefalse"
	TypeShort     QuestionType = "short"
	TypeDrag      QuestionType = "drag"
)

// AnswerKey is the canonical correct response of a question. The set of
// implementations is closed: ChoiceKey, TruthKey, TextKey, OrderKey and UnknownKey.
type AnswerKey interface {
	Type() QuestionType
	answerKey()
}

// ChoiceKey is the 0-based index of the correct option of an mcq question.
type ChoiceKey struct{ Index int }

// TruthKey is the correct value of a truefalse question.
type TruthKey struct{ Value bool }

// TextKey is the expected response of a short question.
type TextKey struct{ Text string }

// OrderKey is the correct sequence of a drag question.
type OrderKey struct{ Items []string }

// UnknownKey keeps stored documents with an unrecognised type tag.
type UnknownKey struct {
	Kind QuestionType
	Raw  json.RawMessage
}

func (ChoiceKey) Type() QuestionType    { return TypeMCQ }
func (TruthKey) Type() QuestionType     { return TypeTrueFalse }
func (TextKey) Type() QuestionType      { return TypeShort }
func (OrderKey) Type() QuestionType     { return TypeDrag }
func (k UnknownKey) Type() QuestionType { return k.Kind }

func (ChoiceKey) answerKey()  {}
func (TruthKey) answerKey()   {}
func (TextKey) answerKey()    {}
func (OrderKey) answerKey()   {}
func (UnknownKey) answerKey() {}

// Question represents one assessable item.
type Question struct {
	ID           string
	Text         string
	Options      []string
	Key          AnswerKey
	Explanation  string
	CategoryID   string
	CategoryName string
	CreatedAt    time.Time
}

// Type returns the kind tag derived from the answer key.
func (q Question) Type() QuestionType {
	if q.Key == nil {
		return ""
	}
	return q.Key.Type()
}

// PublicQuestion is the view of a question handed to exam takers.
type PublicQuestion struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
}

// Public strips the answer key and explanation.
func (q Question) Public() PublicQuestion {
	return PublicQuestion{ID: q.ID, Text: q.Text, Type: q.Type(), Options: q.Options}
}

type questionWire struct {
	ID           string          `json:"id,omitempty"`
	Text         string          `json:"text"`
	Type         QuestionType    `json:"type"`
	Options      []string        `json:"options,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Explanation  string          `json:"explanation,omitempty"`
	CategoryID   string          `json:"categoryId,omitempty"`
	CategoryName string          `json:"categoryName,omitempty"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
}

// MarshalJSON encodes the question in its document shape.
func (q Question) MarshalJSON() ([]byte, error) {
	answer, err := MarshalAnswerKey(q.Key)
	if err != nil {
		return nil, err
	}
	w := questionWire{
		ID:           q.ID,
		Text:         q.Text,
		Type:         q.Type(),
		Options:      q.Options,
		Answer:       answer,
		Explanation:  q.Explanation,
		CategoryID:   q.CategoryID,
		CategoryName: q.CategoryName,
	}
	if !q.CreatedAt.IsZero() {
		w.CreatedAt = &q.CreatedAt
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the document shape, building the answer key for the type tag.
func (q *Question) UnmarshalJSON(data []byte) error {
	var w questionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	key, err := DecodeAnswerKey(w.Type, w.Answer, w.Options)
	if err != nil {
		return err
	}
	*q = Question{
		ID:           w.ID,
		Text:         w.Text,
		Options:      w.Options,
		Key:          key,
		Explanation:  w.Explanation,
		CategoryID:   w.CategoryID,
		CategoryName: w.CategoryName,
	}
	if w.CreatedAt != nil {
		q.CreatedAt = *w.CreatedAt
	}
	if w.Type == TypeTrueFalse && len(q.Options) == 0 {
		q.Options = []string{"True", "False"}
	}
	return nil
}

// MarshalAnswerKey encodes the "answer" field for a key.
func MarshalAnswerKey(key AnswerKey) (json.RawMessage, error) {
	switch k := key.(type) {
	case nil:
		return nil, nil
	case ChoiceKey:
		return json.Marshal(k.Index)
	case TruthKey:
		return json.Marshal(k.Value)
	case TextKey:
		return json.Marshal(k.Text)
	case OrderKey:
		items := k.Items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(items)
	case UnknownKey:
		return k.Raw, nil
	default:
		return nil, fmt.Errorf("unsupported answer key %T", key)
	}
}

// DecodeAnswerKey builds the key of a question of type typ from its raw "answer" value.
// Drag questions without an answer use their options as the correct order.
func DecodeAnswerKey(typ QuestionType, raw json.RawMessage, options []string) (AnswerKey, error) {
	raw = bytes.TrimSpace(raw)
	var v any
	if len(raw) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
	}

	switch typ {
	case TypeMCQ:
		idx, ok := choiceIndex(v)
		if !ok {
			return nil, fmt.Errorf("mcq answer must be an option index, got %s", raw)
		}
		return ChoiceKey{Index: idx}, nil
	case TypeTrueFalse:
		switch t := v.(type) {
		case bool:
			return TruthKey{Value: t}, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true":
				return TruthKey{Value: true}, nil
			case "false":
				return TruthKey{Value: false}, nil
			}
			return TruthKey{Value: t != ""}, nil
		case json.Number:
			f, _ := t.Float64()
			return TruthKey{Value: f != 0 && !math.IsNaN(f)}, nil
		default:
			return TruthKey{Value: v != nil}, nil
		}
	case TypeShort:
		switch t := v.(type) {
		case nil:
			return TextKey{}, nil
		case string:
			return TextKey{Text: t}, nil
		case json.Number:
			return TextKey{Text: t.String()}, nil
		case bool:
			return TextKey{Text: strconv.FormatBool(t)}, nil
		default:
			return nil, fmt.Errorf("short answer must be text, got %s", raw)
		}
	case TypeDrag:
		if v == nil {
			return OrderKey{Items: append([]string(nil), options...)}, nil
		}
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("drag answer must be a list, got %s", raw)
		}
		items := make([]string, len(arr))
		for i, e := range arr {
			switch t := e.(type) {
			case string:
				items[i] = t
			case json.Number:
				items[i] = t.String()
			default:
				items[i] = fmt.Sprint(t)
			}
		}
		return OrderKey{Items: items}, nil
	default:
		return UnknownKey{Kind: typ, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func choiceIndex(v any) (int, bool) {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f < 0 {
		return 0, false
	}
	return int(f), true
}
