package workflow

import (
	"fmt"
	"sort"
	"strings"

	"sellconfig/internal/apperr"
)

// StepKey is one stage of the valuation flow. The set is closed.
type StepKey string

const (
	StepVariant     StepKey = "variant"
	StepQuestions   StepKey = "questions"
	StepDefects     StepKey = "defects"
	StepAccessories StepKey = "accessories"
	StepSummary     StepKey = "summary"
)

var stepKeys = []StepKey{StepVariant, StepQuestions, StepDefects, StepAccessories, StepSummary}

// StepKeys lists the known keys in flow order.
func StepKeys() []StepKey {
	return append([]StepKey(nil), stepKeys...)
}

func ParseStepKey(s string) (StepKey, error) {
	k := StepKey(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k, nil
	}
	return "", apperr.New(apperr.KindInvalidEnum, "step key %q must be one of %s", s, joinKeys())
}

func (k StepKey) Valid() bool {
	for _, known := range stepKeys {
		if k == known {
			return true
		}
	}
	return false
}

// OffersOptions reports whether a step presents priced choices.
// The summary step only displays the result.
func OffersOptions(step string) bool {
	k := StepKey(step)
	return k.Valid() && k != StepSummary
}

func joinKeys() string {
	parts := make([]string, len(stepKeys))
	for i, k := range stepKeys {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

type Step struct {
	Key   StepKey `json:"key" yaml:"key"`
	Title string  `json:"title" yaml:"title"`
	Order int     `json:"order" yaml:"order"`
}

// Direction for MoveStep.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	}
	return "", apperr.New(apperr.KindInvalidEnum, "direction %q must be up or down", s)
}

// Editable step fields for UpdateStep.
const (
	FieldKey   = "key"
	FieldTitle = "title"
)

// DefaultSteps is the flow given to new products and restored on reset.
func DefaultSteps() []Step {
	return []Step{
		{Key: StepVariant, Title: "Select Variant", Order: 1},
		{Key: StepQuestions, Title: "Answer Questions", Order: 2},
		{Key: StepDefects, Title: "Select Defects", Order: 3},
		{Key: StepAccessories, Title: "Select Accessories", Order: 4},
		{Key: StepSummary, Title: "Summary", Order: 5},
	}
}

// Sequence is an ordered step list whose orders are always 1..n.
// The zero value is an empty sequence.
type Sequence struct {
	steps []Step
}

// NewSequence validates a persisted list. Steps are sorted by order, which
// must be exactly 1..n, and every key must be known.
func NewSequence(steps []Step) (*Sequence, error) {
	sorted := append([]Step(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for i, s := range sorted {
		if !s.Key.Valid() {
			return nil, apperr.New(apperr.KindInvalidEnum, "step %d: key %q must be one of %s", i, s.Key, joinKeys())
		}
		if s.Order != i+1 {
			return nil, apperr.New(apperr.KindInvalidInput, "step orders must be contiguous from 1, got %d at position %d", s.Order, i+1)
		}
	}
	return &Sequence{steps: sorted}, nil
}

// Steps returns a copy of the current list.
func (q *Sequence) Steps() []Step {
	return append([]Step{}, q.steps...)
}

func (q *Sequence) Len() int { return len(q.steps) }

// AddStep appends a step with order len+1.
func (q *Sequence) AddStep(key StepKey, title string) error {
	if !key.Valid() {
		return apperr.New(apperr.KindInvalidEnum, "step key %q must be one of %s", key, joinKeys())
	}
	q.steps = append(q.steps, Step{Key: key, Title: title, Order: len(q.steps) + 1})
	return nil
}

// RemoveStep drops the step at index and renumbers the rest.
func (q *Sequence) RemoveStep(index int) error {
	if err := q.checkIndex(index); err != nil {
		return err
	}
	q.steps = append(q.steps[:index], q.steps[index+1:]...)
	q.renumber()
	return nil
}

// MoveStep swaps the step at index with its neighbour. Moving past either
// end leaves the list unchanged.
func (q *Sequence) MoveStep(index int, dir Direction) error {
	if err := q.checkIndex(index); err != nil {
		return err
	}
	var target int
	switch dir {
	case Up:
		target = index - 1
	case Down:
		target = index + 1
	default:
		return apperr.New(apperr.KindInvalidEnum, "direction %q must be up or down", dir)
	}
	if target < 0 || target >= len(q.steps) {
		return nil
	}
	q.steps[index], q.steps[target] = q.steps[target], q.steps[index]
	q.renumber()
	return nil
}

// UpdateStep sets one field of the step at index in place.
func (q *Sequence) UpdateStep(index int, field, value string) error {
	if err := q.checkIndex(index); err != nil {
		return err
	}
	switch field {
	case FieldKey:
		k, err := ParseStepKey(value)
		if err != nil {
			return err
		}
		q.steps[index].Key = k
	case FieldTitle:
		q.steps[index].Title = value
	default:
		return apperr.New(apperr.KindInvalidEnum, "field %q must be key or title", field)
	}
	return nil
}

func (q *Sequence) checkIndex(index int) error {
	if index < 0 || index >= len(q.steps) {
		return apperr.New(apperr.KindIndexOutOfRange, "step index %d out of range [0,%d)", index, len(q.steps))
	}
	return nil
}

func (q *Sequence) renumber() {
	for i := range q.steps {
		q.steps[i].Order = i + 1
	}
}

func (s Step) String() string {
	return fmt.Sprintf("%d. %s (%s)", s.Order, s.Title, s.Key)
}
