package evaluation

import (
	"fmt"
)

// Slot is one question of the questionnaire, located only by its position among
// the page's named elements.
type Slot string

const (
	SlotScore      Slot = "score"
	SlotChoice1    Slot = "choice-1"
	SlotChoice2    Slot = "choice-2"
	SlotChoice3    Slot = "choice-3"
	SlotChoice4    Slot = "choice-4"
	SlotMulti      Slot = "multi-select"
	SlotConstraint Slot = "constraint"
	SlotComment    Slot = "comment"
)

// Slots lists every slot in questionnaire order.
var Slots = []Slot{
	SlotScore,
	SlotChoice1,
	SlotChoice2,
	SlotChoice3,
	SlotChoice4,
	SlotMulti,
	SlotConstraint,
	SlotComment,
}

// Kind is the element kind a slot must be rendered as.
type Kind int

const (
	KindTextInput Kind = iota
	KindRadio
	KindCheckbox
	KindTextarea
)

func (k Kind) String() string {
	switch k {
	case KindTextInput:
		return "text input"
	case KindRadio:
		return "radio"
	case KindCheckbox:
		return "checkbox"
	case KindTextarea:
		return "textarea"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) matches(f Field) bool {
	switch k {
	case KindTextInput:
		return f.Tag == "input" && (f.Type == "" || f.Type == "text" || f.Type == "number")
	case KindRadio:
		return f.Tag == "input" && f.Type == "radio"
	case KindCheckbox:
		return f.Tag == "input" && f.Type == "checkbox"
	case KindTextarea:
		return f.Tag == "textarea"
	}
	return false
}

type SlotPosition struct {
	Index int
	Kind  Kind
}

// Layout pins every slot to an index of the page's field list. It is a contract
// with the portal's current template, a template change means a new Layout.
type Layout struct {
	Version   string
	MinFields int
	Positions map[Slot]SlotPosition
}

// LayoutV1 is the questionnaire template the portal currently renders.
var LayoutV1 = Layout{
	Version:   "v1",
	MinFields: 46,
	Positions: map[Slot]SlotPosition{
		SlotScore:      {Index: 10, Kind: KindTextInput},
		SlotChoice1:    {Index: 11, Kind: KindRadio},
		SlotChoice2:    {Index: 16, Kind: KindRadio},
		SlotChoice3:    {Index: 21, Kind: KindRadio},
		SlotChoice4:    {Index: 26, Kind: KindRadio},
		SlotMulti:      {Index: 30, Kind: KindCheckbox},
		SlotConstraint: {Index: 41, Kind: KindRadio},
		SlotComment:    {Index: 45, Kind: KindTextarea},
	},
}

// Resolution maps every slot to the field name the answer is submitted under.
type Resolution map[Slot]string

// Resolve checks the field list against the layout and returns the field name of
// every slot.
func (l Layout) Resolve(fields []Field) (Resolution, error) {
	if len(fields) < l.MinFields {
		return nil, &MalformedPageError{
			Reason: fmt.Sprintf(
				"layout %s needs at least %d fields, page has %d",
				l.Version, l.MinFields, len(fields),
			),
		}
	}

	resolution := make(Resolution, len(Slots))
	for _, slot := range Slots {
		pos, ok := l.Positions[slot]
		if !ok {
			return nil, &MalformedPageError{
				Reason: fmt.Sprintf("layout %s does not place slot %s", l.Version, slot),
			}
		}
		if pos.Index < 0 || pos.Index >= len(fields) {
			return nil, &MalformedPageError{
				Reason: fmt.Sprintf("layout %s places slot %s outside the page (%d)", l.Version, slot, pos.Index),
			}
		}

		field := fields[pos.Index]
		if !pos.Kind.matches(field) {
			return nil, &MalformedPageError{
				Reason: fmt.Sprintf(
					"layout %s expects a %s for slot %s at %d, found <%s type=%q name=%q>",
					l.Version, pos.Kind, slot, pos.Index, field.Tag, field.Type, field.Name,
				),
			}
		}
		if field.Name == "" {
			return nil, &MalformedPageError{
				Reason: fmt.Sprintf("layout %s: slot %s has an empty field name", l.Version, slot),
			}
		}
		resolution[slot] = field.Name
	}
	return resolution, nil
}
