package evaluation

import (
	"fmt"
	"quickeval/internal/portal/portaltest"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixtureFields(t testing.TB) []Field {
	form, err := ExtractForm([]byte(portaltest.EvaluationPage("tok")))
	require.NoError(t, err)
	return form.Fields
}

func TestResolveLayoutV1(t *testing.T) {
	resolution, err := LayoutV1.Resolve(fixtureFields(t))
	require.NoError(t, err)
	require.Equal(t, Resolution{
		SlotScore:      portaltest.FieldScore,
		SlotChoice1:    portaltest.FieldChoices[0],
		SlotChoice2:    portaltest.FieldChoices[1],
		SlotChoice3:    portaltest.FieldChoices[2],
		SlotChoice4:    portaltest.FieldChoices[3],
		SlotMulti:      portaltest.FieldMulti,
		SlotConstraint: portaltest.FieldConstraint,
		SlotComment:    portaltest.FieldComment,
	}, resolution)
}

func TestResolveDeterministic(t *testing.T) {
	fields := fixtureFields(t)
	first, err := LayoutV1.Resolve(fields)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := LayoutV1.Resolve(fields)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestResolveTooFewFields(t *testing.T) {
	fields := fixtureFields(t)
	for _, n := range []int{0, 10, 45} {
		_, err := LayoutV1.Resolve(fields[:n])
		var malformed *MalformedPageError
		require.ErrorAs(t, err, &malformed, "fields=%d", n)
	}
}

func TestResolveExtraFieldsAfterLayout(t *testing.T) {
	fields := append(fixtureFields(t), Field{Name: "extra", Tag: "input", Type: "hidden"})
	resolution, err := LayoutV1.Resolve(fields)
	require.NoError(t, err)
	require.Equal(t, portaltest.FieldComment, resolution[SlotComment])
}

func TestResolveKindMismatch(t *testing.T) {
	for slot, pos := range LayoutV1.Positions {
		t.Run(string(slot), func(t *testing.T) {
			fields := fixtureFields(t)
			fields[pos.Index] = Field{Name: "shifted", Tag: "select"}

			_, err := LayoutV1.Resolve(fields)
			var malformed *MalformedPageError
			require.ErrorAs(t, err, &malformed)
			require.Contains(t, malformed.Reason, string(slot))
		})
	}
}

func TestResolveShiftedTemplate(t *testing.T) {
	fields := fixtureFields(t)
	shifted := append([]Field{{Name: "banner", Tag: "input", Type: "hidden"}}, fields...)

	_, err := LayoutV1.Resolve(shifted)
	var malformed *MalformedPageError
	require.ErrorAs(t, err, &malformed)
}

func TestResolveIncompleteLayout(t *testing.T) {
	layout := Layout{
		Version:   "partial",
		MinFields: 1,
		Positions: map[Slot]SlotPosition{SlotScore: {Index: 10, Kind: KindTextInput}},
	}
	_, err := layout.Resolve(fixtureFields(t))
	var malformed *MalformedPageError
	require.ErrorAs(t, err, &malformed)
	require.Contains(t, malformed.Reason, fmt.Sprint(SlotChoice1))
}
