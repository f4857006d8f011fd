package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrink/metrink-go/internal/errors"
)

func TestValidateComponent_RejectsReservedCharacters(t *testing.T) {
	t.Parallel()

	for _, r := range reservedChars {
		value := "web" + string(r) + "01"
		err := ValidateComponent("device", value)
		require.Error(t, err, "expected %q to be rejected", value)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}
}

func TestValidateComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"plain", "web-01", false},
		{"dots and underscores", "disk.sda_1", false},
		{"spaces inside", "load average", false},
		{"empty", "", true},
		{"blank", "   ", true},
		{"tab", "a\tb", true},
		{"non ascii", "température", true},
		{"del", "a\x7f", true},
		{"colon", "a:b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateComponent("name", tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIdentity_Compare(t *testing.T) {
	t.Parallel()

	a := Identity{Device: "a", Group: "z", Name: "z"}
	b := Identity{Device: "b", Group: "a", Name: "a"}
	c := Identity{Device: "b", Group: "a", Name: "b"}

	assert.Negative(t, a.Compare(b))
	assert.Negative(t, b.Compare(c))
	assert.Positive(t, c.Compare(a))
	assert.Zero(t, c.Compare(c))
	assert.Equal(t, "b:a:b", c.String())
}

func TestPattern_Matches(t *testing.T) {
	t.Parallel()

	id := Identity{Device: "web-01.prod", Group: "cpu", Name: "load.1m"}

	tests := []struct {
		name    string
		pattern Pattern
		want    bool
	}{
		{"exact", Pattern{"web-01.prod", "cpu", "load.1m"}, true},
		{"device wildcard", Pattern{"*", "cpu", "load.1m"}, true},
		{"prefix wildcard", Pattern{"web-*", "cpu", "load.1m"}, true},
		{"suffix wildcard", Pattern{"*.prod", "cpu", "load.1m"}, true},
		{"inner wildcard", Pattern{"web*prod", "cpu", "load.1m"}, true},
		{"dot is literal", Pattern{"web-01xprod", "cpu", "load.1m"}, false},
		{"dot is literal in glob", Pattern{"web-01.pro*", "cpu", "load?1m"}, false},
		{"group mismatch", Pattern{"*", "mem", "load.1m"}, false},
		{"overlapping affixes", Pattern{"web-01.prod*web-01.prod", "cpu", "load.1m"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.pattern.Matches(id))
		})
	}
}

func TestPattern_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Pattern{"*", "cpu", "load"}.Validate())
	require.NoError(t, Pattern{"web-*", "cpu", "load"}.Validate())
	require.Error(t, Pattern{"web:*", "cpu", "load"}.Validate())
	require.Error(t, Pattern{"", "cpu", "load"}.Validate())

	assert.Equal(t, 2, Pattern{"*", "c*", "load"}.WildcardCount())
	assert.True(t, PatternOf(Identity{"a", "b", "c"}).IsExact())
}

func TestFloorToBucket(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(1_700_000_040_000), FloorToBucket(1_700_000_059_999))
	assert.Equal(t, int64(1_700_000_040_000), FloorToBucket(1_700_000_040_000))
	assert.Equal(t, int64(-60_000), FloorToBucket(-1), "pre-epoch floors down")
	assert.Equal(t, int64(-120_000), FloorToBucket(-60_001))
	assert.Equal(t, int64(-60_000), FloorToBucket(-60_000))
}
