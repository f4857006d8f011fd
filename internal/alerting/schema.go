package alerting

// Schema describes the alert definition language for API clients.
type Schema struct {
	Syntax        string           `json:"syntax"`
	Comparators   []OperatorSchema `json:"comparators"`
	DurationUnits []UnitSchema     `json:"durationUnits"`
	ActionTypes   []string         `json:"actionTypes"`
	Example       string           `json:"example"`
}

// OperatorSchema describes a comparator.
type OperatorSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// UnitSchema describes a sustain duration unit.
type UnitSchema struct {
	Suffix string `json:"suffix"`
	Label  string `json:"label"`
}

// GetSchema returns the schema with the action types registered in factory.
// A nil factory reports the built-in types.
func GetSchema(factory *ActionFactory) Schema {
	types := []string{
		ActionTypeEmail, ActionTypeATTSMS, ActionTypeSprintSMS,
		ActionTypeTMobileSMS, ActionTypeVerizonSMS, ActionTypeLog,
	}
	if factory != nil {
		types = factory.Types()
	}
	return Schema{
		Syntax: `m("device", "group", "name") <comparator> (<number> | forecast(<period>) [* <factor>]) [for <duration>] do <action>`,
		Comparators: []OperatorSchema{
			{Name: ComparatorGreater, Label: "greater than"},
			{Name: ComparatorGreaterOrEqual, Label: "greater or equal"},
			{Name: ComparatorLess, Label: "less than"},
			{Name: ComparatorLessOrEqual, Label: "less or equal"},
			{Name: ComparatorEqual, Label: "equal"},
		},
		DurationUnits: []UnitSchema{
			{Suffix: "s", Label: "seconds"},
			{Suffix: "m", Label: "minutes"},
			{Suffix: "h", Label: "hours"},
			{Suffix: "d", Label: "days"},
			{Suffix: "w", Label: "weeks"},
		},
		ActionTypes: types,
		Example:     `m("web1", "cpu", "load") > 4 for 5m do "ops-email"`,
	}
}
