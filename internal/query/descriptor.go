package query

// Sort is a single-key sort specification.
type Sort struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// Descriptor is the aggregate output of a parse: the filter is always
// present (possibly empty), the optional parts are nil when the phrase did
// not produce them. Absent values mean "caller applies its own defaults".
type Descriptor struct {
	Filter     *Filter  `json:"filter"`
	Projection []string `json:"projection,omitempty"`
	Sort       *Sort    `json:"sort,omitempty"`
	Limit      *int     `json:"limit,omitempty"`
	Offset     *int     `json:"offset,omitempty"`
}

// NewDescriptor returns a descriptor with an empty filter.
func NewDescriptor() *Descriptor {
	return &Descriptor{Filter: NewFilter()}
}
