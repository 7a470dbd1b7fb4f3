package ixstore

// DimKind says how a dimension label is validated: against the members of
// an index set, or against the declared categories of a set.
type DimKind int

const (
	// RefSet validates against the members of an index set.
	RefSet DimKind = iota
	// RefCat validates against the category names declared for a set.
	RefCat
)

// Dim is one dimension of a parameter or mapping-set schema.
type Dim struct {
	Name string
	Ref  string // referenced set name
	Kind DimKind
}

func set(name, ref string) Dim { return Dim{Name: name, Ref: ref, Kind: RefSet} }
func cat(name, ref string) Dim { return Dim{Name: name, Ref: ref, Kind: RefCat} }

// parSchemas declares the dimension tuple of every parameter the store
// accepts. Insertion validates each key element against the referenced set
// or category table, which turns the loosely typed (tuple, value, unit)
// rows of the original data model into schema-checked tables.
var parSchemas = map[string][]Dim{
	"interestrate": {set("year", "year")},
	"demand": {
		set("node", "node"), set("commodity", "commodity"), set("level", "level"),
		set("year", "year"), set("time", "time"),
	},
	"output": {
		set("node_loc", "node"), set("technology", "technology"),
		set("year_vtg", "year"), set("year_act", "year"), set("mode", "mode"),
		set("node_dest", "node"), set("commodity", "commodity"), set("level", "level"),
		set("time", "time"), set("time_dest", "time"),
	},
	"var_cost": {
		set("node_loc", "node"), set("technology", "technology"),
		set("year_vtg", "year"), set("year_act", "year"), set("mode", "mode"),
		set("time", "time"),
	},
	"emission_factor": {
		set("node_loc", "node"), set("technology", "technology"),
		set("year_vtg", "year"), set("year_act", "year"), set("mode", "mode"),
		set("emission", "emission"),
	},
	"bound_activity_up": {
		set("node_loc", "node"), set("technology", "technology"),
		set("year_act", "year"), set("mode", "mode"), set("time", "time"),
	},
	"bound_emission": {
		set("node", "node"), cat("type_emission", "emission"),
		cat("type_tec", "technology"), cat("type_year", "year"),
	},
	"tax_emission": {
		set("node", "node"), cat("type_emission", "emission"),
		cat("type_tec", "technology"), cat("type_year", "year"),
	},
	"addon_conversion": {
		set("node", "node"), set("technology", "technology"),
		set("year_vtg", "year"), set("year_act", "year"), set("mode", "mode"),
		set("time", "time"), set("type_addon", "type_addon"),
	},
	"addon_up": {
		set("node", "node"), set("technology", "technology"),
		set("year_act", "year"), set("mode", "mode"), set("time", "time"),
		set("type_addon", "type_addon"),
	},
}

// indexSets are the one-dimensional sets a scenario may populate.
var indexSets = map[string]bool{
	"node":       true,
	"commodity":  true,
	"level":      true,
	"year":       true,
	"mode":       true,
	"time":       true,
	"emission":   true,
	"technology": true,
	"type_addon": true,
	"addon":      true,
}

// tupleSetSchemas declares the mapping sets (members are tuples over index
// sets rather than bare labels).
var tupleSetSchemas = map[string][]Dim{
	"map_spatial_hierarchy": {set("node_parent", "node"), set("node", "node")},
	"map_tec_addon":         {set("technology", "technology"), set("type_addon", "type_addon")},
}

// ParSchema returns the dimension tuple for a parameter name.
func ParSchema(name string) ([]Dim, bool) {
	s, ok := parSchemas[name]
	return s, ok
}
