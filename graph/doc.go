// Package graph walks the references between StructureDefinitions of a
// resolved package set.
//
// A definition depends on its base definition, on extensions named by a
// fixed Extension.url in its differential, and on every profile and target
// profile named by the types of its differential elements. The value sets
// needed for validation are the differential bindings of a definition and
// its dependencies whose strength is in a configured set. Bindings only
// present in a base snapshot are not collected.
package graph
