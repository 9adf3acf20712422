// Package terminology expands ValueSets and validates codes.
//
// Expansion is composed from small Expanders:
//
//	expander := terminology.NewCachingExpander(
//		terminology.NewModifyingExpander(
//			terminology.NewStarVersionExpander(client, client),
//			pipeline),
//		valueSetCache)
//
// Client talks to a FHIR terminology server. InternalExpander expands
// enumerated compositions locally. Router decides per ValueSet which of the
// two to use and falls back to the server when local expansion fails.
package terminology
