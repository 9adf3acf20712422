// Package igpack prepares FHIR Implementation Guide packages for validation.
//
// Preparing a package means resolving it and its transitive dependencies
// from a package registry, finding the value sets its profiles bind to,
// expanding those value sets and generating missing StructureDefinition
// snapshots. Every expensive step goes through a persistent cache, so runs
// are idempotent and resumable.
//
// # Quick Start
//
//	cfg, err := config.Load("igpack.yaml", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resolver, _, err := cfg.Resolver()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	preparer, err := igpack.New(resolver,
//	    igpack.WithExpander(expander),
//	    igpack.WithBindingStrengths(cfg.ValueSet.BindingStrengths...),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := preparer.Prepare(ctx, ids)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, issue := range result.Warnings() {
//	    fmt.Println(issue)
//	}
//
// # Pipeline
//
//   - Resolve: download the root packages and their dependency closures
//   - Extract: collect the value sets bound by the root package profiles
//   - Expand: expand them internally or with a terminology server
//   - Snapshot: generate snapshots, dependencies first (optional)
//
// # Packages
//
//   - registry: package registry client, version catalogs, resolver
//   - cache: compressed content cache, in-memory LRU, per-key guard
//   - graph: StructureDefinition reference graph and value set extraction
//   - modifier: ValueSet and StructureDefinition modifier pipelines
//   - terminology: terminology server client and expansion chain
//   - snapshot: snapshot generation wrappers and ordering
//   - config: configuration loading and validation
package igpack
