// Package binscope manages analyzed binary documents and answers structural
// queries over their lifted intermediate representation.
//
// # Pipeline
//
// A document moves through three stages:
//
//  1. Load: a [loader.Loader] turns raw bytes into an [ir.Program]. A load
//     failure means the document never exists.
//
//  2. Translate: [Document.Translate] optimizes every function on a bounded
//     worker pool, iterates dead-code elimination to a fixpoint, swaps the
//     results in under one write lock and rebuilds the cross-reference index.
//     Functions whose optimizer fails, or whose elimination does not converge
//     within the cap, keep their prior form and are counted in the
//     [TranslateSummary].
//
//  3. Query: a [Service] resolves names through the [Store] and renders IR in
//     the projection grammar of the internal/projection package.
//
// # Usage
//
//	svc := binscope.NewService(binscope.WithLogger(logger))
//	sum, err := svc.CreateDocument(ctx, "firmware", data)
//	if err != nil { ... }
//
//	fns, err := svc.ListFunctions("firmware")
//	loc, err := svc.ResolveAddress("firmware", 0x401000)
//	calls, err := svc.FindCallsToSymbol("firmware", "memcpy")
//
// # Concurrency
//
// The Store and each Document have independent readers-writer locks. Reads
// never block on an unrelated document's translation, and a read concurrent
// with Translate observes either the whole old or the whole new version of
// each function. A lock whose writer panicked is poisoned: every later access
// returns [ErrLockPoisoned].
package binscope
