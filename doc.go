// Package edk is the Ecological Data Kit: a transformation pipeline engine
// for ecological datasets. Raw occurrence, taxonomy and plot tables go in;
// per-entity "widgets data" (a mapping from output key to computed result,
// ready for static-site or API export) comes out.
//
// The engine is built from a handful of stages, each with a basic
// implementation here and richer ones in sub-packages:
//
// 1. Registry
//
//    Plugins register under a (kind, name) pair, where kind is one of
//    loader, transformer, exporter, widget. The Registry is an explicit
//    object built once at startup - there is no global registration state -
//    and is read-only for the duration of a run.
//
// 2. Hierarchy
//
//    The Builder turns a flat table with ordered categorical columns
//    (family, genus, species...) into a nested-set tree: every node gets a
//    stable hash-derived id and a left/right interval, so subtree and
//    ancestor queries are single range conditions with no recursion.
//
// 3. Chain execution
//
//    A Group declares an ordered chain of plugin invocations. Steps run
//    strictly sequentially for one entity, and later steps may reference
//    earlier outputs with "@outputKey.path" expressions, parsed once at
//    configuration load. Each step's raw parameters are resolved,
//    validated against the plugin's schema, and handed to Invoke.
//
// 4. Orchestration
//
//    The Orchestrator fans the chain out over every member of the group
//    with a bounded worker pool and hands each entity's result mapping to
//    a ResultStore. Failures are isolated per entity; a run summary
//    reports the counts and first causes.
//
// Sub-packages provide table sources (csv, s3, kafka), result and tree
// stores (boltdb, leveldb), the builtin plugin set, and the edk command.
package edk
