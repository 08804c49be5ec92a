/*
Package engine describes the capability surface of the native web view as seen by the worker process.

The native engine is addressed only by operation name: every command received from the controller names an
operation and carries positional JSON arguments. An Adapter maps those names to handlers, and a Factory builds
the Adapter exactly once from the ConstructionArgs the controller passed on the worker's command line.

Registry is the building block for adapters. Handlers are registered up front, so a bad name or a duplicate
is caught at construction time instead of when the first frame arrives.
*/
package engine
