// Package inventory holds the declarative method and tool definitions a
// toolforge run works from.
//
// The package is split by concern:
//   - definition: MethodDefinition, ToolDefinition and the raw TypeSpec metadata
//   - registry: a name-keyed registry that is sealed after bootstrap
//   - catalog: the method/tool registry pair and an atomically swappable holder
//   - inline: struct-tag registration of methods declared in Go code
//
// Registries are explicit values. Nothing in this package keeps global state,
// so tests and multiple configuration profiles can build catalogs side by side.
package inventory
