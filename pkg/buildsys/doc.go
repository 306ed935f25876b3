// Package buildsys implements a small task graph runner. Tasks are registered explicitly
// with their dependencies and ordering constraints, then a target and its dependency closure
// are executed exactly once each in a deterministic order.
//
// Task actions are plain Go functions. Helpers are provided to build actions from external
// tools and from shell scripts (mvdan.cc/sh), and additional tasks can be declared in a
// Starlark task script.
package buildsys
