// Package tools provides the tool registry and executor behind tool nodes.
// Tools are resolved by module path and name at compile time; unresolvable
// references degrade to a placeholder so a graph with a stale tool binding
// still compiles and reports the problem at run time.
package tools
