// Package compiler turns a validated graph schema into an executable
// Program. Each node type compiles to a state-transforming function, edges
// compile to a routing plan per node, and the assembler stitches both into
// a driver loop with concurrent fork branches. The same schema can also be
// rendered to a standalone Go source file.
package compiler
