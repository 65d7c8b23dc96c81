// Command flowforge runs the workflow engine server: graph compilation,
// code generation, project persistence, and intervention control over HTTP.
package main
