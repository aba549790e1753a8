// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates CLI flags into the application's internal configuration and
// wires the cobra commands to the app package.
//
// Exit codes:
//
//	0  every node completed
//	1  the run was aborted (node failure, timeout, cancellation)
//	2  usage or configuration error
//	3  the graph could not be read or built
//	4  segment or lock error
package cli
