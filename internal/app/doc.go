// Package app wires application dependencies for the CLI.
//
// It builds the concrete stores, relay client and high-level services from
// Config, exposing them via the Wire struct for commands to use. The message
// dispatcher is built per local user via Wire.Dispatcher once the user is
// known.
package app
