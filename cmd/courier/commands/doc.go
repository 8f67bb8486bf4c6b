// Package commands defines the courier CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init          Create the local identity
//   - fingerprint   Print the identity fingerprint
//   - register      Publish this device's prekey bundle to a relay
//   - conversation  Create or join conversations
//   - send          Queue a message and dispatch it to every recipient device
//   - recv          Fetch and decrypt queued messages
//   - outbox        List pending messages and retry failed ones
//
// # Implementation
//
// The root command builds a dependency graph (stores, services, relay client)
// before any subcommand runs. Commands that send construct a message
// dispatcher from that graph once the local user is known.
package commands
