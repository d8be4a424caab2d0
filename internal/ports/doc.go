// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the application core and the outside
// world. They define what the application needs from external systems without
// specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [BetStore]: the server's shared ledger of accepted bets
//   - [BetSource]: an agency's local, ordered file of bets
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// implementations (file system, zerolog, etc.).
package ports
