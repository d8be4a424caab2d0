// Package domain contains the core domain entities and value objects for the
// lottery.
//
// This package represents the innermost layer of the application. It has no
// dependencies on infrastructure concerns (sockets, file system, logging) and
// contains only the business rules.
//
// # Entities
//
//   - [Bet]: a wagered number for one person, submitted by one agency
//   - [Batch]: a bounded group of bets sent in one message
//   - [WinningRule]: the predicate deciding whether a bet won the draw
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
