// Package models defines the core domain models for tabsplit.
//
// # Models
//
//   - Product: a row of the receipt catalog (name, unit price, quantity)
//   - Diner: a participant with the ordered list of line items they consumed
//   - LineItem: either a Full item (whole units) or a Shared item (one unit
//     split evenly inside a share group)
//   - Session: the persisted, shareable unit of bill-splitting state
//
// Money is carried as decimal.Decimal. Quantities are whole units.
//
// # Persisted document
//
// A Session travels between devices as a JSON document whose keys match the
// table column the web client has always written (comensales,
// masterProductList, availableProducts, activeSharedInstances, ...). Use
// MarshalDocument and UnmarshalDocument at that boundary rather than
// encoding/json directly: they normalise nil maps and slices and reject line
// items of unknown kind.
//
// # Design Principles
//
//  1. Relationships are ID strings, never pointers
//  2. Maps are the in-memory shape; ordering for display comes from helpers
//     such as Catalog.IDs
//  3. Clone returns fully independent copies so reducers can work
//     copy-on-write
package models
