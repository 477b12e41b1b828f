// Package usage implements the durable usage ledger: per-(user, feature,
// billing period) counters with an atomic increment-if-under-limit
// operation.
//
// Billing periods are UTC calendar months computed by PeriodFor. A new
// period always starts from a fresh zero counter; rows from previous
// periods are never mutated, which keeps historical usage intact for
// reporting.
//
// Three interchangeable backends implement Ledger:
//
//   - PostgresLedger: a single conditional upsert per increment, the
//     backend of record.
//   - RedisLedger: a Lua-scripted counter for deployments that front the
//     database with Redis.
//   - MemoryLedger: mutex-serialized counters for tests.
//
// All backends share the atomicity contract: within one (user, feature,
// period) key the check-and-increment is serialized, so a limit of L can
// never be exceeded no matter how many callers race.
package usage
