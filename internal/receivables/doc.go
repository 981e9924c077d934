// Package receivables is the financial computation core: base-currency
// conversion, payment aggregation, outstanding balances, aging buckets and the
// derived invoice status.
//
// Every function is pure. Callers pass "now" explicitly and own all inputs;
// nothing here reads a clock, touches storage or mutates its arguments, so the
// package is safe for unrestricted concurrent use.
package receivables
