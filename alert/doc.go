/*
Package alert holds the pure decision logic of automatic flood alerts:
decoding reading events, the eligibility gate, severity classification and
message composition.

Nothing in this package performs I/O.
*/
package alert
