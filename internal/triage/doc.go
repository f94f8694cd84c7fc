// Package triage assigns a priority class to free-text symptom descriptions.
// Classification is an ordered keyword evaluation over a replaceable
// Vocabulary, optionally followed by an upgrade-only Scorer.
package triage
