// Package notify records and delivers messages to patients.
//
// Every send is written as a Pending record before the channel is called
// and is finalized as Sent or Failed exactly once afterwards. Failed records
// are immutable; a retry is a new record that points at the one it retries.
package notify
