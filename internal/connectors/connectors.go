// Package connectors fetches roster mail from provider inboxes and lands it
// in the raw-mail store, where the processing backlog picks it up.
package connectors

import "rosterparse/internal"

// MailConnector is implemented per mail provider (gmail, imap). FetchInbox
// returns up to max messages from the named label or mailbox, newest first,
// with the full raw message bytes attached.
type MailConnector interface {
	FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error)
}
