// Package mailer is the email provider client used by the email channel
// adapter. It exposes a narrow Sender interface with two implementations:
// a Postmark-backed client for production and a DevSender that writes
// outgoing mail to disk for local development.
package mailer
