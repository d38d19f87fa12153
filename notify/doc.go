// Package notify delivers one-time codes. [SMTPSender] sends mail through go-mail;
// [LogSender] only logs and exists for local development.
package notify
