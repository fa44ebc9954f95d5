package hikyaku

// Email is the public representation of one outgoing message. It mirrors the
// sendEmail tool's arguments; an empty From falls back to the configured
// default sender.
type Email struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Result is the outcome of a send: OK with a confirmation message, or not OK
// with a message naming the transport error. A send never returns a Go error.
type Result struct {
	OK      bool
	Message string
}
