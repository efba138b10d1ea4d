package sms

// Gateway defines the interface for sending SMS messages
type Gateway interface {
	// Send delivers one message to a phone number and returns an error if
	// the send failed
	Send(phone, message string) error

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}
