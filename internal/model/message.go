package model

// Envelope is the cheap header view of an unseen message, read before
// deciding whether the full body is worth fetching.
type Envelope struct {
	UID     uint32
	From    string
	Subject string
}

// Message is a fully fetched mail item. It lives for one processing
// iteration only; attachment files are removed once delivered.
type Message struct {
	UID     uint32
	Folder  string
	From    string
	Subject string
	Body    string

	// Attachments are local file paths in the staging directory, in the
	// order the parts appeared in the message.
	Attachments []string
}
