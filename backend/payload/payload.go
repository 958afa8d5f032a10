package payload

// Payload is a serialized workflow or activity value. The encoding is owned by the
// configured converter.
type Payload []byte
