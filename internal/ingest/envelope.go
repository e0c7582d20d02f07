package ingest

// WebhookEnvelope is one inbound webhook call exactly as it arrived on the wire.
// Fields are unexported so an envelope cannot be altered after it is received.
type WebhookEnvelope struct {
	provider        string
	eventType       string
	deliveryID      string
	signatureHeader string
	rawBody         []byte
}

// NewEnvelope copies rawBody; later mutation of the caller's slice does not
// affect the envelope or its signature check.
func NewEnvelope(provider, eventType, deliveryID string, rawBody []byte, signatureHeader string) WebhookEnvelope {
	body := make([]byte, len(rawBody))
	copy(body, rawBody)
	return WebhookEnvelope{
		provider:        NormalizeProvider(provider),
		eventType:       NormalizeEventType(eventType),
		deliveryID:      deliveryID,
		signatureHeader: signatureHeader,
		rawBody:         body,
	}
}

func (e WebhookEnvelope) Provider() string        { return e.provider }
func (e WebhookEnvelope) EventType() string       { return e.eventType }
func (e WebhookEnvelope) DeliveryID() string      { return e.deliveryID }
func (e WebhookEnvelope) SignatureHeader() string { return e.signatureHeader }
func (e WebhookEnvelope) BodyLen() int            { return len(e.rawBody) }

// RawBody returns a copy of the unparsed request body.
func (e WebhookEnvelope) RawBody() []byte {
	out := make([]byte, len(e.rawBody))
	copy(out, e.rawBody)
	return out
}

// VerifiedEnvelope can only be obtained from SignatureVerifier.Authenticate.
// Dispatchers take this type so an unverified payload cannot reach them.
type VerifiedEnvelope struct {
	env WebhookEnvelope
}

func (v VerifiedEnvelope) Provider() string   { return v.env.provider }
func (v VerifiedEnvelope) EventType() string  { return v.env.eventType }
func (v VerifiedEnvelope) DeliveryID() string { return v.env.deliveryID }
func (v VerifiedEnvelope) RawBody() []byte    { return v.env.RawBody() }

// Valid reports whether v came out of a successful verification. The zero
// value is never valid.
func (v VerifiedEnvelope) Valid() bool {
	return v.env.provider != ""
}
