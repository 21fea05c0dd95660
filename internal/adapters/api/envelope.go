package api

import (
	"encoding/json"
	"fmt"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
)

// Envelope is the marketplace's uniform response wrapper. Every call,
// success or failure, comes back as isError + messages + results.
// Results stays raw so each endpoint decodes its own shape.
type Envelope struct {
	IsError    *bool             `json:"isError"`
	Messages   []envelopeMessage `json:"messages"`
	Results    json.RawMessage   `json:"results"`
	Pagination *Pagination       `json:"pagination"`
}

// Pagination is the envelope's page metadata for list endpoints.
type Pagination struct {
	Total        int `json:"total"`
	Page         int `json:"page"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// envelopeMessage tolerates both shapes the remote emits: a bare
// string and an object with a text field.
type envelopeMessage struct {
	Text string
}

func (m *envelopeMessage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.Text = s
		return nil
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	m.Text = obj.Text
	return nil
}

// MessageTexts flattens the envelope messages for error reporting.
func (e *Envelope) MessageTexts() []string {
	if len(e.Messages) == 0 {
		return nil
	}
	texts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// DecodeResults unmarshals the results payload into out.
func (e *Envelope) DecodeResults(out any) error {
	if len(e.Results) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Results, out); err != nil {
		return fmt.Errorf("decode results: %w", err)
	}
	return nil
}

// parseEnvelope validates the wrapper on a 2xx body. A missing or
// truthy isError is a remote validation failure even when the HTTP
// status says otherwise.
func parseEnvelope(body []byte, statusCode int) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, shared.NewRemoteError(shared.ErrRemoteValidation, statusCode,
			[]string{fmt.Sprintf("malformed response body: %v", err)})
	}
	if env.IsError == nil {
		return nil, shared.NewRemoteError(shared.ErrRemoteValidation, statusCode,
			[]string{"response envelope missing isError"})
	}
	if *env.IsError {
		msgs := env.MessageTexts()
		if len(msgs) == 0 {
			msgs = []string{"remote reported an error without messages"}
		}
		return nil, shared.NewRemoteError(shared.ErrRemoteValidation, statusCode, msgs)
	}
	return &env, nil
}
