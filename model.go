package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ApproveRequest is the payload for approving a review item.
type ApproveRequest struct {
	ID   string `validate:"required"`
	Name string `validate:"required"`
	Data json.RawMessage
}

// newApproveRequest builds an ApproveRequest from the members of a decoded
// body. id and name must be strings when present; null counts as absent.
func newApproveRequest(fields map[string]json.RawMessage) (*ApproveRequest, error) {
	id, err := stringMember(fields, "id")
	if err != nil {
		return nil, err
	}
	name, err := stringMember(fields, "name")
	if err != nil {
		return nil, err
	}
	return &ApproveRequest{ID: id, Name: name, Data: fields["data"]}, nil
}

func stringMember(fields map[string]json.RawMessage, key string) (string, error) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidInput, key)
	}
	return s, nil
}

// RejectRequest is the payload for rejecting a review item. Fields are
// taken as sent, without type checks.
type RejectRequest struct {
	ID   interface{} `json:"id"`
	Name interface{} `json:"name"`
}

// DecisionResponse is the envelope returned by the decision endpoints.
type DecisionResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Approval is a validated approve request ready to be persisted.
type Approval struct {
	ID   string
	Name string
	Data json.RawMessage
}

// Path is the repository path the approval is written to.
func (a *Approval) Path() string {
	return fmt.Sprintf("approved/%s.json", a.ID)
}

// CommitMessage is the commit message used for the approval write.
func (a *Approval) CommitMessage() string {
	return "Approve " + a.Name
}

var requestValidator = validator.New()

// Validate checks the request shape and returns the approval it describes.
// A missing or empty id or name yields ErrMissingIdentity, a data value
// that is neither an object nor null yields ErrInvalidData.
func (r *ApproveRequest) Validate() (*Approval, error) {
	if err := requestValidator.Struct(r); err != nil {
		return nil, ErrMissingIdentity
	}
	data := json.RawMessage(strings.TrimSpace(string(r.Data)))
	switch {
	case len(data) == 0, string(data) == "null":
		data = nil
	case data[0] != '{':
		return nil, ErrInvalidData
	}
	return &Approval{ID: r.ID, Name: r.Name, Data: data}, nil
}
