package domain

import "time"

// VerificationRequest is the queue payload. It never exists outside the
// global queue and the staging lists.
type VerificationRequest struct {
	Payload       string `json:"payload"`
	Signature     string `json:"signature"`
	TransactionID string `json:"transactionId,omitempty"`
	PublicKey     string `json:"pubKey,omitempty"`
}

func (r VerificationRequest) Validate() error {
	if r.TransactionID == "" {
		return &MalformedError{Reason: "missing transactionId"}
	}
	if r.PublicKey == "" {
		return &MalformedError{Reason: "missing pubKey"}
	}
	return nil
}

type VerificationRecord struct {
	TransactionID string `json:"transactionId"`
	Complete      bool   `json:"complete"`
	Valid         *bool  `json:"valid,omitempty"`
}

func PendingRecord(transactionID string) VerificationRecord {
	return VerificationRecord{TransactionID: transactionID}
}

func CompletedRecord(transactionID string, valid bool) VerificationRecord {
	return VerificationRecord{TransactionID: transactionID, Complete: true, Valid: &valid}
}

// MalformedError carries the reason a queue entry was routed to the poison list.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return ErrMalformedRequest.Error() + ": " + e.Reason + ": " + e.Err.Error()
	}
	return ErrMalformedRequest.Error() + ": " + e.Reason
}

func (e *MalformedError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedRequest, e.Err}
	}
	return []error{ErrMalformedRequest}
}

type PoisonMessage struct {
	ID         string    `json:"id"`
	WorkerID   string    `json:"workerId"`
	Raw        string    `json:"raw"`
	Reason     string    `json:"reason"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Outcome of a single verification attempt. Unverifiable outcomes are
// reported as valid=false on the wire.
type VerifyOutcome string

const (
	OutcomeValid        VerifyOutcome = "valid"
	OutcomeInvalid      VerifyOutcome = "invalid"
	OutcomeUnverifiable VerifyOutcome = "unverifiable"
)
