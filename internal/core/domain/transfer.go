package domain

import (
	"strings"
	"time"
)

type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "PENDING"
	TransferStatusApproved   TransferStatus = "APPROVED"
	TransferStatusSeparating TransferStatus = "SEPARATING"
	TransferStatusInTransit  TransferStatus = "IN_TRANSIT"
	TransferStatusCompleted  TransferStatus = "COMPLETED"
	TransferStatusRejected   TransferStatus = "REJECTED"
	TransferStatusExpired    TransferStatus = "EXPIRED"
)

func (s TransferStatus) Terminal() bool {
	switch s {
	case TransferStatusCompleted, TransferStatusRejected, TransferStatusExpired:
		return true
	}
	return false
}

func ParseTransferStatus(raw string) (TransferStatus, error) {
	s := TransferStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case TransferStatusPending, TransferStatusApproved, TransferStatusSeparating,
		TransferStatusInTransit, TransferStatusCompleted, TransferStatusRejected, TransferStatusExpired:
		return s, nil
	}
	return "", NewValidationError("status", "unknown transfer status "+raw)
}

type TransferMode string

const (
	TransferModeDelivery TransferMode = "DELIVERY"
	TransferModePickup   TransferMode = "PICKUP"
)

func ParseTransferMode(raw string) (TransferMode, error) {
	switch m := TransferMode(strings.ToUpper(strings.TrimSpace(raw))); m {
	case TransferModeDelivery, TransferModePickup:
		return m, nil
	case "":
		return TransferModeDelivery, nil
	}
	return "", NewValidationError("mode", "must be DELIVERY or PICKUP")
}

// TransferAction names the workflow verbs.
type TransferAction string

const (
	ActionApprove        TransferAction = "approve"
	ActionReject         TransferAction = "reject"
	ActionShip           TransferAction = "ship"
	ActionConfirmReceipt TransferAction = "confirm_receipt"
	ActionExpire         TransferAction = "expire"
)

// TransferEvent records one transition.
type TransferEvent struct {
	From  TransferStatus `json:"from"`
	To    TransferStatus `json:"to"`
	Actor string         `json:"actor"`
	At    time.Time      `json:"at"`
}

type Transfer struct {
	ID                  string          `json:"id"`
	PartID              PartID          `json:"part_id"`
	OriginLocation      LocationID      `json:"origin_location"`
	DestinationLocation LocationID      `json:"destination_location"`
	Quantity            int             `json:"quantity"`
	Mode                TransferMode    `json:"mode"`
	Status              TransferStatus  `json:"status"`
	RequestedBy         string          `json:"requested_by"`
	RequestedAt         time.Time       `json:"requested_at"`
	ApprovedAt          *time.Time      `json:"approved_at,omitempty"`
	ShippedAt           *time.Time      `json:"shipped_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	RejectedAt          *time.Time      `json:"rejected_at,omitempty"`
	ExpiredAt           *time.Time      `json:"expired_at,omitempty"`
	History             []TransferEvent `json:"history"`
	Version             int             `json:"version"`
}

func (t *Transfer) OriginKey() StockKey {
	return StockKey{PartID: t.PartID, LocationID: t.OriginLocation}
}

func (t *Transfer) DestinationKey() StockKey {
	return StockKey{PartID: t.PartID, LocationID: t.DestinationLocation}
}

// InTransit reports whether the transfer's units have left the origin
// ledger without reaching the destination ledger yet.
func (t *Transfer) InTransit() bool {
	switch t.Status {
	case TransferStatusInTransit:
		return true
	case TransferStatusApproved:
		return t.Mode == TransferModePickup
	}
	return false
}

// NextStatus resolves the target of action for this transfer's mode and
// current status, or a TransitionError.
func (t *Transfer) NextStatus(action TransferAction) (TransferStatus, error) {
	var (
		from = t.Status
		to   TransferStatus
	)
	switch action {
	case ActionApprove:
		if from == TransferStatusPending {
			to = TransferStatusSeparating
			if t.Mode == TransferModePickup {
				to = TransferStatusApproved
			}
		}
	case ActionReject:
		if from == TransferStatusPending {
			to = TransferStatusRejected
		}
	case ActionExpire:
		if from == TransferStatusPending {
			to = TransferStatusExpired
		}
	case ActionShip:
		if from == TransferStatusSeparating && t.Mode == TransferModeDelivery {
			to = TransferStatusInTransit
		}
	case ActionConfirmReceipt:
		if from == TransferStatusInTransit ||
			(from == TransferStatusApproved && t.Mode == TransferModePickup) {
			to = TransferStatusCompleted
		}
	}
	if to == "" {
		return "", &TransitionError{TransferID: t.ID, Action: string(action), From: from}
	}
	return to, nil
}

// Apply moves the transfer to status, stamping the transition.
func (t *Transfer) Apply(to TransferStatus, actor string, at time.Time) {
	t.History = append(t.History, TransferEvent{From: t.Status, To: to, Actor: actor, At: at})
	stamp := at
	switch to {
	case TransferStatusSeparating, TransferStatusApproved:
		t.ApprovedAt = &stamp
	case TransferStatusInTransit:
		t.ShippedAt = &stamp
	case TransferStatusCompleted:
		t.CompletedAt = &stamp
	case TransferStatusRejected:
		t.RejectedAt = &stamp
	case TransferStatusExpired:
		t.ExpiredAt = &stamp
	}
	t.Status = to
	t.Version++
}

// Revision is the poll-and-diff revision of a transfer.
func (t Transfer) Revision() (string, int) {
	return t.ID, t.Version
}

// ActionForStatus maps a requested target status onto the workflow verb
// that reaches it, for clients that post raw status updates.
func ActionForStatus(s TransferStatus) (TransferAction, error) {
	switch s {
	case TransferStatusApproved, TransferStatusSeparating:
		return ActionApprove, nil
	case TransferStatusRejected:
		return ActionReject, nil
	case TransferStatusInTransit:
		return ActionShip, nil
	case TransferStatusCompleted:
		return ActionConfirmReceipt, nil
	}
	return "", NewValidationError("status", "cannot be requested: "+string(s))
}
