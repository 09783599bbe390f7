package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MetadataKind tags the form-specific payload of a request
type MetadataKind string

const (
	MetadataCapex   MetadataKind = "capex"
	MetadataLeave   MetadataKind = "leave"
	MetadataTravel  MetadataKind = "travel"
	MetadataExpense MetadataKind = "expense"
	MetadataGeneric MetadataKind = "generic"
)

// ErrInvalidMetadata is returned when a metadata payload is unknown or malformed
var ErrInvalidMetadata = errors.New("invalid request metadata")

// Metadata is the closed set of request payload variants.
// The progression engine never inspects it.
type Metadata interface {
	Kind() MetadataKind
	Validate() error
	isMetadata()
}

// CapexMetadata describes a capital expenditure request
type CapexMetadata struct {
	AmountCents   int64  `json:"amount_cents"`
	Currency      string `json:"currency"`
	CostCenter    string `json:"cost_center"`
	AssetCategory string `json:"asset_category,omitempty"`
	Justification string `json:"justification,omitempty"`
}

func (CapexMetadata) Kind() MetadataKind { return MetadataCapex }
func (CapexMetadata) isMetadata()        {}

func (m CapexMetadata) Validate() error {
	if m.AmountCents <= 0 {
		return fmt.Errorf("%w: capex amount must be positive", ErrInvalidMetadata)
	}
	if m.Currency == "" {
		return fmt.Errorf("%w: capex currency is required", ErrInvalidMetadata)
	}
	if m.CostCenter == "" {
		return fmt.Errorf("%w: capex cost_center is required", ErrInvalidMetadata)
	}
	return nil
}

// LeaveMetadata describes a leave request
type LeaveMetadata struct {
	LeaveType string    `json:"leave_type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Days      float64   `json:"days"`
}

func (LeaveMetadata) Kind() MetadataKind { return MetadataLeave }
func (LeaveMetadata) isMetadata()        {}

func (m LeaveMetadata) Validate() error {
	if m.LeaveType == "" {
		return fmt.Errorf("%w: leave_type is required", ErrInvalidMetadata)
	}
	if m.StartDate.IsZero() || m.EndDate.IsZero() || m.EndDate.Before(m.StartDate) {
		return fmt.Errorf("%w: leave dates are invalid", ErrInvalidMetadata)
	}
	if m.Days <= 0 {
		return fmt.Errorf("%w: leave days must be positive", ErrInvalidMetadata)
	}
	return nil
}

// TravelMetadata describes a travel request
type TravelMetadata struct {
	Destination        string    `json:"destination"`
	DepartDate         time.Time `json:"depart_date"`
	ReturnDate         time.Time `json:"return_date"`
	EstimatedCostCents int64     `json:"estimated_cost_cents"`
	Currency           string    `json:"currency"`
	Purpose            string    `json:"purpose,omitempty"`
}

func (TravelMetadata) Kind() MetadataKind { return MetadataTravel }
func (TravelMetadata) isMetadata()        {}

func (m TravelMetadata) Validate() error {
	if m.Destination == "" {
		return fmt.Errorf("%w: travel destination is required", ErrInvalidMetadata)
	}
	if m.DepartDate.IsZero() || m.ReturnDate.Before(m.DepartDate) {
		return fmt.Errorf("%w: travel dates are invalid", ErrInvalidMetadata)
	}
	if m.EstimatedCostCents < 0 {
		return fmt.Errorf("%w: travel cost cannot be negative", ErrInvalidMetadata)
	}
	return nil
}

// ExpenseMetadata describes an expense reimbursement request
type ExpenseMetadata struct {
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category"`
	IncurredOn  time.Time `json:"incurred_on"`
	Vendor      string    `json:"vendor,omitempty"`
}

func (ExpenseMetadata) Kind() MetadataKind { return MetadataExpense }
func (ExpenseMetadata) isMetadata()        {}

func (m ExpenseMetadata) Validate() error {
	if m.AmountCents <= 0 {
		return fmt.Errorf("%w: expense amount must be positive", ErrInvalidMetadata)
	}
	if m.Currency == "" || m.Category == "" {
		return fmt.Errorf("%w: expense currency and category are required", ErrInvalidMetadata)
	}
	return nil
}

// GenericMetadata carries free-form string fields for generic approvals
type GenericMetadata struct {
	Fields map[string]string `json:"fields"`
}

func (GenericMetadata) Kind() MetadataKind { return MetadataGeneric }
func (GenericMetadata) isMetadata()        {}

func (m GenericMetadata) Validate() error { return nil }

// EncodeMetadata serializes a metadata variant into its kind tag and JSON body
func EncodeMetadata(m Metadata) (MetadataKind, []byte, error) {
	if m == nil {
		m = GenericMetadata{}
	}
	body, err := json.Marshal(m)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s metadata: %w", m.Kind(), err)
	}
	return m.Kind(), body, nil
}

// DecodeMetadata parses a JSON body into the variant named by kind
func DecodeMetadata(kind MetadataKind, body []byte) (Metadata, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}

	var (
		m   Metadata
		err error
	)
	switch kind {
	case MetadataCapex:
		var v CapexMetadata
		err = json.Unmarshal(body, &v)
		m = v
	case MetadataLeave:
		var v LeaveMetadata
		err = json.Unmarshal(body, &v)
		m = v
	case MetadataTravel:
		var v TravelMetadata
		err = json.Unmarshal(body, &v)
		m = v
	case MetadataExpense:
		var v ExpenseMetadata
		err = json.Unmarshal(body, &v)
		m = v
	case MetadataGeneric, "":
		var v GenericMetadata
		err = json.Unmarshal(body, &v)
		m = v
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidMetadata, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return m, nil
}
