// Package domain defines the core entities and interfaces for Harrier.
package domain

import (
	"time"
)

// Product is an insurance product line.
type Product string

const (
	ProductAuto   Product = "AUTO"
	ProductHome   Product = "HOME"
	ProductTravel Product = "TRAVEL"
)

// LossType categorizes the reported loss event.
type LossType string

const (
	LossTheft        LossType = "THEFT"
	LossFire         LossType = "FIRE"
	LossWater        LossType = "WATER"
	LossAccident     LossType = "ACCIDENT"
	LossCancellation LossType = "CANCELLATION"
	LossBaggage      LossType = "BAGGAGE"
	LossVandalism    LossType = "VANDALISM"
	LossWeather      LossType = "WEATHER"
)

// ClaimStatus is the handling state of a claim.
type ClaimStatus string

const (
	StatusNew           ClaimStatus = "New"
	StatusInvestigating ClaimStatus = "Investigating"
	StatusApproved      ClaimStatus = "Approved"
	StatusClosed        ClaimStatus = "Closed"
)

// Address is a physical address. Immutable once created.
type Address struct {
	ID       string  `json:"addressId"`
	Line1    string  `json:"line1"`
	City     string  `json:"city"`
	Postcode string  `json:"postcode"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Policy is an insurance policy. ExpiryDate is always after InceptionDate.
type Policy struct {
	ID            string    `json:"policyId"`
	InceptionDate time.Time `json:"inceptionDate"`
	ExpiryDate    time.Time `json:"expiryDate"`
	Product       Product   `json:"product"`
	Region        string    `json:"region"`
}

// Claimant is the party submitting claims.
//
// AddressID, BankAccountHash and DeviceID are shared-resource keys: multiple
// claimants may legitimately or fraudulently reuse the same value, and reuse
// across claimants is itself a fraud signal.
type Claimant struct {
	ID              string `json:"claimantId"`
	Name            string `json:"name"`
	EmailHash       string `json:"emailHash"`
	PhoneHash       string `json:"phoneHash"`
	AddressID       string `json:"addressId"`
	BankAccountHash string `json:"bankAccountHash"`
	DeviceID        string `json:"deviceId"`
}

// Claim is a single reported loss event against a policy.
//
// ReportDate >= LossDate is expected but not enforced; late or inverted
// reporting is one of the rule signals, not a validation error.
type Claim struct {
	ID         string      `json:"claimId"`
	PolicyID   string      `json:"policyId"`
	ClaimantID string      `json:"claimantId"`
	LossDate   time.Time   `json:"lossDate"`
	ReportDate time.Time   `json:"reportDate"`
	LossType   LossType    `json:"lossType"`
	Amount     float64     `json:"amount"`
	Status     ClaimStatus `json:"status"`
}

// Dataset is the full set of entities a scoring run operates over.
type Dataset struct {
	Addresses []*Address
	Policies  []*Policy
	Claimants []*Claimant
	Claims    []*Claim
}

// DaysBetween returns the whole number of days from one date to the next.
// Negative when 'to' precedes 'from'. Dates are expected to be midnight UTC.
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}

// Date builds a midnight-UTC date, the canonical form for loss/report dates.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
