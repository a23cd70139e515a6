package model

import (
	"maps"
	"slices"
	"strings"
)

// VerificationStatus records how a store entry was confirmed.
type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "verified"
	VerificationPending  VerificationStatus = "pending"
)

// StoreRecord is the canonical store shape persisted in stores.json and read by the app.
type StoreRecord struct {
	ID                    string             `json:"id"`
	Name                  string             `json:"name"`
	Description           string             `json:"description"`
	Address               string             `json:"address"`
	Latitude              float64            `json:"latitude"`
	Longitude             float64            `json:"longitude"`
	PhoneNumber           *string            `json:"phoneNumber"`
	Website               string             `json:"website"`
	Rating                float64            `json:"rating"`
	ReviewCount           int                `json:"reviewCount"`
	PriceRange            string             `json:"priceRange"`
	Categories            []string           `json:"categories"`
	AcceptsDonations      bool               `json:"acceptsDonations"`
	HasClothingSection    bool               `json:"hasClothingSection"`
	HasFurnitureSection   bool               `json:"hasFurnitureSection"`
	HasElectronicsSection bool               `json:"hasElectronicsSection"`
	LastVerified          string             `json:"lastVerified"`
	IsUserSubmitted       bool               `json:"isUserSubmitted"`
	VerificationStatus    VerificationStatus `json:"verificationStatus"`
}

// Phone returns the phone number or an empty string.
func (s StoreRecord) Phone() string {
	if s.PhoneNumber == nil {
		return ""
	}
	return *s.PhoneNumber
}

// AddressParts splits a formatted address of the form
// "street, city, ST zip[, country]" into its components. Missing parts are empty.
func (s StoreRecord) AddressParts() (street, city, state, zip string) {
	components := strings.Split(s.Address, ", ")
	street = components[0]
	if len(components) > 1 {
		city = components[1]
	}
	if len(components) >= 3 {
		stateZip := strings.Fields(components[2])
		if len(stateZip) > 0 {
			state = strings.ToUpper(stateZip[0])
		}
		if len(stateZip) > 1 {
			zip = stateZip[1]
		}
	}
	return street, city, state, zip
}

// StateStores is one state's entry in the persisted catalog.
type StateStores struct {
	Name   string        `json:"name"`
	Stores []StoreRecord `json:"stores"`
}

// PersistedCatalog is the root of stores.json, keyed by state code.
type PersistedCatalog struct {
	States map[string]StateStores `json:"states"`
}

// NewPersistedCatalog returns an empty catalog.
func NewPersistedCatalog() *PersistedCatalog {
	return &PersistedCatalog{States: make(map[string]StateStores)}
}

// StoreCount returns the number of stores across all states.
func (c *PersistedCatalog) StoreCount() int {
	n := 0
	for _, st := range c.States {
		n += len(st.Stores)
	}
	return n
}

// Codes returns the state codes in sorted order.
func (c *PersistedCatalog) Codes() []string {
	return slices.Sorted(maps.Keys(c.States))
}
