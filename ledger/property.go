package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
)

// Property is the normalized form of a ledger property record.
type Property struct {
	ID           uint64   `json:"id"`
	Owner        string   `json:"owner"`
	Name         string   `json:"name"`
	Location     string   `json:"location"`
	PropertyType string   `json:"property_type"`
	Price        *big.Int `json:"price"`
	ImageHash    string   `json:"image_hash"`
	Bedrooms     uint     `json:"bedrooms"`
	Kitchens     uint     `json:"kitchens"`
	IsSold       bool     `json:"is_sold"`
}

// RawProperty mirrors the ledger's native record encoding. Numeric fields
// arrive as either JSON numbers or decimal strings depending on how the
// contract serialized them, so they are held loosely and coerced in
// ParseProperty.
type RawProperty struct {
	ID           rawNumber `json:"id"`
	Owner        string    `json:"owner"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	PropertyType string    `json:"propertyType"`
	Price        rawNumber `json:"price"`
	ImageHash    string    `json:"imageHash"`
	Bedrooms     rawNumber `json:"bedrooms"`
	Kitchens     rawNumber `json:"kitchens"`
	IsSold       bool      `json:"isSold"`
}

// rawNumber accepts both bare JSON numbers and quoted decimal strings.
type rawNumber string

func (n *rawNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*n = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = rawNumber(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = rawNumber(num.String())
	return nil
}

func (n rawNumber) uint() (uint64, error) {
	var v uint64
	if n == "" {
		return 0, fmt.Errorf("missing value")
	}
	if _, err := fmt.Sscanf(string(n), "%d", &v); err != nil {
		return 0, fmt.Errorf("not a non-negative integer: %q", string(n))
	}
	if fmt.Sprintf("%d", v) != string(n) {
		return 0, fmt.Errorf("not a non-negative integer: %q", string(n))
	}
	return v, nil
}

// ParseError reports a raw ledger record that failed normalization.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid ledger record: field %s: %s", e.Field, e.Reason)
}

// ParseProperty coerces a raw ledger record into a Property, rejecting
// malformed records so they never reach the local catalog.
func ParseProperty(raw RawProperty) (Property, error) {
	id, err := raw.ID.uint()
	if err != nil {
		return Property{}, &ParseError{Field: "id", Reason: err.Error()}
	}
	if raw.Owner == "" {
		return Property{}, &ParseError{Field: "owner", Reason: "missing value"}
	}
	price, ok := new(big.Int).SetString(string(raw.Price), 10)
	if !ok {
		return Property{}, &ParseError{Field: "price", Reason: fmt.Sprintf("not an integer: %q", string(raw.Price))}
	}
	if price.Sign() <= 0 {
		return Property{}, &ParseError{Field: "price", Reason: "must be greater than zero"}
	}
	if raw.ImageHash == "" {
		return Property{}, &ParseError{Field: "imageHash", Reason: "missing value"}
	}
	bedrooms, err := raw.Bedrooms.uint()
	if err != nil {
		return Property{}, &ParseError{Field: "bedrooms", Reason: err.Error()}
	}
	kitchens, err := raw.Kitchens.uint()
	if err != nil {
		return Property{}, &ParseError{Field: "kitchens", Reason: err.Error()}
	}

	return Property{
		ID:           id,
		Owner:        raw.Owner,
		Name:         raw.Name,
		Location:     raw.Location,
		PropertyType: raw.PropertyType,
		Price:        price,
		ImageHash:    raw.ImageHash,
		Bedrooms:     uint(bedrooms),
		Kitchens:     uint(kitchens),
		IsSold:       raw.IsSold,
	}, nil
}
