package model

import "strings"

// TargetField names one field of a Target descriptor.
type TargetField string

// Target fields understood by capabilities.
const (
	TargetName            TargetField = "name"
	TargetUsername        TargetField = "username"
	TargetEmail           TargetField = "email"
	TargetPhone           TargetField = "phone"
	TargetDomain          TargetField = "domain"
	TargetIPAddress       TargetField = "ip_address"
	TargetBitcoinAddress  TargetField = "bitcoin_address"
	TargetEthereumAddress TargetField = "ethereum_address"
	TargetImageURL        TargetField = "image_url"
	TargetHashtag         TargetField = "hashtag"
	TargetCustom          TargetField = "custom"
)

// Target describes who or what is being investigated. Only the fields
// relevant to the request are set.
type Target struct {
	Name            string `json:"name,omitempty"`
	Username        string `json:"username,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	Domain          string `json:"domain,omitempty"`
	IPAddress       string `json:"ip_address,omitempty"`
	BitcoinAddress  string `json:"bitcoin_address,omitempty"`
	EthereumAddress string `json:"ethereum_address,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
	Hashtag         string `json:"hashtag,omitempty"`
	Custom          string `json:"custom,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Normalize trims whitespace from every field.
func (t Target) Normalize() Target {
	return Target{
		Name:            strings.TrimSpace(t.Name),
		Username:        strings.TrimPrefix(strings.TrimSpace(t.Username), "@"),
		Email:           strings.ToLower(strings.TrimSpace(t.Email)),
		Phone:           strings.TrimSpace(t.Phone),
		Domain:          strings.ToLower(strings.TrimSpace(t.Domain)),
		IPAddress:       strings.TrimSpace(t.IPAddress),
		BitcoinAddress:  strings.TrimSpace(t.BitcoinAddress),
		EthereumAddress: strings.TrimSpace(t.EthereumAddress),
		ImageURL:        strings.TrimSpace(t.ImageURL),
		Hashtag:         strings.TrimPrefix(strings.TrimSpace(t.Hashtag), "#"),
		Custom:          strings.TrimSpace(t.Custom),
		Notes:           strings.TrimSpace(t.Notes),
	}
}

// Get returns the value of a single field.
func (t Target) Get(f TargetField) string {
	switch f {
	case TargetName:
		return t.Name
	case TargetUsername:
		return t.Username
	case TargetEmail:
		return t.Email
	case TargetPhone:
		return t.Phone
	case TargetDomain:
		return t.Domain
	case TargetIPAddress:
		return t.IPAddress
	case TargetBitcoinAddress:
		return t.BitcoinAddress
	case TargetEthereumAddress:
		return t.EthereumAddress
	case TargetImageURL:
		return t.ImageURL
	case TargetHashtag:
		return t.Hashtag
	case TargetCustom:
		return t.Custom
	default:
		return ""
	}
}

// AllTargetFields lists fields in a stable order.
func AllTargetFields() []TargetField {
	return []TargetField{
		TargetName, TargetUsername, TargetEmail, TargetPhone, TargetDomain, TargetIPAddress,
		TargetBitcoinAddress, TargetEthereumAddress, TargetImageURL, TargetHashtag, TargetCustom,
	}
}

// Fields returns the non-empty fields as a map, in no particular order.
func (t Target) Fields() map[TargetField]string {
	out := make(map[TargetField]string)
	for _, f := range AllTargetFields() {
		if v := strings.TrimSpace(t.Get(f)); v != "" {
			out[f] = v
		}
	}
	return out
}

// Has reports whether field f is set.
func (t Target) Has(f TargetField) bool {
	return strings.TrimSpace(t.Get(f)) != ""
}

// IsEmpty reports whether no usable field is set. Notes alone do not make a target.
func (t Target) IsEmpty() bool {
	return len(t.Fields()) == 0
}

// Primary returns the most descriptive set value for display purposes.
func (t Target) Primary() string {
	for _, f := range AllTargetFields() {
		if v := t.Get(f); v != "" {
			return v
		}
	}
	return ""
}
