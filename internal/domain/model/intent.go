package model

import (
	"errors"
	"fmt"
	"strings"
)

// RequestType classifies what kind of investigation is being requested.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Known needs value receiver
type RequestType string

// Known request types. Anything else is accepted but planned with the generic fallback.
const (
	RequestTypeProfile RequestType = "profile"
	RequestTypeDomain  RequestType = "domain"
	RequestTypePerson  RequestType = "person"
	RequestTypeHashtag RequestType = "hashtag"
	RequestTypeEmail   RequestType = "email"
	RequestTypePhone   RequestType = "phone"
	RequestTypeNetwork RequestType = "network"
	RequestTypeCrypto  RequestType = "crypto"
	RequestTypeImage   RequestType = "image"
)

// Known reports whether t has dedicated planning rules.
func (t RequestType) Known() bool {
	switch t {
	case RequestTypeProfile, RequestTypeDomain, RequestTypePerson, RequestTypeHashtag,
		RequestTypeEmail, RequestTypePhone, RequestTypeNetwork, RequestTypeCrypto, RequestTypeImage:
		return true
	default:
		return false
	}
}

// UnmarshalText lowercases and trims the value; unknown types are kept as-is.
func (t *RequestType) UnmarshalText(text []byte) error {
	*t = RequestType(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}

// ErrNoUsableTarget is returned when an intent carries no target field at all.
var ErrNoUsableTarget = errors.New("intent has no usable target")

// Intent is the structured interpretation of an investigation request.
type Intent struct {
	Type      RequestType `json:"type"`
	Target    Target      `json:"target"`
	Platforms []string    `json:"platforms,omitempty"`
	Depth     Depth       `json:"depth"`
}

// Normalize returns a copy with trimmed target fields, lowercased unique platforms
// (first occurrence order preserved) and a defaulted depth.
func (in Intent) Normalize() Intent {
	out := Intent{
		Type:   RequestType(strings.ToLower(strings.TrimSpace(string(in.Type)))),
		Target: in.Target.Normalize(),
		Depth:  in.Depth.OrDefault(),
	}
	seen := make(map[string]bool, len(in.Platforms))
	for _, p := range in.Platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out.Platforms = append(out.Platforms, p)
	}
	if out.Type == "" {
		out.Type = InferRequestType(out.Target)
	}
	return out
}

// Validate rejects intents that must never reach the coordinator.
func (in Intent) Validate() error {
	if in.Target.IsEmpty() {
		return ErrNoUsableTarget
	}
	if in.Depth != "" && !in.Depth.Valid() {
		return fmt.Errorf("invalid depth: %q", in.Depth)
	}
	return nil
}

// InferRequestType picks a request type from the fields present on a target.
func InferRequestType(t Target) RequestType {
	switch {
	case t.Has(TargetUsername):
		return RequestTypeProfile
	case t.Has(TargetDomain):
		return RequestTypeDomain
	case t.Has(TargetEmail):
		return RequestTypeEmail
	case t.Has(TargetPhone):
		return RequestTypePhone
	case t.Has(TargetIPAddress):
		return RequestTypeNetwork
	case t.Has(TargetBitcoinAddress), t.Has(TargetEthereumAddress):
		return RequestTypeCrypto
	case t.Has(TargetImageURL):
		return RequestTypeImage
	case t.Has(TargetHashtag):
		return RequestTypeHashtag
	case t.Has(TargetName):
		return RequestTypePerson
	default:
		return ""
	}
}

