package ais

import (
	"encoding/json"
	"strings"
)

const (
	Profile                = "http://ais.swisscom.ch/1.1"
	DigestMethodSHA512     = "http://www.w3.org/2001/04/xmlenc#sha512"
	SignatureTypeCMS       = "urn:ietf:rfc:3369"
	TimestampTypeRFC3161   = "urn:ietf:rfc:3161"
	ProfileTimestamping    = "urn:oasis:names:tc:dss:1.0:profiles:timestamping"
	ResultMajorSuccess     = "urn:oasis:names:tc:dss:1.0:resultmajor:Success"
	resultMajorSuccessTail = ":resultmajor:Success"
)

// RevocationType selects the revocation information the authority adds.
type RevocationType string

const (
	RevocationNone RevocationType = ""
	RevocationBoth RevocationType = "BOTH"
	RevocationCRL  RevocationType = "CRL"
	RevocationOCSP RevocationType = "OCSP"
)

// SignRequestEnvelope is the JSON body posted to the sign endpoint.
type SignRequestEnvelope struct {
	SignRequest SignRequest `json:"SignRequest"`
}

type SignRequest struct {
	Profile        string         `json:"@Profile"`
	RequestID      string         `json:"@RequestID"`
	InputDocuments InputDocuments `json:"InputDocuments"`
	OptionalInputs OptionalInputs `json:"OptionalInputs"`
}

type InputDocuments struct {
	DocumentHash DocumentHash `json:"DocumentHash"`
}

type DocumentHash struct {
	ID           string       `json:"@ID"`
	DigestMethod DigestMethod `json:"dsig.DigestMethod"`
	DigestValue  string       `json:"dsig.DigestValue"`
}

type DigestMethod struct {
	Algorithm string `json:"@Algorithm"`
}

type OptionalInputs struct {
	AddTimestamp             *TypeAttribute  `json:"AddTimestamp,omitempty"`
	AdditionalProfile        []string        `json:"AdditionalProfile,omitempty"`
	ClaimedIdentity          ClaimedIdentity `json:"ClaimedIdentity"`
	SignatureType            string          `json:"SignatureType"`
	SignatureStandard        string          `json:"sc.SignatureStandard,omitempty"`
	AddRevocationInformation *TypeAttribute  `json:"sc.AddRevocationInformation,omitempty"`
}

type TypeAttribute struct {
	Type string `json:"@Type"`
}

type ClaimedIdentity struct {
	Name string `json:"Name"`
}

// SignResponseEnvelope is the JSON body returned by the sign endpoint.
type SignResponseEnvelope struct {
	SignResponse SignResponse `json:"SignResponse"`
}

type SignResponse struct {
	Profile         string           `json:"@Profile"`
	RequestID       string           `json:"@RequestID"`
	Result          Status           `json:"Result"`
	SignatureObject *SignatureObject `json:"SignatureObject"`
	OptionalOutputs *OptionalOutputs `json:"OptionalOutputs"`
}

// Status is the DSS Result element.
type Status struct {
	ResultMajor   string       `json:"ResultMajor"`
	ResultMinor   string       `json:"ResultMinor"`
	ResultMessage *TextContent `json:"ResultMessage"`
}

// Success reports whether ResultMajor is the DSS success URI, ignoring the
// namespace prefix some deployments use.
func (s Status) Success() bool {
	return s.ResultMajor == ResultMajorSuccess || strings.HasSuffix(s.ResultMajor, resultMajorSuccessTail)
}

func (s Status) Message() string {
	if s.ResultMessage == nil {
		return ""
	}
	return s.ResultMessage.Value
}

type SignatureObject struct {
	Base64Signature *TextContent `json:"Base64Signature"`
}

type OptionalOutputs struct {
	RevocationInformation *RevocationInformation `json:"sc.RevocationInformation"`
}

type RevocationInformation struct {
	CRLs  *CRLs  `json:"sc.CRLs"`
	OCSPs *OCSPs `json:"sc.OCSPs"`
}

type CRLs struct {
	CRL StringList `json:"sc.CRL"`
}

type OCSPs struct {
	OCSP StringList `json:"sc.OCSP"`
}

// TextContent is an element with text content. It is encoded either as a
// plain string or as an object carrying the text in "$".
type TextContent struct {
	Type  string `json:"@Type,omitempty"`
	Value string `json:"$"`
}

func (t *TextContent) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = TextContent{Value: s}
		return nil
	}
	type plain TextContent
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*t = TextContent(p)
	return nil
}

// StringList accepts a single value or a list, where each value is a
// string or a TextContent object.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var list []TextContent
	if err := json.Unmarshal(b, &list); err == nil {
		out := make(StringList, 0, len(list))
		for _, v := range list {
			out = append(out, v.Value)
		}
		*l = out
		return nil
	}
	var single TextContent
	if err := json.Unmarshal(b, &single); err != nil {
		return err
	}
	*l = StringList{single.Value}
	return nil
}
