package sign

import (
	"time"
)

// CertificationLevel selects the DocMDP permissions of a certification
// signature.
type CertificationLevel int

const (
	NotCertified CertificationLevel = iota
	CertifiedNoChanges
	CertifiedFormFilling
	CertifiedFormFillingAndAnnotations
)

const (
	SubFilterPKCS7Detached = "adbe.pkcs7.detached"
	SubFilterCAdESDetached = "ETSI.CAdES.detached"
)

const (
	// DefaultSignatureSize is the number of DER bytes reserved when
	// Options.EstimatedSignatureSize is zero.
	DefaultSignatureSize = 30000
	// MinSignatureSize is the smallest reservation accepted.
	MinSignatureSize = 1024
	// DefaultFieldName is the base name of the signature field.
	DefaultFieldName = "Signature1"
)

// Options controls the placeholder that InsertPlaceholder writes.
type Options struct {
	// EstimatedSignatureSize is the number of signature bytes to reserve.
	// The hex encoded /Contents field is twice as long.
	EstimatedSignatureSize int

	Name     string
	Reason   string
	Location string
	Contact  string

	// SigningTime is written to /M. The zero value means time.Now.
	SigningTime time.Time

	CertificationLevel CertificationLevel
	SubFilter          string
	FieldName          string
}

func (o Options) withDefaults() Options {
	if o.EstimatedSignatureSize == 0 {
		o.EstimatedSignatureSize = DefaultSignatureSize
	}
	if o.SigningTime.IsZero() {
		o.SigningTime = time.Now()
	}
	if o.SubFilter == "" {
		o.SubFilter = SubFilterPKCS7Detached
	}
	if o.FieldName == "" {
		o.FieldName = DefaultFieldName
	}
	return o
}

// Placeholder is a prepared document whose signature slot is still empty.
type Placeholder struct {
	data []byte

	// ByteRange is the final [0 a b c] array written into the document.
	ByteRange [4]int64
	// Capacity is the number of signature bytes that fit in /Contents.
	Capacity int

	Options Options
}

// Bytes returns the prepared document. The slice must not be modified.
func (p *Placeholder) Bytes() []byte {
	return p.data
}

// contentsOffset is the position of the '<' opening the /Contents hex string.
func (p *Placeholder) contentsOffset() int64 {
	return p.ByteRange[1]
}
