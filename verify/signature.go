package verify

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"io"
	"time"

	"github.com/digitorus/pdf"
	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"

	"github.com/digitorus/aissign/extract"
	"github.com/digitorus/aissign/ltv"
	"github.com/digitorus/aissign/revocation"
)

// oidTimeStampToken is id-aa-timeStampToken (RFC 3161).
var oidTimeStampToken = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}

func verifySignature(sig *extract.Signature, size int64, dss pdf.Value, store revocation.Evidence, opts Options) Signer {
	signer := Signer{
		Field:       sig.Field,
		Name:        sig.Name(),
		Reason:      sig.Reason(),
		Location:    sig.Location(),
		ContactInfo: sig.Obj.Key("ContactInfo").Text(),
		SubFilter:   sig.SubFilter(),
	}
	if t, err := parseDate(sig.SigningTime()); err == nil {
		signer.SignatureTime = &t
	}

	br := sig.ByteRange()
	if len(br) == 4 {
		signer.CoversDocument = br[2]+br[3] == size
	}
	if !signer.CoversDocument {
		signer.Warnings = append(signer.Warnings, "document was modified after this signature")
	}
	if err := checkDocMDP(sig.Obj, br, size, &signer); err != nil {
		signer.ValidationErrors = append(signer.ValidationErrors, err)
	}

	signer.VRI = !dss.Key("VRI").Key(ltv.VRIKey(sig.Contents())).IsNull()

	rawSignature := sig.Envelope()
	p7, err := pkcs7.Parse(rawSignature)
	if err != nil {
		signer.fail(CheckEnvelope, "failed to parse PKCS#7", err)
		return signer
	}

	r, err := sig.SignedData()
	if err != nil {
		signer.fail(CheckByteRange, "invalid ByteRange", err)
		return signer
	}
	content, err := io.ReadAll(r)
	if err != nil {
		signer.fail(CheckByteRange, "failed to read ByteRange", err)
		return signer
	}

	if signer.SubFilter == "ETSI.RFC3161" {
		// Document timestamp: the embedded TSTInfo carries the imprint of
		// the signed ranges.
		ts, err := timestamp.Parse(rawSignature)
		if err != nil {
			signer.fail(CheckTimestamp, "failed to parse TSTInfo", err)
			return signer
		}
		signer.TimeStamp = ts
		h := ts.HashAlgorithm.New()
		h.Write(content)
		if !bytes.Equal(h.Sum(nil), ts.HashedMessage) {
			signer.fail(CheckTimestamp, "timestamp hash does not match", nil)
			return signer
		}
	} else {
		p7.Content = content
		if err := processTimestamp(p7, &signer); err != nil {
			signer.fail(CheckTimestamp, "invalid signature timestamp", err)
		}
	}

	if err := p7.Verify(); err != nil {
		signer.fail(CheckSignature, "signature verification failed", err)
		return signer
	}
	signer.ValidSignature = true

	ev := store
	var archival revocation.InfoArchival
	if err := p7.UnmarshalSignedAttribute(revocation.OIDInfoArchival, &archival); err == nil {
		a := archival.Evidence()
		ev.CRLs = append(ev.CRLs, a.CRLs...)
		ev.OCSPs = append(ev.OCSPs, a.OCSPs...)
	}

	checkCertificates(p7, &signer, ev, validationTime(&signer, opts), opts)
	return signer
}

// validationTime prefers a trusted timestamp over the claimed signing time,
// which is not used.
func validationTime(signer *Signer, opts Options) time.Time {
	switch {
	case !opts.Time.IsZero():
		return opts.Time
	case signer.TimeStamp != nil && !signer.TimeStamp.Time.IsZero():
		return signer.TimeStamp.Time
	default:
		return time.Now()
	}
}

// processTimestamp checks an RFC 3161 token in the unsigned attributes
// against the signature value.
func processTimestamp(p7 *pkcs7.PKCS7, signer *Signer) error {
	for _, s := range p7.Signers {
		for _, attr := range s.UnauthenticatedAttributes {
			if !attr.Type.Equal(oidTimeStampToken) {
				continue
			}
			ts, err := timestamp.Parse(attr.Value.Bytes)
			if err != nil {
				return fmt.Errorf("failed to parse timestamp: %v", err)
			}
			signer.TimeStamp = ts

			h := ts.HashAlgorithm.New()
			h.Write(s.EncryptedDigest)
			if !bytes.Equal(h.Sum(nil), ts.HashedMessage) {
				return fmt.Errorf("timestamp hash does not match")
			}
			return nil
		}
	}
	return nil
}

// checkDocMDP rejects revisions appended after a signature that permits no
// changes.
func checkDocMDP(v pdf.Value, br []int64, size int64, signer *Signer) error {
	refs := v.Key("Reference")
	if refs.Kind() != pdf.Array || len(br) != 4 {
		return nil
	}
	for i := 0; i < refs.Len(); i++ {
		ref := refs.Index(i)
		if ref.Key("TransformMethod").Name() != "DocMDP" {
			continue
		}
		perms := int64(2)
		if p := ref.Key("TransformParams").Key("P"); !p.IsNull() {
			perms = p.Int64()
		}
		if size <= br[2]+br[3] {
			return nil
		}
		if perms == 1 {
			return &Problem{Check: CheckModification, Msg: "incremental update found but P=1 (NoChanges) permits none"}
		}
		signer.Warnings = append(signer.Warnings, fmt.Sprintf("DocMDP P=%d: incremental update found (content verification skipped)", perms))
	}
	return nil
}

// signingCertificate matches the signer info against the certificate set.
func signingCertificate(p7 *pkcs7.PKCS7) *x509.Certificate {
	if len(p7.Signers) > 0 {
		isn := p7.Signers[0].IssuerAndSerialNumber
		for _, cert := range p7.Certificates {
			if cert.SerialNumber.Cmp(isn.SerialNumber) == 0 && bytes.Equal(cert.RawIssuer, isn.IssuerName.FullBytes) {
				return cert
			}
		}
	}
	if len(p7.Certificates) > 0 {
		return p7.Certificates[0]
	}
	return nil
}
