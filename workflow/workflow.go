// Package workflow drives a signing request from upload to published
// artifact: placeholder insertion, digest, remote signature, embedding,
// optional long-term validation data and storage.
package workflow

import (
	"bytes"
	"context"
	"crypto"
	"encoding/base64"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/digitorus/aissign/ais"
	"github.com/digitorus/aissign/fault"
	"github.com/digitorus/aissign/ltv"
	"github.com/digitorus/aissign/revocation"
	"github.com/digitorus/aissign/sign"
	"github.com/digitorus/aissign/staging"
	"github.com/digitorus/aissign/store"
)

// DefaultSignTimeout bounds the remote call when Config.SignTimeout is zero.
const DefaultSignTimeout = 2 * time.Minute

// Signer obtains a CMS signature over a digest. *ais.Client implements it.
type Signer interface {
	Sign(ctx context.Context, digest []byte, alg crypto.Hash, opts ais.SignOptions) (*ais.Result, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, digest []byte, alg crypto.Hash, opts ais.SignOptions) (*ais.Result, error)

func (f SignerFunc) Sign(ctx context.Context, digest []byte, alg crypto.Hash, opts ais.SignOptions) (*ais.Result, error) {
	return f(ctx, digest, alg, opts)
}

// LTVPolicy decides whether validation data is added.
type LTVPolicy int

const (
	// LTVAuto adds a DSS when the authority returned CRL and OCSP evidence.
	LTVAuto LTVPolicy = iota
	LTVDisabled
)

type Policy struct {
	LTV LTVPolicy
}

// Document is an uploaded file.
type Document struct {
	Name string
	Data []byte
}

// Artifact is a published signed document.
type Artifact struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	LTV  bool   `json:"ltv"`
}

type Config struct {
	// Placeholder holds the signature dictionary defaults. SigningTime is
	// set per request.
	Placeholder sign.Options
	SignOptions ais.SignOptions
	SignTimeout time.Duration
	// URLPrefix is prepended to artifact names, e.g. "/signed/".
	URLPrefix string
	// OnTrace receives the trace of every finished request.
	OnTrace func(*Trace)
}

// Orchestrator runs signing requests. It is safe for concurrent use; every
// request works in its own staging session.
type Orchestrator struct {
	signer Signer
	store  store.Store
	area   *staging.Area
	cfg    Config
	logger zerolog.Logger
}

func New(signer Signer, st store.Store, area *staging.Area, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.SignTimeout <= 0 {
		cfg.SignTimeout = DefaultSignTimeout
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = "/signed/"
	}
	return &Orchestrator{signer: signer, store: st, area: area, cfg: cfg, logger: logger}
}

// request is the per-call state shared by both flows.
type request struct {
	trace  *Trace
	logger zerolog.Logger
	ctx    context.Context
}

func (o *Orchestrator) begin(ctx context.Context, mode string) *request {
	id := uuid.New()
	logger := *zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = o.logger
	}
	logger = logger.With().Str("signing_id", id.String()).Str("mode", mode).Logger()
	return &request{trace: newTrace(id.String()), logger: logger, ctx: logger.WithContext(ctx)}
}

func (o *Orchestrator) finish(r *request, err error) {
	if err != nil {
		r.trace.Fail(err)
		r.logger.Error().Err(err).Str("kind", fault.KindOf(err).String()).Str("trace", r.trace.String()).Msg("signing failed")
	} else {
		r.logger.Info().Str("trace", r.trace.String()).Msg("signing finished")
	}
	if o.cfg.OnTrace != nil {
		o.cfg.OnTrace(r.trace)
	}
}

func (r *request) advance(to State) {
	if err := r.trace.Advance(to); err != nil {
		// Transitions are fixed by the code paths below.
		panic(err)
	}
	r.logger.Debug().Str("state", string(to)).Msg("state changed")
}

// SignDigest signs a pre-computed base64 SHA-512 digest and returns the
// base64 CMS signature.
func (o *Orchestrator) SignDigest(ctx context.Context, digestB64 string) (sig string, err error) {
	r := o.begin(ctx, "digest")
	defer func() { o.finish(r, err) }()

	digest, err := sign.ParseDigest(digestB64, crypto.SHA512)
	if err != nil {
		return "", err
	}
	r.advance(Digested)

	res, err := o.remoteSign(r, digest)
	if err != nil {
		return "", err
	}
	r.advance(Signed)
	r.advance(Finalized)
	return base64.StdEncoding.EncodeToString(res.Signature), nil
}

// SignDocument signs doc and publishes the result.
func (o *Orchestrator) SignDocument(ctx context.Context, doc Document, policy Policy) (art *Artifact, err error) {
	const op = "workflow.SignDocument"

	r := o.begin(ctx, "document")
	defer func() { o.finish(r, err) }()

	if len(doc.Data) == 0 {
		return nil, fault.New(fault.Validation, op, "No file uploaded.")
	}
	r.logger.Info().Str("filename", doc.Name).Int("bytes", len(doc.Data)).Msg("document received")

	sess, err := o.area.Open(uuid.MustParse(r.trace.ID))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			r.logger.Warn().Err(cerr).Str("dir", sess.Dir).Msg("failed to remove staging directory")
		}
	}()

	if err := sess.Write(staging.Upload, doc.Data); err != nil {
		return nil, err
	}

	opts := o.cfg.Placeholder
	opts.SigningTime = time.Now()
	p, err := sign.InsertPlaceholder(doc.Data, opts)
	if err != nil {
		return nil, err
	}
	if err := sess.Write(staging.Placeholder, p.Bytes()); err != nil {
		return nil, err
	}
	r.advance(PlaceholderInserted)

	// The digest and the embedding both work on the staged placeholder.
	staged, err := sess.Read(staging.Placeholder)
	if err != nil {
		return nil, err
	}
	if p, err = sign.LocatePlaceholder(staged); err != nil {
		return nil, err
	}
	digest, err := p.Digest(crypto.SHA512)
	if err != nil {
		return nil, err
	}
	r.advance(Digested)

	res, err := o.remoteSign(r, digest)
	if err != nil {
		return nil, err
	}

	final, err := sign.Embed(p, res.Signature)
	if err != nil {
		return nil, err
	}
	if err := sess.Write(staging.Signed, final); err != nil {
		return nil, err
	}
	r.advance(Signed)

	withLTV := false
	if policy.LTV == LTVAuto {
		ev, err := revocation.Decode(res.CRLs, res.OCSPs)
		if err != nil {
			return nil, err
		}
		if ev.Complete() {
			augmented, err := ltv.AddLTV(final, ev)
			if err != nil {
				return nil, err
			}
			if err := sess.Write(staging.LTV, augmented); err != nil {
				return nil, err
			}
			final, withLTV = augmented, true
			r.advance(LtvAugmented)
		} else {
			r.logger.Info().Int("crls", len(ev.CRLs)).Int("ocsps", len(ev.OCSPs)).Msg("incomplete revocation evidence, long-term validation data not added")
		}
	}

	name, err := o.publish(r.ctx, ArtifactName(doc.Name, withLTV), final)
	if err != nil {
		return nil, err
	}
	r.advance(Finalized)
	r.logger.Info().Str("artifact", name).Bool("ltv", withLTV).Msg("artifact stored")

	return &Artifact{URL: o.cfg.URLPrefix + name, Name: name, LTV: withLTV}, nil
}

func (o *Orchestrator) remoteSign(r *request, digest sign.DigestValue) (*ais.Result, error) {
	ctx, cancel := context.WithTimeout(r.ctx, o.cfg.SignTimeout)
	defer cancel()

	res, err := o.signer.Sign(ctx, digest, crypto.SHA512, o.cfg.SignOptions)
	if err != nil {
		if fault.KindOf(err) == fault.Unknown {
			err = fault.Wrap(fault.RemoteSigning, "workflow.Sign", err)
		}
		return nil, err
	}
	if res == nil || len(res.Signature) == 0 {
		return nil, fault.New(fault.NoSignatureReturned, "workflow.Sign", "No signature received from AIS.")
	}
	return res, nil
}

// publish stores data under name, falling back to a content derived name
// when name is taken.
func (o *Orchestrator) publish(ctx context.Context, name string, data []byte) (string, error) {
	const op = "workflow.publish"

	err := o.store.Create(ctx, name, data)
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, store.ErrExists) {
		return "", fault.Wrap(fault.IO, op, err)
	}

	name = contentName(name, data)
	err = o.store.Create(ctx, name, data)
	if err == nil {
		return name, nil
	}
	if !errors.Is(err, store.ErrExists) {
		return "", fault.Wrap(fault.IO, op, err)
	}

	// The same content was published before.
	rc, _, err := o.store.Open(ctx, name)
	if err != nil {
		return "", fault.Wrap(fault.IO, op, err)
	}
	defer func() { _ = rc.Close() }()
	existing, err := io.ReadAll(rc)
	if err != nil {
		return "", fault.Wrap(fault.IO, op, err)
	}
	if !bytes.Equal(existing, data) {
		return "", fault.New(fault.IO, op, "artifact name "+name+" is taken by different content")
	}
	return name, nil
}
