// Package config loads the server configuration from an optional TOML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/digitorus/aissign/ais"
	"github.com/digitorus/aissign/sign"
	"github.com/digitorus/aissign/store"
	"github.com/digitorus/aissign/workflow"
)

// DefaultLocation of the config file. It is read only when present.
const DefaultLocation = "./aissign.toml"

// Server is the root of the config.
type Server struct {
	Listen string `toml:"listen" valid:"required"`
	// MaxUploadSize is the largest accepted request body, e.g. "32M".
	MaxUploadSize string        `toml:"max_upload_size" valid:"required"`
	StagingDir    string        `toml:"staging_dir" valid:"-"`
	SignTimeout   time.Duration `toml:"sign_timeout" valid:"-"`
	// LTV adds long-term validation data when the authority returns evidence.
	LTV bool `toml:"ltv" valid:"-"`

	AIS       AIS       `toml:"ais"`
	Store     Store     `toml:"store"`
	Signature Signature `toml:"signature"`
	Log       Log       `toml:"log"`
}

// AIS configures the signing authority. Certificate paths are provided by
// the operator; there are no defaults.
type AIS struct {
	URL               string        `toml:"url" valid:"required,requrl"`
	ClientCert        string        `toml:"client_cert" valid:"required"`
	ClientKey         string        `toml:"client_key" valid:"required"`
	CACert            string        `toml:"ca_cert" valid:"-"`
	ClaimedIdentity   string        `toml:"claimed_identity" valid:"required"`
	Timeout           time.Duration `toml:"timeout" valid:"-"`
	Timestamp         bool          `toml:"timestamp" valid:"-"`
	Revocation        string        `toml:"revocation" valid:"in(NONE|BOTH|CRL|OCSP)"`
	SignatureStandard string        `toml:"signature_standard" valid:"-"`
}

type Store struct {
	Backend  string `toml:"backend" valid:"in(local|s3)"`
	Dir      string `toml:"dir" valid:"-"`
	Bucket   string `toml:"bucket" valid:"-"`
	Prefix   string `toml:"prefix" valid:"-"`
	Region   string `toml:"region" valid:"-"`
	Endpoint string `toml:"endpoint" valid:"-"`
}

// Signature holds the defaults of the signature dictionary.
type Signature struct {
	Name          string `toml:"name" valid:"-"`
	Reason        string `toml:"reason" valid:"-"`
	Location      string `toml:"location" valid:"-"`
	Contact       string `toml:"contact" valid:"-"`
	EstimatedSize int    `toml:"estimated_size" valid:"-"`
	SubFilter     string `toml:"sub_filter" valid:"in(adbe.pkcs7.detached|ETSI.CAdES.detached)"`
}

type Log struct {
	Level  string `toml:"level" valid:"in(trace|debug|info|warn|error|fatal|panic|disabled)"`
	Pretty bool   `toml:"pretty" valid:"-"`
}

// Default returns a configuration with every optional value set.
func Default() Server {
	return Server{
		Listen:        ":8080",
		MaxUploadSize: "32M",
		SignTimeout:   workflow.DefaultSignTimeout,
		LTV:           true,
		AIS: AIS{
			URL:        "https://ais.swisscom.com/AIS-Server/rs/v1.0/sign",
			Timeout:    ais.DefaultTimeout,
			Timestamp:  true,
			Revocation: string(ais.RevocationBoth),
		},
		Store: Store{Backend: store.BackendLocal, Dir: "./signed"},
		Signature: Signature{
			EstimatedSize: sign.DefaultSignatureSize,
			SubFilter:     sign.SubFilterPKCS7Detached,
		},
		Log: Log{Level: "info"},
	}
}

// ValidateFields validates all the fields of the config
func (c Server) ValidateFields() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return err
	}
	if c.Store.Backend == store.BackendS3 && c.Store.Bucket == "" {
		return errors.New("store.bucket: required for the s3 backend")
	}
	if c.Signature.EstimatedSize < sign.MinSignatureSize {
		return errors.Errorf("signature.estimated_size: must be at least %d", sign.MinSignatureSize)
	}
	return nil
}

// Load reads path (skipped when empty and the default file does not exist),
// then .env in the working directory, then the environment.
func Load(path string) (Server, error) {
	return load(path, ".env", os.LookupEnv)
}

func load(path, envFile string, lookupEnv func(string) (string, bool)) (Server, error) {
	c := Default()

	if path == "" {
		if _, err := os.Stat(DefaultLocation); err == nil {
			path = DefaultLocation
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return Server{}, errors.Wrapf(err, "config: read %s", path)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if dotenv, err = godotenv.Read(envFile); err != nil {
				return Server{}, errors.Wrapf(err, "config: read %s", envFile)
			}
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := c.applyEnv(lookup); err != nil {
		return Server{}, err
	}
	if err := c.ValidateFields(); err != nil {
		return Server{}, errors.Wrap(err, "config is not valid")
	}
	return c, nil
}

func (c *Server) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"AISSIGN_LISTEN":          &c.Listen,
		"AISSIGN_MAX_UPLOAD_SIZE": &c.MaxUploadSize,
		"AISSIGN_STAGING_DIR":     &c.StagingDir,
		"AISSIGN_STORE_BACKEND":   &c.Store.Backend,
		"AISSIGN_STORE_DIR":       &c.Store.Dir,
		"AISSIGN_S3_BUCKET":       &c.Store.Bucket,
		"AISSIGN_S3_PREFIX":       &c.Store.Prefix,
		"AISSIGN_S3_REGION":       &c.Store.Region,
		"AISSIGN_S3_ENDPOINT":     &c.Store.Endpoint,
		"AISSIGN_SIGNER_NAME":     &c.Signature.Name,
		"AISSIGN_REASON":          &c.Signature.Reason,
		"AISSIGN_LOCATION":        &c.Signature.Location,
		"AISSIGN_CONTACT":         &c.Signature.Contact,
		"AISSIGN_SUB_FILTER":      &c.Signature.SubFilter,
		"AIS_URL":                 &c.AIS.URL,
		"AIS_CLIENT_CERT":         &c.AIS.ClientCert,
		"AIS_CLIENT_KEY":          &c.AIS.ClientKey,
		"AIS_CA_CERT":             &c.AIS.CACert,
		"AIS_CLAIMED_IDENTITY":    &c.AIS.ClaimedIdentity,
		"AIS_REVOCATION":          &c.AIS.Revocation,
		"AIS_SIGNATURE_STANDARD":  &c.AIS.SignatureStandard,
		"LOG_LEVEL":               &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	bools := map[string]*bool{
		"AISSIGN_LTV":   &c.LTV,
		"AIS_TIMESTAMP": &c.AIS.Timestamp,
		"LOG_PRETTY":    &c.Log.Pretty,
	}
	for key, dst := range bools {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return errors.Wrapf(err, "config: %s", key)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"AISSIGN_SIGN_TIMEOUT": &c.SignTimeout,
		"AIS_TIMEOUT":          &c.AIS.Timeout,
	}
	for key, dst := range durations {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return errors.Wrapf(err, "config: %s", key)
			}
			*dst = d
		}
	}

	if v, ok := lookup("AISSIGN_SIGNATURE_SIZE"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrap(err, "config: AISSIGN_SIGNATURE_SIZE")
		}
		c.Signature.EstimatedSize = n
	}

	c.AIS.Revocation = strings.ToUpper(c.AIS.Revocation)
	return nil
}

// AISConfig returns the client configuration.
func (c Server) AISConfig() ais.Config {
	return ais.Config{
		Endpoint:        c.AIS.URL,
		ClientCertFile:  c.AIS.ClientCert,
		ClientKeyFile:   c.AIS.ClientKey,
		CACertFile:      c.AIS.CACert,
		ClaimedIdentity: c.AIS.ClaimedIdentity,
		Timeout:         c.AIS.Timeout,
	}
}

func (c Server) StoreConfig() store.Config {
	return store.Config{
		Backend:  c.Store.Backend,
		Dir:      c.Store.Dir,
		Bucket:   c.Store.Bucket,
		Prefix:   c.Store.Prefix,
		Region:   c.Store.Region,
		Endpoint: c.Store.Endpoint,
	}
}

// WorkflowConfig returns the orchestrator settings.
func (c Server) WorkflowConfig() workflow.Config {
	revocation := ais.RevocationType(c.AIS.Revocation)
	if c.AIS.Revocation == "NONE" {
		revocation = ais.RevocationNone
	}
	return workflow.Config{
		Placeholder: sign.Options{
			EstimatedSignatureSize: c.Signature.EstimatedSize,
			Name:                   c.Signature.Name,
			Reason:                 c.Signature.Reason,
			Location:               c.Signature.Location,
			Contact:                c.Signature.Contact,
			SubFilter:              c.Signature.SubFilter,
		},
		SignOptions: ais.SignOptions{
			Timestamp:         c.AIS.Timestamp,
			Revocation:        revocation,
			SignatureStandard: c.AIS.SignatureStandard,
		},
		SignTimeout: c.SignTimeout,
		URLPrefix:   "/signed/",
	}
}

// Policy returns the default LTV policy of uploads.
func (c Server) Policy() workflow.Policy {
	if c.LTV {
		return workflow.Policy{LTV: workflow.LTVAuto}
	}
	return workflow.Policy{LTV: workflow.LTVDisabled}
}

// Logger builds the process logger.
func (c Server) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if c.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
