// Package staging holds the intermediate files of one signing request in a
// private directory that is removed when the request ends.
package staging

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/digitorus/aissign/fault"
)

// File names inside a session directory.
const (
	Upload      = "upload.pdf"
	Placeholder = "placeholder.pdf"
	Signed      = "signed.pdf"
	LTV         = "ltv.pdf"
)

// Area is the root directory under which sessions are created.
type Area struct {
	root string
}

// New creates root if needed. An empty root uses a directory below
// os.TempDir.
func New(root string) (*Area, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "aissign")
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fault.Wrap(fault.IO, "staging.New", errors.Wrapf(err, "create staging root %s", root))
	}
	return &Area{root: root}, nil
}

// Root returns the directory holding the sessions.
func (a *Area) Root() string { return a.root }

// Session is the staging directory of one request.
type Session struct {
	ID  string
	Dir string
}

// Open creates the directory of request id. A zero id gets a fresh one.
// The directory must not exist yet.
func (a *Area) Open(id uuid.UUID) (*Session, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}
	dir := filepath.Join(a.root, id.String())
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fault.Wrap(fault.IO, "staging.Open", errors.Wrapf(err, "create session %s", id))
	}
	return &Session{ID: id.String(), Dir: dir}, nil
}

// Path returns the location of name inside the session.
func (s *Session) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Write stores data as name.
func (s *Session) Write(name string, data []byte) error {
	if err := os.WriteFile(s.Path(name), data, 0o600); err != nil {
		return fault.Wrap(fault.IO, "staging.Write", errors.Wrapf(err, "write %s", name))
	}
	return nil
}

// Read returns the content of name.
func (s *Session) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fault.Wrap(fault.IO, "staging.Read", errors.Wrapf(err, "read %s", name))
	}
	return data, nil
}

// Close removes the session directory and everything in it. It is safe to
// call more than once.
func (s *Session) Close() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fault.Wrap(fault.IO, "staging.Close", err)
	}
	return nil
}
