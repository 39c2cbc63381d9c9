package api

import (
	"context"

	"github.com/pkg/errors"

	"github.com/digitorus/aissign/ais"
	"github.com/digitorus/aissign/staging"
	"github.com/digitorus/aissign/store"
	"github.com/digitorus/aissign/workflow"
)

// InitComponents builds the signing client, the artifact store, the
// staging area and the orchestrator from s.Config.
func (s *Server) InitComponents(ctx context.Context) error {
	client, err := ais.New(s.Config.AISConfig())
	if err != nil {
		return errors.Wrap(err, "failed to initialize signing client")
	}

	st, err := store.New(ctx, s.Config.StoreConfig())
	if err != nil {
		return errors.Wrap(err, "failed to initialize artifact store")
	}

	area, err := staging.New(s.Config.StagingDir)
	if err != nil {
		return errors.Wrap(err, "failed to initialize staging area")
	}

	s.Store = st
	s.Orchestrator = workflow.New(client, st, area, s.Config.WorkflowConfig(), s.Logger)

	s.Logger.Debug().
		Str("endpoint", s.Config.AIS.URL).
		Str("store", s.Config.Store.Backend).
		Str("staging", area.Root()).
		Msg("Components initialized")
	return nil
}
