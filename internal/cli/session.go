package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/chessdb/internal/engine"
	"github.com/roach88/chessdb/internal/service"
	"github.com/roach88/chessdb/internal/store"
)

// session is an open database with an index persisted into it.
type session struct {
	store *store.Store
	index *engine.IndexStore
	svc   *service.Service
}

func openSession(o *RootOptions, storeOpts ...store.Option) (*session, error) {
	slog.Debug("opening database", "path", o.Database)
	st, err := store.Open(o.Database, storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	idx, err := engine.New(st,
		engine.WithSnapshotStore(st),
		engine.WithPageSize(o.PageSize),
	)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to create index", err)
	}

	return &session{store: st, index: idx, svc: service.New(idx)}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// withService opens a session for the duration of fn.
func (o *RootOptions) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) error) error {
	sess, err := openSession(o)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(commandContext(cmd), sess.svc)
}

// queryError wraps a failed query. Source failures are command errors: the
// log could not be read, so no answer was computed.
func queryError(err error) error {
	return WrapExitError(ExitCommandError, "query failed", err)
}
