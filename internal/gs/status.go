package gs

import (
	"context"
	"fmt"
	"strings"

	"gsbak/internal/model"
)

// StatusReport is a snapshot of everything the tool depends on: elevated
// shell access, the identifier store's shape, and the local bookkeeping.
type StatusReport struct {
	RootAccess bool
	RootError  string // probe failure detail when RootAccess is false

	Store *StoreInfo // nil when the probe failed

	RecordCount int
	SpoolCount  int
	SpoolSize   int64
}

// Status probes the device and reports the tool's working state. Probe
// failures are reported in the result rather than aborting; the local
// record count is always available.
func (s *Service) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{}

	out, err := s.exec.Execute(ctx, "id -u")
	switch {
	case err != nil:
		report.RootError = err.Error()
	case strings.TrimSpace(out) != "0":
		report.RootError = fmt.Sprintf("shell runs as uid %s, not root", strings.TrimSpace(out))
	default:
		report.RootAccess = true
	}

	if report.RootAccess {
		info, err := s.ids.Inspect(ctx)
		if err != nil {
			s.logger.Warn("identifier store not inspected", "error", err)
		} else {
			report.Store = info
		}
	}

	records, err := s.store.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}
	report.RecordCount = len(records)

	if s.spool != nil {
		if count, err := s.spool.Count(); err == nil {
			report.SpoolCount = count
		}
		if size, err := s.spool.Size(); err == nil {
			report.SpoolSize = size
		}
	}

	return report, nil
}

// History returns the most recent persisted operations, newest first.
func (s *Service) History(limit int) ([]*model.Operation, error) {
	return s.store.ListOperations(limit)
}
