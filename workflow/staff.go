package workflow

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/realtime"
)

type StaffStore interface {
	ListStaffAvailability(ctx context.Context, department string) ([]ds.StaffAvailability, error)
	SetStaffAvailability(ctx context.Context, actor string, s ds.StaffAvailability) (ds.StaffAvailability, error)
	RebalanceStaffWorkload(ctx context.Context, actor string) (int, error)
}

// PresenceCache holds the last snapshot per department. cache.PresenceCache
// implements it.
type PresenceCache interface {
	Store(ctx context.Context, department string, rows []ds.StaffAvailability) error
	Load(ctx context.Context, department string) ([]ds.StaffAvailability, bool, error)
	Invalidate(ctx context.Context, department string) error
	InvalidateAll(ctx context.Context) error
}

// StaffService serves the staff presence board.
type StaffService struct {
	store  StaffStore
	cache  PresenceCache
	logger *slog.Logger
}

func NewStaffService(store StaffStore, cache PresenceCache, logger *slog.Logger) *StaffService {
	return &StaffService{store: store, cache: cache, logger: logger}
}

// Availability returns presence rows for department, or all departments when
// empty. A cache failure falls through to the database.
func (s *StaffService) Availability(ctx context.Context, department string) ([]ds.StaffAvailability, error) {
	if s.cache != nil {
		rows, ok, err := s.cache.Load(ctx, department)
		if err != nil {
			s.logger.Warn("presence cache unavailable", "department", department, "error", err)
		} else if ok {
			return rows, nil
		}
	}
	rows, err := s.store.ListStaffAvailability(ctx, department)
	if err != nil {
		s.logger.Error("failed to load staff availability", "department", department, "error", err)
		return nil, apperrors.NewInternalError("Failed to load staff availability")
	}
	if s.cache != nil {
		if err := s.cache.Store(ctx, department, rows); err != nil {
			s.logger.Warn("failed to cache presence", "department", department, "error", err)
		}
	}
	return rows, nil
}

// SetAvailability updates the caller's presence in one of their departments.
func (s *StaffService) SetAvailability(ctx context.Context, user ds.User, department string, available bool) (ds.StaffAvailability, error) {
	if !isStaff(user) {
		return ds.StaffAvailability{}, apperrors.NewForbiddenError("Only staff can set availability")
	}
	if department == "" {
		return ds.StaffAvailability{}, apperrors.NewValidationError("Department is required")
	}
	if user.Role != ds.RoleAdmin && !slices.Contains(user.Departments, department) {
		return ds.StaffAvailability{}, apperrors.NewForbiddenError("You are not a member of this department", department)
	}
	row, err := s.store.SetStaffAvailability(ctx, "staff:"+user.ID, ds.StaffAvailability{
		UserID:      user.ID,
		DisplayName: user.DiscordUsername,
		Department:  department,
		Available:   available,
	})
	if err != nil {
		s.logger.Error("failed to set availability", "user_id", user.ID, "department", department, "error", err)
		return ds.StaffAvailability{}, apperrors.NewInternalError("Failed to update availability")
	}
	s.invalidate(ctx, department)
	return row, nil
}

// Rebalance redistributes open assignments across available staff.
func (s *StaffService) Rebalance(ctx context.Context, admin ds.User) (int, error) {
	if admin.Role != ds.RoleAdmin {
		return 0, apperrors.NewForbiddenError("Only admins can rebalance workload")
	}
	moved, err := s.store.RebalanceStaffWorkload(ctx, "admin:"+admin.ID)
	if err != nil {
		s.logger.Error("workload rebalance failed", "error", err)
		return 0, apperrors.NewInternalError("Failed to rebalance workload")
	}
	if s.cache != nil {
		// Moved assignments change the load shown in every department.
		if err := s.cache.InvalidateAll(ctx); err != nil {
			s.logger.Warn("failed to invalidate presence cache", "error", err)
		}
	}
	s.logger.Info("workload rebalanced", "moved", moved, "admin", admin.ID)
	return moved, nil
}

func (s *StaffService) invalidate(ctx context.Context, department string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, department); err != nil {
		s.logger.Warn("failed to invalidate presence cache", "department", department, "error", err)
	}
}

// Watch streams the presence board of department, refreshed on every push
// and at least every poll.
func (s *StaffService) Watch(ctx context.Context, department string, poll time.Duration, push <-chan struct{}) <-chan []ds.StaffAvailability {
	return realtime.Watcher[[]ds.StaffAvailability]{
		Interval: poll,
		Load: func(ctx context.Context) ([]ds.StaffAvailability, error) {
			// Pushed events mean the snapshot is stale.
			s.invalidate(ctx, department)
			return s.Availability(ctx, department)
		},
		Equal: func(a, b []ds.StaffAvailability) bool {
			return slices.EqualFunc(a, b, func(x, y ds.StaffAvailability) bool {
				return x.UserID == y.UserID && x.Department == y.Department &&
					x.Available == y.Available && x.ActiveLoad == y.ActiveLoad
			})
		},
		Logger: s.logger,
	}.Run(ctx, push)
}
