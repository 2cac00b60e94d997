package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/quota/safemath"
	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

// ──────────────────────────────────────────────────
// Record staging
// ──────────────────────────────────────────────────

// ensureInitialized returns the user's record, or an unsaved default record
// if the user has none. Every creating path starts here; the default record
// is only persisted by commit, so a rejected operation leaves no trace.
func (e *Engine) ensureInitialized(ctx context.Context, p types.Principal) (*usage.Record, error) {
	rec, err := e.store.GetRecord(ctx, p)
	if errors.Is(err, ErrUserNotFound) {
		return usage.New(p, 0), nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// commit persists a staged record, creating it on first write. It reports
// whether the record was created.
func (e *Engine) commit(ctx context.Context, rec *usage.Record) (bool, error) {
	rec.LastUpdated = max(e.clock.Next(), rec.LastUpdated)
	rec.Touch()

	if !rec.Persisted() {
		rec.Version = 1
		if err := e.store.CreateRecord(ctx, rec); err != nil {
			rec.Version = 0
			if errors.Is(err, ErrAlreadyExists) {
				return false, fmt.Errorf("%w: %w", ErrConflict, err)
			}
			return false, err
		}
		return true, nil
	}

	rec.Version++
	if err := e.store.UpdateRecord(ctx, rec); err != nil {
		rec.Version--
		return false, err
	}
	return false, nil
}

func validateFileSize(size uint64) error {
	if size == 0 {
		return invalid("size", "must be greater than zero")
	}
	if size > types.MaxFileSize {
		return invalid("size", "%d exceeds the maximum file size %d", size, types.MaxFileSize)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Reads
// ──────────────────────────────────────────────────

// GetUserStorage returns the stored record for p, or ErrUserNotFound.
func (e *Engine) GetUserStorage(ctx context.Context, p types.Principal) (*usage.Record, error) {
	return e.store.GetRecord(ctx, p)
}

// view returns the record for p without creating one.
func (e *Engine) view(ctx context.Context, p types.Principal) (*usage.Record, error) {
	return e.ensureInitialized(ctx, p)
}

// GetUserQuota returns p's quota limit in bytes.
func (e *Engine) GetUserQuota(ctx context.Context, p types.Principal) (uint64, error) {
	rec, err := e.view(ctx, p)
	if err != nil {
		return 0, err
	}
	return rec.QuotaLimit, nil
}

// GetUsedStorage returns the bytes p currently has recorded.
func (e *Engine) GetUsedStorage(ctx context.Context, p types.Principal) (uint64, error) {
	rec, err := e.view(ctx, p)
	if err != nil {
		return 0, err
	}
	return rec.UsedStorage, nil
}

// GetAvailableStorage returns max(quota - used, 0) for p.
func (e *Engine) GetAvailableStorage(ctx context.Context, p types.Principal) (uint64, error) {
	rec, err := e.view(ctx, p)
	if err != nil {
		return 0, err
	}
	return rec.Available(), nil
}

// CanUpload reports whether p has at least size bytes available.
func (e *Engine) CanUpload(ctx context.Context, p types.Principal, size uint64) (bool, error) {
	available, err := e.GetAvailableStorage(ctx, p)
	if err != nil {
		return false, err
	}
	return available >= size, nil
}

// ──────────────────────────────────────────────────
// Mutations
// ──────────────────────────────────────────────────

// InitializeUser creates the caller's record at the default quota. It
// reports false, without error, when the record already exists.
func (e *Engine) InitializeUser(ctx context.Context) (bool, error) {
	caller, err := callerOf(ctx)
	if err != nil {
		return false, err
	}

	var rec *usage.Record
	err = e.locks.do(caller, func() error {
		cur, err := e.ensureInitialized(ctx, caller)
		if err != nil || cur.Persisted() {
			return err
		}
		if _, err := e.commit(ctx, cur); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return nil
			}
			return err
		}
		rec = cur
		return nil
	})
	if err != nil || rec == nil {
		return false, err
	}

	e.plugins.EmitUserInitialized(ctx, rec.Clone())
	e.logger.Debug("user initialized",
		"user", caller,
		"quota", rec.QuotaLimit,
	)
	return true, nil
}

// RecordUpload charges size bytes against the caller's quota.
func (e *Engine) RecordUpload(ctx context.Context, size uint64) error {
	if err := validateFileSize(size); err != nil {
		return err
	}
	caller, err := callerOf(ctx)
	if err != nil {
		return err
	}

	var (
		rec      *usage.Record
		created  bool
		exceeded bool
	)
	err = e.locks.do(caller, func() error {
		cur, err := e.ensureInitialized(ctx, caller)
		if err != nil {
			return err
		}

		used, err := safemath.Add(cur.UsedStorage, size)
		if err != nil {
			return invalid("size", "usage would overflow")
		}
		if used > cur.QuotaLimit {
			rec, exceeded = cur, true
			return fmt.Errorf("%w: %d used + %d requested > %d limit",
				ErrQuotaExceeded, cur.UsedStorage, size, cur.QuotaLimit)
		}

		cur.UsedStorage = used
		if created, err = e.commit(ctx, cur); err != nil {
			return err
		}
		rec = cur
		return nil
	})
	if exceeded {
		e.plugins.EmitQuotaExceeded(ctx, caller, rec.UsedStorage, rec.QuotaLimit, size)
	}
	if err != nil {
		return err
	}

	if created {
		e.plugins.EmitUserInitialized(ctx, rec.Clone())
	}
	e.plugins.EmitUploadRecorded(ctx, rec.Clone(), size)

	e.logger.Debug("upload recorded",
		"user", caller,
		"size", size,
		"used", rec.UsedStorage,
		"quota", rec.QuotaLimit,
	)
	return nil
}

// RecordDeletion releases size bytes from the caller's usage, clamping at
// zero. Unlike uploads it never creates a record.
func (e *Engine) RecordDeletion(ctx context.Context, size uint64) error {
	if err := validateFileSize(size); err != nil {
		return err
	}
	caller, err := callerOf(ctx)
	if err != nil {
		return err
	}

	var rec *usage.Record
	err = e.locks.do(caller, func() error {
		cur, err := e.store.GetRecord(ctx, caller)
		if err != nil {
			return err
		}
		cur.UsedStorage = safemath.SubSaturating(cur.UsedStorage, size)
		if _, err := e.commit(ctx, cur); err != nil {
			return err
		}
		rec = cur
		return nil
	})
	if err != nil {
		return err
	}

	e.plugins.EmitDeletionRecorded(ctx, rec.Clone(), size)

	e.logger.Debug("deletion recorded",
		"user", caller,
		"size", size,
		"used", rec.UsedStorage,
	)
	return nil
}
