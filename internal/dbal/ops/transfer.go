package ops

import (
	"context"
	"errors"

	"github.com/kmarchand/studioforge/internal/dbal/adapter"
	"github.com/kmarchand/studioforge/internal/dbal/entity"
	"github.com/kmarchand/studioforge/internal/dbal/validate"
	apperrors "github.com/kmarchand/studioforge/internal/platform/errors"
)

// TransferOps manages instance power transfers. A transfer hands the
// supergod role and instance ownership from one user to another; both sides
// flip in a single transaction when the transfer is accepted.
type TransferOps struct {
	dal *DAL
}

// Request opens a pending transfer from one user to another. Only a god or
// supergod may initiate one, and at most one pending transfer may exist per
// (from, to) pair.
func (o *TransferOps) Request(ctx context.Context, fromUserID, toUserID string) (*entity.PowerTransferRequest, error) {
	d := o.dal

	if fromUserID == toUserID {
		return nil, validationError([]string{"cannot transfer power to yourself"})
	}
	from, err := d.Users.Get(ctx, fromUserID)
	if err != nil {
		return nil, err
	}
	if _, err := d.Users.Get(ctx, toUserID); err != nil {
		return nil, err
	}
	if from.Role != entity.RoleGod && from.Role != entity.RoleSuperGod {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "only god or supergod may transfer power")
	}

	existing, err := d.store.FindFirst(ctx, entity.KindPowerTransferRequest, entity.Fields{
		"fromUserId": fromUserID,
		"toUserId":   toUserID,
		"status":     string(entity.TransferPending),
	})
	if err != nil && !errors.Is(err, adapter.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		live, expireErr := o.expireIfDue(ctx, existing.(*entity.PowerTransferRequest))
		if expireErr != nil {
			return nil, expireErr
		}
		if live != nil {
			return nil, apperrors.WithMetadata(apperrors.CodeConflict,
				"a pending transfer already exists for this pair",
				map[string]string{"transferId": live.ID})
		}
	}

	newID, err := d.newID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "generate transfer id", err)
	}
	now := d.clock()
	transfer := &entity.PowerTransferRequest{
		ID:         newID,
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     entity.TransferPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(d.transferTTL),
	}
	if err := d.store.Create(ctx, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}

// Get returns a transfer by id. A pending transfer past its deadline is
// marked expired on the way out.
func (o *TransferOps) Get(ctx context.Context, transferID string) (*entity.PowerTransferRequest, error) {
	d := o.dal

	if problems := validate.ValidateID(transferID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := d.read(ctx, entity.KindPowerTransferRequest, transferID)
	if err != nil {
		return nil, err
	}
	transfer := rec.(*entity.PowerTransferRequest)

	live, err := o.expireIfDue(ctx, transfer)
	if err != nil {
		return nil, err
	}
	if live == nil {
		transfer.Status = entity.TransferExpired
		return transfer, nil
	}
	return live, nil
}

// expireIfDue marks a pending transfer expired once past its deadline.
// Returns the transfer if it is still live, nil if it was (or already is)
// expired.
func (o *TransferOps) expireIfDue(ctx context.Context, transfer *entity.PowerTransferRequest) (*entity.PowerTransferRequest, error) {
	d := o.dal
	if transfer.Status != entity.TransferPending {
		if transfer.Status == entity.TransferExpired {
			return nil, nil
		}
		return transfer, nil
	}
	if d.clock().Before(transfer.ExpiresAt) {
		return transfer, nil
	}
	if _, err := d.store.Update(ctx, entity.KindPowerTransferRequest, transfer.ID, entity.Fields{
		"status": string(entity.TransferExpired),
	}); err != nil && !errors.Is(err, adapter.ErrNotFound) {
		return nil, err
	}
	return nil, nil
}

// Accept completes a pending transfer: the sender drops to god and loses
// instance ownership, the receiver becomes supergod and instance owner, and
// the transfer is marked accepted. The three writes commit together.
func (o *TransferOps) Accept(ctx context.Context, transferID string) (*entity.PowerTransferRequest, error) {
	d := o.dal

	if problems := validate.ValidateID(transferID); len(problems) > 0 {
		return nil, validationError(problems)
	}
	rec, err := d.read(ctx, entity.KindPowerTransferRequest, transferID)
	if err != nil {
		return nil, err
	}
	transfer := rec.(*entity.PowerTransferRequest)

	switch transfer.Status {
	case entity.TransferAccepted:
		return nil, apperrors.New(apperrors.CodeConflict, "transfer already accepted")
	case entity.TransferExpired:
		return nil, notFound(entity.KindPowerTransferRequest, transferID)
	}

	live, err := o.expireIfDue(ctx, transfer)
	if err != nil {
		return nil, err
	}
	if live == nil {
		return nil, notFound(entity.KindPowerTransferRequest, transferID)
	}

	err = d.store.Transact(ctx, func(tx adapter.Adapter) error {
		if _, err := tx.Update(ctx, entity.KindUser, transfer.FromUserID, entity.Fields{
			"role":            string(entity.RoleGod),
			"isInstanceOwner": false,
		}); err != nil {
			return err
		}
		if _, err := tx.Update(ctx, entity.KindUser, transfer.ToUserID, entity.Fields{
			"role":            string(entity.RoleSuperGod),
			"isInstanceOwner": true,
		}); err != nil {
			return err
		}
		_, err := tx.Update(ctx, entity.KindPowerTransferRequest, transfer.ID, entity.Fields{
			"status": string(entity.TransferAccepted),
		})
		return err
	})
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, notFound(entity.KindUser, "transfer participant")
		}
		return nil, err
	}

	transfer.Status = entity.TransferAccepted
	return transfer, nil
}

// Cancel withdraws a pending transfer.
func (o *TransferOps) Cancel(ctx context.Context, transferID string) error {
	d := o.dal

	transfer, err := o.Get(ctx, transferID)
	if err != nil {
		return err
	}
	if transfer.Status != entity.TransferPending {
		return apperrors.New(apperrors.CodeConflict, "only pending transfers can be cancelled")
	}
	err = d.store.Delete(ctx, entity.KindPowerTransferRequest, transferID)
	if errors.Is(err, adapter.ErrNotFound) {
		return notFound(entity.KindPowerTransferRequest, transferID)
	}
	return err
}

// List returns a page of transfers.
func (o *TransferOps) List(ctx context.Context, opts adapter.ListOptions) ([]*entity.PowerTransferRequest, adapter.ListResult, error) {
	res, err := o.dal.store.List(ctx, entity.KindPowerTransferRequest, opts)
	if err != nil {
		return nil, adapter.ListResult{}, err
	}
	return collect[*entity.PowerTransferRequest](res), res, nil
}
