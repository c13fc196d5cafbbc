package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rxstock/rxstock/internal/actors"
	"github.com/rxstock/rxstock/internal/shared"
	"github.com/rxstock/rxstock/internal/stock"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetByID(ctx context.Context, id int64) (TransferRequest, error)
	List(ctx context.Context, dept actors.Department, filter ListFilter) ([]TransferRequest, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups workflow toggles.
type ServiceConfig struct {
	// AllowShortReceive preserves the legacy behaviour of skipping lines whose
	// source stock is insufficient instead of failing the whole receipt. Off by
	// default: a short line rolls the entire receive back.
	AllowShortReceive bool
	// DefaultMinimumQty is assigned to ledger records created by a first credit.
	DefaultMinimumQty int64
}

// Service dispatches workflow actions against transfer requisitions.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	cfg         ServiceConfig
}

// NewService constructs the dispatcher.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, cfg ServiceConfig) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, cfg: cfg}
}

// Create submits a new requisition on behalf of the actor's department. The
// actor's department becomes FromDept, the inventory that will receive the
// stock once the pipeline completes.
func (s *Service) Create(ctx context.Context, actor actors.Actor, req CreateRequest) (TransferRequest, error) {
	toDept := actors.Department(req.ToDept)
	if !toDept.IsValid() {
		return TransferRequest{}, fmt.Errorf("%w: unknown department %q", ErrValidation, req.ToDept)
	}
	if toDept == actor.Department {
		return TransferRequest{}, ErrSameDepartment
	}
	requisition := strings.TrimSpace(req.Requisition)
	if requisition == "" {
		return TransferRequest{}, fmt.Errorf("%w: requisition number required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return TransferRequest{}, fmt.Errorf("%w: minimal 1 item", ErrValidation)
	}
	for i, item := range req.Items {
		if item.DrugID <= 0 || item.RequestedQty <= 0 {
			return TransferRequest{}, fmt.Errorf("%w: item %d needs drug and positive quantity", ErrValidation, i+1)
		}
	}

	now := time.Now().UTC()
	tr := TransferRequest{
		Requisition: requisition,
		FromDept:    actor.Department,
		ToDept:      toDept,
		Status:      StatusPending,
		RequesterID: actor.ID,
		Note:        req.Note,
		TotalItems:  len(req.Items),
		RequestedAt: now,
	}
	var createdID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertRequest(ctx, tr)
		if err != nil {
			return err
		}
		createdID = id
		for _, item := range req.Items {
			if _, err := tx.InsertItem(ctx, TransferItem{
				TransferID:   id,
				DrugID:       item.DrugID,
				RequestedQty: item.RequestedQty,
				Note:         item.Note,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TransferRequest{}, err
	}
	s.recordAudit(ctx, actor.ID, "TRANSFER_CREATE", createdID, map[string]any{
		"requisition": requisition,
		"from_dept":   string(tr.FromDept),
		"to_dept":     string(tr.ToDept),
	})
	return s.repo.GetByID(ctx, createdID)
}

// Dispatch loads the requisition and executes one workflow command. Every
// precondition failure leaves the requisition, its items and both ledgers
// untouched; once mutation begins it is all-or-nothing.
func (s *Service) Dispatch(ctx context.Context, id int64, actor actors.Actor, cmd Command) (TransferRequest, error) {
	tr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return TransferRequest{}, err
	}

	switch c := cmd.(type) {
	case ApproveCommand:
		err = s.approve(ctx, tr, actor, c)
	case PrepareCommand:
		err = s.prepare(ctx, tr, actor, c)
	case ReceiveCommand:
		err = s.receive(ctx, tr, actor, c)
	case CancelCommand:
		err = s.cancel(ctx, tr, actor, c)
	default:
		return TransferRequest{}, ErrInvalidAction
	}
	if err != nil {
		return TransferRequest{}, err
	}
	return s.repo.GetByID(ctx, id)
}

// Get returns one requisition, scoped to the endpoints' departments. An
// admin-capable actor may read any requisition but gains no write rights.
func (s *Service) Get(ctx context.Context, id int64, actor actors.Actor) (TransferRequest, error) {
	tr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return TransferRequest{}, err
	}
	if !actor.Admin && actor.Department != tr.FromDept && actor.Department != tr.ToDept {
		return TransferRequest{}, ErrForbidden
	}
	return tr, nil
}

// List returns requisitions visible to the actor.
func (s *Service) List(ctx context.Context, actor actors.Actor, filter ListFilter) ([]TransferRequest, int, error) {
	scope := actor.Department
	if actor.Admin {
		scope = ""
	}
	return s.repo.List(ctx, scope, filter)
}

func (s *Service) approve(ctx context.Context, tr TransferRequest, actor actors.Actor, cmd ApproveCommand) error {
	if actor.Department != tr.ToDept {
		return ErrForbidden
	}
	if !tr.Status.CanApprove() {
		return ErrInvalidTransition
	}

	overrides := make(map[int64]int64, len(cmd.Items))
	for _, item := range cmd.Items {
		if item.ApprovedQty < 0 {
			return fmt.Errorf("%w: approved quantity must be >= 0", ErrValidation)
		}
		if _, ok := findItem(tr.Items, item.ItemID); !ok {
			return fmt.Errorf("%w: item %d", ErrItemNotFound, item.ItemID)
		}
		overrides[item.ItemID] = item.ApprovedQty
	}

	now := time.Now().UTC()
	tr.Status = StatusApproved
	tr.ApproverID = &actor.ID
	tr.ApprovedAt = &now
	if cmd.Note != "" {
		note := cmd.Note
		tr.Note = &note
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateRequest(ctx, tr); err != nil {
			return err
		}
		for i := range tr.Items {
			item := tr.Items[i]
			approved := item.RequestedQty
			if qty, ok := overrides[item.ID]; ok {
				approved = qty
			}
			item.ApprovedQty = &approved
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "TRANSFER_APPROVE", tr.ID, map[string]any{"requisition": tr.Requisition})
	return nil
}

func (s *Service) prepare(ctx context.Context, tr TransferRequest, actor actors.Actor, cmd PrepareCommand) error {
	if actor.Department != tr.ToDept {
		return ErrForbidden
	}
	if !tr.Status.CanPrepare() {
		return ErrInvalidTransition
	}

	lines := make(map[int64]PrepareItem, len(cmd.Items))
	for _, line := range cmd.Items {
		if line.DispensedQty < 0 {
			return fmt.Errorf("%w: dispensed quantity must be >= 0", ErrValidation)
		}
		if line.UnitPrice < 0 {
			return fmt.Errorf("%w: unit price must be >= 0", ErrValidation)
		}
		if _, ok := findItem(tr.Items, line.ItemID); !ok {
			return fmt.Errorf("%w: item %d", ErrItemNotFound, line.ItemID)
		}
		lines[line.ItemID] = line
	}

	now := time.Now().UTC()
	tr.Status = StatusPrepared
	tr.DispenserID = &actor.ID
	tr.DispensedAt = &now

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var total float64
		for i := range tr.Items {
			item := tr.Items[i]
			line, ok := lines[item.ID]
			if !ok {
				// Lines the dispenser left out stay undispensed and carry no value.
				item.LineValue = 0
				if err := tx.UpdateItem(ctx, item); err != nil {
					return err
				}
				continue
			}
			qty := line.DispensedQty
			price := line.UnitPrice
			item.DispensedQty = &qty
			item.UnitPrice = &price
			item.ExpiryDate = line.ExpiryDate
			if line.LotNumber != "" {
				lot := line.LotNumber
				item.LotNumber = &lot
			}
			if line.Manufacturer != "" {
				mfr := line.Manufacturer
				item.Manufacturer = &mfr
			}
			item.LineValue = float64(qty) * price
			total += item.LineValue
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
			tr.Items[i] = item
		}
		tr.TotalValue = total
		return tx.UpdateRequest(ctx, tr)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "TRANSFER_PREPARE", tr.ID, map[string]any{
		"requisition": tr.Requisition,
		"total_value": tr.TotalValue,
	})
	return nil
}

func (s *Service) receive(ctx context.Context, tr TransferRequest, actor actors.Actor, cmd ReceiveCommand) error {
	if actor.Department != tr.FromDept {
		return ErrForbidden
	}
	if !tr.Status.CanReceive() {
		return ErrInvalidTransition
	}

	received := make(map[int64]int64, len(cmd.Items))
	for _, line := range cmd.Items {
		item, ok := findItem(tr.Items, line.ItemID)
		if !ok {
			return fmt.Errorf("%w: item %d", ErrItemNotFound, line.ItemID)
		}
		if line.ReceivedQty < 0 {
			return fmt.Errorf("%w: received quantity must be >= 0", ErrValidation)
		}
		dispensed := int64(0)
		if item.DispensedQty != nil {
			dispensed = *item.DispensedQty
		}
		if line.ReceivedQty > dispensed {
			return fmt.Errorf("%w: received %d exceeds dispensed %d for item %d",
				ErrValidation, line.ReceivedQty, dispensed, line.ItemID)
		}
		received[line.ItemID] = line.ReceivedQty
	}

	key := fmt.Sprintf("RECEIVE:%s", tr.Requisition)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "transfer"); err != nil {
			return err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	tr.Status = StatusDelivered
	tr.ReceiverID = &actor.ID
	tr.ReceivedAt = &now
	if cmd.Note != "" {
		note := cmd.Note
		tr.Note = &note
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateRequest(ctx, tr); err != nil {
			return err
		}
		for i := range tr.Items {
			item := tr.Items[i]
			qty := received[item.ID]
			if err := s.settleItem(ctx, tx, tr, &item, qty, actor.ID); err != nil {
				return err
			}
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return err
	}
	s.recordAudit(ctx, actor.ID, "TRANSFER_RECEIVE", tr.ID, map[string]any{
		"requisition": tr.Requisition,
		"total_value": tr.TotalValue,
	})
	return nil
}

// settleItem executes both ledger halves for one received line: debit the
// supplying department, credit the requesting one, each appending its
// transaction entry on the shared database transaction. Zero quantity is a
// no-op line.
func (s *Service) settleItem(ctx context.Context, tx TxRepository, tr TransferRequest, item *TransferItem, qty int64, actorID int64) error {
	zero := int64(0)
	if qty <= 0 {
		item.ReceivedQty = &zero
		return nil
	}
	price := float64(0)
	if item.UnitPrice != nil {
		price = *item.UnitPrice
	}

	_, err := stock.Apply(ctx, tx.Stock(), stock.Movement{
		Department: tr.ToDept,
		DrugID:     item.DrugID,
		Qty:        -qty,
		Type:       stock.TypeTransferOut,
		UnitCost:   price,
		Reference:  tr.Requisition,
		TransferID: &tr.ID,
		ActorID:    actorID,
	})
	if err != nil {
		if errors.Is(err, stock.ErrInsufficientStock) && s.cfg.AllowShortReceive {
			// Legacy mode: the whole line is skipped, never just the debit half,
			// so the two ledgers cannot drift apart.
			item.ReceivedQty = &zero
			annotateShort(item, tr.ToDept)
			return nil
		}
		if errors.Is(err, stock.ErrInsufficientStock) {
			return fmt.Errorf("drug %d at %s: %w", item.DrugID, tr.ToDept, err)
		}
		return err
	}

	_, err = stock.Apply(ctx, tx.Stock(), stock.Movement{
		Department:      tr.FromDept,
		DrugID:          item.DrugID,
		Qty:             qty,
		Type:            stock.TypeTransferIn,
		UnitCost:        price,
		Reference:       tr.Requisition,
		TransferID:      &tr.ID,
		ActorID:         actorID,
		CreateIfMissing: true,
		DefaultMinimum:  s.cfg.DefaultMinimumQty,
	})
	if err != nil {
		return err
	}
	item.ReceivedQty = &qty
	return nil
}

func (s *Service) cancel(ctx context.Context, tr TransferRequest, actor actors.Actor, cmd CancelCommand) error {
	if actor.Department != tr.FromDept && actor.Department != tr.ToDept {
		return ErrForbidden
	}
	if !tr.Status.CanCancel() {
		return ErrInvalidTransition
	}

	tr.Status = StatusCancelled
	if cmd.Note != "" {
		note := cmd.Note
		tr.Note = &note
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateRequest(ctx, tr)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "TRANSFER_CANCEL", tr.ID, map[string]any{"requisition": tr.Requisition})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, transferID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transfer_request",
		EntityID: fmt.Sprintf("%d", transferID),
		Meta:     meta,
	})
}

func findItem(items []TransferItem, id int64) (TransferItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return TransferItem{}, false
}

func annotateShort(item *TransferItem, dept actors.Department) {
	msg := fmt.Sprintf("line skipped: insufficient stock at %s", dept)
	if item.Note != nil && *item.Note != "" {
		msg = *item.Note + "; " + msg
	}
	item.Note = &msg
}
