package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rxstock/rxstock/internal/actors"
	"github.com/rxstock/rxstock/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStock(ctx context.Context, dept actors.Department, drugID int64) (StockRecord, error)
	ListStock(ctx context.Context, dept actors.Department) ([]StockRecord, error)
	History(ctx context.Context, dept actors.Department, drugID int64, limit int) ([]StockTransaction, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// DefaultMinimumQty overrides the threshold assigned to lazily created records.
	DefaultMinimumQty int64
}

// Service coordinates ledger operations outside the transfer workflow.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	defaultMin int64
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cfg ServiceConfig) *Service {
	minimum := cfg.DefaultMinimumQty
	if minimum <= 0 {
		minimum = DefaultMinimumQty
	}
	return &Service{repo: repo, audit: audit, defaultMin: minimum}
}

// Adjust posts a direct signed adjustment. The record is created on first use;
// an adjustment that would drive quantity negative fails with
// ErrInsufficientStock and nothing is written.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (StockTransaction, error) {
	if input.Qty == 0 {
		return StockTransaction{}, ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return StockTransaction{}, ErrInvalidUnitCost
	}
	if strings.TrimSpace(input.Reason) == "" {
		return StockTransaction{}, ErrReasonRequired
	}

	txType := TypeAdjustIncrease
	if input.Qty < 0 {
		txType = TypeAdjustDecrease
	}
	reference := input.Reference
	if reference == "" {
		reference = "ADJ-" + uuid.NewString()
	}

	var txn StockTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = Apply(ctx, tx, Movement{
			Department:      input.Department,
			DrugID:          input.DrugID,
			Qty:             input.Qty,
			Type:            txType,
			UnitCost:        input.UnitCost,
			Reference:       reference,
			ActorID:         input.ActorID,
			CreateIfMissing: true,
			DefaultMinimum:  s.defaultMin,
		})
		return err
	})
	if err != nil {
		return StockTransaction{}, err
	}
	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("stock:%s", txType), input.Department, input.DrugID, map[string]any{
		"qty":    input.Qty,
		"reason": input.Reason,
	})
	return txn, nil
}

// Reserve earmarks available quantity for later dispensing.
func (s *Service) Reserve(ctx context.Context, input ReservationInput) (StockTransaction, error) {
	return s.shiftReservation(ctx, input, TypeReserve, input.Qty)
}

// Release returns reserved quantity to the available pool.
func (s *Service) Release(ctx context.Context, input ReservationInput) (StockTransaction, error) {
	return s.shiftReservation(ctx, input, TypeUnreserve, -input.Qty)
}

func (s *Service) shiftReservation(ctx context.Context, input ReservationInput, txType TransactionType, delta int64) (StockTransaction, error) {
	if input.Qty <= 0 {
		return StockTransaction{}, ErrInvalidQuantity
	}
	var txn StockTransaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = applyReservation(ctx, tx, Movement{
			Department: input.Department,
			DrugID:     input.DrugID,
			Qty:        delta,
			Type:       txType,
			Reference:  input.Reference,
			ActorID:    input.ActorID,
		})
		return err
	})
	if err != nil {
		return StockTransaction{}, err
	}
	s.recordAudit(ctx, input.ActorID, fmt.Sprintf("stock:%s", txType), input.Department, input.DrugID, map[string]any{
		"qty": input.Qty,
	})
	return txn, nil
}

// GetStock returns one record.
func (s *Service) GetStock(ctx context.Context, dept actors.Department, drugID int64) (StockRecord, error) {
	if !dept.IsValid() || drugID == 0 {
		return StockRecord{}, ErrStockNotFound
	}
	return s.repo.GetStock(ctx, dept, drugID)
}

// ListStock returns a department's records.
func (s *Service) ListStock(ctx context.Context, dept actors.Department) ([]StockRecord, error) {
	return s.repo.ListStock(ctx, dept)
}

// History returns the transaction trail for one record.
func (s *Service) History(ctx context.Context, dept actors.Department, drugID int64, limit int) ([]StockTransaction, error) {
	return s.repo.History(ctx, dept, drugID, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, dept actors.Department, drugID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["department"] = string(dept)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_record",
		EntityID: fmt.Sprintf("%s:%d", dept, drugID),
		Meta:     meta,
	})
}
