package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/internal/product/dto"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/jmoiron/sqlx"
)

const productColumns = `id, animal_type_id, name, kind, unit_weight, target_packages, created_at, updated_at`

const counterColumns = `product_id, produced, received, delivered, updated_at`

const eventColumns = `id, product_id, direction, location, quantity, note, created_at`

const errorLogColumns = `id, product_id, kind, expected, actual, note, resolution, created_at`

const shipmentColumns = `id, status, note, shipped_at, received_at`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) ext(ctx context.Context) sqlx.ExtContext {
	return tx.Ext(ctx, r.DB)
}

// CreateProduct must run inside a transaction so the product and its
// counter row appear together.
func (r *PGRepository) CreateProduct(ctx context.Context, p *model.ByProductType) error {
	query := `
        INSERT INTO byproduct_types (` + productColumns + `)
        VALUES (:id, :animal_type_id, :name, :kind, :unit_weight, :target_packages, :created_at, :updated_at)
    `
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, p); err != nil {
		return fmt.Errorf("failed to create product %s: %w", p.Name, err)
	}
	_, err := r.ext(ctx).ExecContext(ctx,
		`INSERT INTO byproduct_counters (product_id, produced, received, delivered, updated_at) VALUES ($1, 0, 0, 0, $2)`,
		p.ID, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create counter for product %s: %w", p.Name, err)
	}
	return nil
}

func (r *PGRepository) GetProduct(ctx context.Context, id string) (*model.ByProductType, error) {
	var p model.ByProductType
	err := sqlx.GetContext(ctx, r.ext(ctx), &p, `SELECT `+productColumns+` FROM byproduct_types WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PGRepository) ListByAnimalType(ctx context.Context, animalTypeID string) ([]model.ByProductType, error) {
	var items []model.ByProductType
	query := `SELECT ` + productColumns + ` FROM byproduct_types WHERE animal_type_id = $1 ORDER BY created_at, id`
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, animalTypeID)
	return items, err
}

func (r *PGRepository) GetCounter(ctx context.Context, productID string) (*model.ProductCounter, error) {
	return r.getCounter(ctx, `SELECT `+counterColumns+` FROM byproduct_counters WHERE product_id = $1`, productID)
}

func (r *PGRepository) GetCounterForUpdate(ctx context.Context, productID string) (*model.ProductCounter, error) {
	return r.getCounter(ctx, `SELECT `+counterColumns+` FROM byproduct_counters WHERE product_id = $1 FOR UPDATE`, productID)
}

func (r *PGRepository) getCounter(ctx context.Context, query, productID string) (*model.ProductCounter, error) {
	var c model.ProductCounter
	if err := sqlx.GetContext(ctx, r.ext(ctx), &c, query, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *PGRepository) UpdateCounter(ctx context.Context, c *model.ProductCounter) error {
	query := `
        UPDATE byproduct_counters SET
            produced = :produced,
            received = :received,
            delivered = :delivered,
            updated_at = :updated_at
        WHERE product_id = :product_id
    `
	res, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, c)
	if err != nil {
		return fmt.Errorf("failed to update counter %s: %w", c.ProductID, err)
	}
	return expectOneRow(res, "counter", c.ProductID)
}

func (r *PGRepository) ListCounters(ctx context.Context, animalTypeID string) ([]model.ProductCounter, error) {
	var items []model.ProductCounter
	if animalTypeID == "" {
		err := sqlx.SelectContext(ctx, r.ext(ctx), &items,
			`SELECT `+counterColumns+` FROM byproduct_counters ORDER BY product_id`)
		return items, err
	}
	query := `
        SELECT c.product_id, c.produced, c.received, c.delivered, c.updated_at
        FROM byproduct_counters c
        JOIN byproduct_types p ON p.id = c.product_id
        WHERE p.animal_type_id = $1
        ORDER BY p.created_at, p.id
    `
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, animalTypeID)
	return items, err
}

func (r *PGRepository) AppendEvent(ctx context.Context, e *model.LedgerEvent) error {
	query := `
        INSERT INTO ledger_events (` + eventColumns + `)
        VALUES (:id, :product_id, :direction, :location, :quantity, :note, :created_at)
    `
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, e); err != nil {
		return fmt.Errorf("failed to append ledger event for %s: %w", e.ProductID, err)
	}
	return nil
}

func (r *PGRepository) ListEvents(ctx context.Context, f *dto.EventFilters) ([]model.LedgerEvent, int, error) {
	conditions := []string{}
	args := []interface{}{}
	if f.ProductID != "" {
		args = append(args, f.ProductID)
		conditions = append(conditions, "product_id = $"+strconv.Itoa(len(args)))
	}
	if f.Location != "" {
		args = append(args, f.Location)
		conditions = append(conditions, "location = $"+strconv.Itoa(len(args)))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := sqlx.GetContext(ctx, r.ext(ctx), &count, "SELECT count(*) FROM ledger_events"+whereClause, args...); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + eventColumns + " FROM ledger_events" + whereClause + " ORDER BY created_at, seq"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}
	var items []model.LedgerEvent
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, args...)
	return items, count, err
}

func (r *PGRepository) AppendErrorLog(ctx context.Context, l *model.ErrorLog) error {
	query := `
        INSERT INTO error_logs (` + errorLogColumns + `)
        VALUES (:id, :product_id, :kind, :expected, :actual, :note, :resolution, :created_at)
    `
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, l); err != nil {
		return fmt.Errorf("failed to append error log for %s: %w", l.ProductID, err)
	}
	return nil
}

func (r *PGRepository) GetErrorLog(ctx context.Context, id string) (*model.ErrorLog, error) {
	var l model.ErrorLog
	err := sqlx.GetContext(ctx, r.ext(ctx), &l, `SELECT `+errorLogColumns+` FROM error_logs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

func (r *PGRepository) ListErrorLogs(ctx context.Context, f *dto.ErrorLogFilters) ([]model.ErrorLog, error) {
	conditions := []string{}
	args := []interface{}{}
	if f.ProductID != "" {
		args = append(args, f.ProductID)
		conditions = append(conditions, "product_id = $"+strconv.Itoa(len(args)))
	}
	if f.UnresolvedOnly {
		conditions = append(conditions, "resolution IS NULL")
	}
	query := "SELECT " + errorLogColumns + " FROM error_logs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC"

	var items []model.ErrorLog
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, args...)
	return items, err
}

func (r *PGRepository) SetErrorLogResolution(ctx context.Context, id, resolution string) error {
	res, err := r.ext(ctx).ExecContext(ctx, `UPDATE error_logs SET resolution = $2 WHERE id = $1`, id, resolution)
	if err != nil {
		return fmt.Errorf("failed to resolve error log %s: %w", id, err)
	}
	return expectOneRow(res, "error log", id)
}

func (r *PGRepository) CreateShipment(ctx context.Context, s *model.Shipment) error {
	query := `INSERT INTO shipments (` + shipmentColumns + `) VALUES (:id, :status, :note, :shipped_at, :received_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, s); err != nil {
		return fmt.Errorf("failed to create shipment: %w", err)
	}
	for _, item := range s.Items {
		_, err := r.ext(ctx).ExecContext(ctx,
			`INSERT INTO shipment_items (shipment_id, product_id, quantity) VALUES ($1, $2, $3)`,
			s.ID, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to add product %s to shipment %s: %w", item.ProductID, s.ID, err)
		}
	}
	return nil
}

func (r *PGRepository) GetShipmentForUpdate(ctx context.Context, id string) (*model.Shipment, error) {
	var s model.Shipment
	err := sqlx.GetContext(ctx, r.ext(ctx), &s, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadItems(ctx, []*model.Shipment{&s}); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PGRepository) MarkShipmentReceived(ctx context.Context, s *model.Shipment) error {
	res, err := r.ext(ctx).ExecContext(ctx,
		`UPDATE shipments SET status = $2, received_at = $3 WHERE id = $1`, s.ID, s.Status, s.ReceivedAt)
	if err != nil {
		return fmt.Errorf("failed to mark shipment %s received: %w", s.ID, err)
	}
	return expectOneRow(res, "shipment", s.ID)
}

func (r *PGRepository) ListShipments(ctx context.Context, status model.ShipmentStatus) ([]model.Shipment, error) {
	var items []model.Shipment
	var err error
	if status == "" {
		err = sqlx.SelectContext(ctx, r.ext(ctx), &items, `SELECT `+shipmentColumns+` FROM shipments ORDER BY shipped_at DESC`)
	} else {
		err = sqlx.SelectContext(ctx, r.ext(ctx), &items,
			`SELECT `+shipmentColumns+` FROM shipments WHERE status = $1 ORDER BY shipped_at DESC`, status)
	}
	if err != nil {
		return nil, err
	}
	ptrs := make([]*model.Shipment, len(items))
	for i := range items {
		ptrs[i] = &items[i]
	}
	return items, r.loadItems(ctx, ptrs)
}

func (r *PGRepository) loadItems(ctx context.Context, shipments []*model.Shipment) error {
	if len(shipments) == 0 {
		return nil
	}
	byID := make(map[string]*model.Shipment, len(shipments))
	ids := make([]string, 0, len(shipments))
	for _, s := range shipments {
		byID[s.ID] = s
		s.Items = []model.ShipmentItem{}
		ids = append(ids, s.ID)
	}

	query, args, err := sqlx.In(`SELECT shipment_id, product_id, quantity FROM shipment_items WHERE shipment_id IN (?) ORDER BY product_id`, ids)
	if err != nil {
		return err
	}
	var items []model.ShipmentItem
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &items, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, item := range items {
		s := byID[item.ShipmentID]
		s.Items = append(s.Items, item)
	}
	return nil
}

func expectOneRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s %s: expected 1 row affected, got %d", what, id, n)
	}
	return nil
}
