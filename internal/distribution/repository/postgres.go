package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/qurban-engine/internal/distribution"
	"github.com/fekuna/qurban-engine/internal/distribution/dto"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const categoryColumns = `id, name, target, realized, created_at, updated_at`

const recipientColumns = `id, category_id, name, coupon_code, received, received_at, created_at, updated_at`

const recordColumns = `id, recipient_id, package_count, created_by, created_at`

const couponConstraint = "recipients_coupon_code_key"

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) ext(ctx context.Context) sqlx.ExtContext {
	return tx.Ext(ctx, r.DB)
}

func (r *PGRepository) CreateCategory(ctx context.Context, c *model.DistributionCategory) error {
	query := `
        INSERT INTO distribution_categories (` + categoryColumns + `)
        VALUES (:id, :name, :target, :realized, :created_at, :updated_at)
    `
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, c); err != nil {
		return fmt.Errorf("failed to create distribution category %s: %w", c.Name, err)
	}
	return nil
}

func (r *PGRepository) GetCategory(ctx context.Context, id string) (*model.DistributionCategory, error) {
	var c model.DistributionCategory
	err := sqlx.GetContext(ctx, r.ext(ctx), &c, `SELECT `+categoryColumns+` FROM distribution_categories WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *PGRepository) ListCategories(ctx context.Context) ([]model.DistributionCategory, error) {
	var items []model.DistributionCategory
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, `SELECT `+categoryColumns+` FROM distribution_categories ORDER BY created_at, id`)
	return items, err
}

func (r *PGRepository) IncrementRealized(ctx context.Context, categoryID string, by int) error {
	res, err := r.ext(ctx).ExecContext(ctx,
		`UPDATE distribution_categories SET realized = realized + $2, updated_at = now() WHERE id = $1`, categoryID, by)
	if err != nil {
		return fmt.Errorf("failed to bump realized count of category %s: %w", categoryID, err)
	}
	return expectOneRow(res, "category", categoryID)
}

func (r *PGRepository) CreateRecipient(ctx context.Context, rec *model.Recipient) error {
	query := `
        INSERT INTO recipients (` + recipientColumns + `)
        VALUES (:id, :category_id, :name, :coupon_code, :received, :received_at, :created_at, :updated_at)
    `
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, rec); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == couponConstraint {
			return distribution.ErrDuplicateCoupon
		}
		return fmt.Errorf("failed to create recipient %s: %w", rec.Name, err)
	}
	return nil
}

func (r *PGRepository) GetRecipientForUpdate(ctx context.Context, id string) (*model.Recipient, error) {
	var rec model.Recipient
	err := sqlx.GetContext(ctx, r.ext(ctx), &rec, `SELECT `+recipientColumns+` FROM recipients WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *PGRepository) ListRecipients(ctx context.Context, f *dto.RecipientFilters) ([]model.Recipient, error) {
	conditions := []string{}
	args := []interface{}{}
	if f.CategoryID != "" {
		args = append(args, f.CategoryID)
		conditions = append(conditions, "category_id = $"+strconv.Itoa(len(args)))
	}
	if f.ReceivedOnly != nil {
		args = append(args, *f.ReceivedOnly)
		conditions = append(conditions, "received = $"+strconv.Itoa(len(args)))
	}
	query := "SELECT " + recipientColumns + " FROM recipients"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"

	var items []model.Recipient
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, args...)
	return items, err
}

func (r *PGRepository) MarkRecipientReceived(ctx context.Context, id string, at time.Time) error {
	res, err := r.ext(ctx).ExecContext(ctx,
		`UPDATE recipients SET received = TRUE, received_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark recipient %s received: %w", id, err)
	}
	return expectOneRow(res, "recipient", id)
}

func (r *PGRepository) CreateRecord(ctx context.Context, rec *model.DistributionRecord) error {
	query := `INSERT INTO distribution_records (` + recordColumns + `) VALUES (:id, :recipient_id, :package_count, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, rec); err != nil {
		return fmt.Errorf("failed to create distribution record: %w", err)
	}
	for _, item := range rec.Items {
		_, err := r.ext(ctx).ExecContext(ctx,
			`INSERT INTO distribution_record_items (record_id, product_id, quantity) VALUES ($1, $2, $3)`,
			rec.ID, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("failed to add product %s to record %s: %w", item.ProductID, rec.ID, err)
		}
	}
	return nil
}

func (r *PGRepository) ListRecords(ctx context.Context, f *dto.RecordFilters) ([]model.DistributionRecord, int, error) {
	where := ""
	args := []interface{}{}
	if f.RecipientID != "" {
		args = append(args, f.RecipientID)
		where = " WHERE recipient_id = $1"
	}

	var count int
	if err := sqlx.GetContext(ctx, r.ext(ctx), &count, "SELECT COUNT(*) FROM distribution_records"+where, args...); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + recordColumns + " FROM distribution_records" + where + " ORDER BY created_at DESC, id"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		args = append(args, f.PageSize, (page-1)*f.PageSize)
		query += " LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	}

	var items []model.DistributionRecord
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, count, r.loadItems(ctx, items)
}

func (r *PGRepository) loadItems(ctx context.Context, records []model.DistributionRecord) error {
	if len(records) == 0 {
		return nil
	}
	byID := make(map[string]*model.DistributionRecord, len(records))
	ids := make([]string, 0, len(records))
	for i := range records {
		records[i].Items = []model.DistributionItem{}
		byID[records[i].ID] = &records[i]
		ids = append(ids, records[i].ID)
	}

	query, args, err := sqlx.In(`SELECT record_id, product_id, quantity FROM distribution_record_items WHERE record_id IN (?) ORDER BY product_id`, ids)
	if err != nil {
		return err
	}
	var items []model.DistributionItem
	if err := sqlx.SelectContext(ctx, r.ext(ctx), &items, r.DB.Rebind(query), args...); err != nil {
		return err
	}
	for _, item := range items {
		rec := byID[item.RecordID]
		rec.Items = append(rec.Items, item)
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
