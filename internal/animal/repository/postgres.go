package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fekuna/qurban-engine/internal/animal/dto"
	"github.com/fekuna/qurban-engine/internal/model"
	"github.com/fekuna/qurban-engine/pkg/database/tx"
	"github.com/jmoiron/sqlx"
)

const groupSizeSettingKey = "items_per_group"

const animalColumns = `
	id, identifier, type_id, status, is_shared, remaining_shares,
	slaughtered, slaughtered_at, slaughtered_by, processed_at, processed_by, meat_packages,
	on_inventory, inventory_at, inventory_by, received_by_buyer, received_at, received_by,
	note, created_at, updated_at`

const typeColumns = `
	id, name, category, target, max_price, collective_price,
	grouping_policy, sharing_policy, created_at, updated_at`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) ext(ctx context.Context) sqlx.ExtContext {
	return tx.Ext(ctx, r.DB)
}

func (r *PGRepository) CreateType(ctx context.Context, t *model.AnimalType) error {
	query := `
        INSERT INTO animal_types (` + typeColumns + `)
        VALUES (
            :id, :name, :category, :target, :max_price, :collective_price,
            :grouping_policy, :sharing_policy, :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, t)
	return err
}

func (r *PGRepository) GetType(ctx context.Context, id string) (*model.AnimalType, error) {
	return r.getType(ctx, `SELECT `+typeColumns+` FROM animal_types WHERE id = $1`, id)
}

func (r *PGRepository) GetTypeForUpdate(ctx context.Context, id string) (*model.AnimalType, error) {
	return r.getType(ctx, `SELECT `+typeColumns+` FROM animal_types WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) getType(ctx context.Context, query, id string) (*model.AnimalType, error) {
	var t model.AnimalType
	if err := sqlx.GetContext(ctx, r.ext(ctx), &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *PGRepository) ListTypes(ctx context.Context) ([]model.AnimalType, error) {
	var types []model.AnimalType
	err := sqlx.SelectContext(ctx, r.ext(ctx), &types, `SELECT `+typeColumns+` FROM animal_types ORDER BY name`)
	return types, err
}

func (r *PGRepository) Create(ctx context.Context, a *model.AnimalInstance) error {
	query := `
        INSERT INTO animal_instances (` + animalColumns + `)
        VALUES (
            :id, :identifier, :type_id, :status, :is_shared, :remaining_shares,
            :slaughtered, :slaughtered_at, :slaughtered_by, :processed_at, :processed_by, :meat_packages,
            :on_inventory, :inventory_at, :inventory_by, :received_by_buyer, :received_at, :received_by,
            :note, :created_at, :updated_at
        )
    `
	if _, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, a); err != nil {
		return fmt.Errorf("failed to create animal %s: %w", a.Identifier, err)
	}
	return nil
}

func (r *PGRepository) FindByIdentifier(ctx context.Context, identifier string) (*model.AnimalInstance, error) {
	return r.getAnimal(ctx, `SELECT `+animalColumns+` FROM animal_instances WHERE identifier = $1`, identifier)
}

func (r *PGRepository) FindByIdentifierForUpdate(ctx context.Context, identifier string) (*model.AnimalInstance, error) {
	return r.getAnimal(ctx, `SELECT `+animalColumns+` FROM animal_instances WHERE identifier = $1 FOR UPDATE`, identifier)
}

func (r *PGRepository) getAnimal(ctx context.Context, query string, args ...interface{}) (*model.AnimalInstance, error) {
	var a model.AnimalInstance
	if err := sqlx.GetContext(ctx, r.ext(ctx), &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.AnimalFilters) ([]model.AnimalInstance, int, error) {
	conditions := []string{}
	args := []interface{}{}

	if f.TypeID != "" {
		args = append(args, f.TypeID)
		conditions = append(conditions, "type_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conditions = append(conditions, "status = $"+strconv.Itoa(len(args)))
	}
	if f.IsShared != nil {
		args = append(args, *f.IsShared)
		conditions = append(conditions, "is_shared = $"+strconv.Itoa(len(args)))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	if err := sqlx.GetContext(ctx, r.ext(ctx), &count, "SELECT count(*) FROM animal_instances"+whereClause, args...); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + animalColumns + " FROM animal_instances" + whereClause + " ORDER BY created_at, created_seq"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}

	var items []model.AnimalInstance
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, args...)
	return items, count, err
}

func (r *PGRepository) ListByTypeInCreationOrder(ctx context.Context, typeID string) ([]model.AnimalInstance, error) {
	var items []model.AnimalInstance
	query := `SELECT ` + animalColumns + ` FROM animal_instances WHERE type_id = $1 ORDER BY created_at, created_seq`
	err := sqlx.SelectContext(ctx, r.ext(ctx), &items, query, typeID)
	return items, err
}

func (r *PGRepository) Update(ctx context.Context, a *model.AnimalInstance) error {
	query := `
        UPDATE animal_instances SET
            status = :status,
            slaughtered = :slaughtered,
            slaughtered_at = :slaughtered_at,
            slaughtered_by = :slaughtered_by,
            processed_at = :processed_at,
            processed_by = :processed_by,
            meat_packages = :meat_packages,
            on_inventory = :on_inventory,
            inventory_at = :inventory_at,
            inventory_by = :inventory_by,
            received_by_buyer = :received_by_buyer,
            received_at = :received_at,
            received_by = :received_by,
            note = :note,
            updated_at = :updated_at
        WHERE id = :id
    `
	res, err := sqlx.NamedExecContext(ctx, r.ext(ctx), query, a)
	if err != nil {
		return fmt.Errorf("failed to update animal %s: %w", a.Identifier, err)
	}
	return expectOneRow(res, a.ID)
}

func (r *PGRepository) UpdateIdentifier(ctx context.Context, id, identifier string) error {
	res, err := r.ext(ctx).ExecContext(ctx,
		`UPDATE animal_instances SET identifier = $2, updated_at = now() WHERE id = $1`, id, identifier)
	if err != nil {
		return fmt.Errorf("failed to rename animal %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (r *PGRepository) FindOpenSharedForUpdate(ctx context.Context, typeID string) (*model.AnimalInstance, error) {
	query := `
        SELECT ` + animalColumns + ` FROM animal_instances
        WHERE type_id = $1 AND is_shared = true AND remaining_shares > 0
        ORDER BY remaining_shares DESC, created_at, created_seq
        LIMIT 1
        FOR UPDATE
    `
	return r.getAnimal(ctx, query, typeID)
}

func (r *PGRepository) UpdateRemainingShares(ctx context.Context, id string, remaining int) error {
	res, err := r.ext(ctx).ExecContext(ctx,
		`UPDATE animal_instances SET remaining_shares = $2, updated_at = now() WHERE id = $1 AND is_shared = true`,
		id, remaining)
	if err != nil {
		return fmt.Errorf("failed to update remaining shares of %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

// ReserveOrdinals hands out n consecutive ordinals for typeID. The first
// reservation for a type starts after the animals that already exist.
func (r *PGRepository) ReserveOrdinals(ctx context.Context, typeID string, n int) (int, error) {
	query := `
        INSERT INTO animal_sequences (type_id, next_ordinal)
        VALUES ($1, (SELECT count(*) FROM animal_instances WHERE type_id = $1) + $2)
        ON CONFLICT (type_id)
        DO UPDATE SET next_ordinal = animal_sequences.next_ordinal + $2
        RETURNING next_ordinal - $2
    `
	var first int
	if err := sqlx.GetContext(ctx, r.ext(ctx), &first, query, typeID, n); err != nil {
		return 0, fmt.Errorf("failed to reserve ordinals for type %s: %w", typeID, err)
	}
	return first, nil
}

func (r *PGRepository) ResetSequence(ctx context.Context, typeID string, next int) error {
	query := `
        INSERT INTO animal_sequences (type_id, next_ordinal) VALUES ($1, $2)
        ON CONFLICT (type_id) DO UPDATE SET next_ordinal = EXCLUDED.next_ordinal
    `
	_, err := r.ext(ctx).ExecContext(ctx, query, typeID, next)
	return err
}

func (r *PGRepository) GetGroupSize(ctx context.Context) (int, bool, error) {
	var raw string
	err := sqlx.GetContext(ctx, r.ext(ctx), &raw, `SELECT value FROM engine_settings WHERE key = $1`, groupSizeSettingKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	size, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("malformed %s setting %q: %w", groupSizeSettingKey, raw, err)
	}
	return size, true, nil
}

func (r *PGRepository) SetGroupSize(ctx context.Context, size int) error {
	query := `
        INSERT INTO engine_settings (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
    `
	_, err := r.ext(ctx).ExecContext(ctx, query, groupSizeSettingKey, strconv.Itoa(size))
	return err
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("animal %s: expected 1 row affected, got %d", id, n)
	}
	return nil
}
