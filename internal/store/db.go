package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbridge/objectsync/internal/model"
)

// uniqueViolation is the PostgreSQL error code for unique constraint hits.
const uniqueViolation = "23505"

// NewDBStores creates the PostgreSQL-backed stores on a shared pool.
func NewDBStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Synchronizations: &dbSynchronizationStore{pool: pool},
		Contracts:        &dbContractStore{pool: pool},
		Logs:             &dbLogStore{pool: pool},
	}
}

type dbSynchronizationStore struct {
	pool *pgxpool.Pool
}

// Definitions are stored as one JSONB document per synchronization, with
// the pagination cursor and update time lifted into columns so cursor
// writes don't rewrite the document.
func (s *dbSynchronizationStore) Get(ctx context.Context, id string) (*model.Synchronization, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT definition, current_page, updated_at FROM synchronizations WHERE id = $1`, id)
	return scanSynchronization(row)
}

func (s *dbSynchronizationStore) List(ctx context.Context) ([]*model.Synchronization, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT definition, current_page, updated_at FROM synchronizations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var syncs []*model.Synchronization
	for rows.Next() {
		sync, err := scanSynchronization(rows)
		if err != nil {
			return nil, err
		}
		syncs = append(syncs, sync)
	}
	return syncs, rows.Err()
}

func (s *dbSynchronizationStore) Upsert(ctx context.Context, sync *model.Synchronization) error {
	definition, err := json.Marshal(sync)
	if err != nil {
		return fmt.Errorf("failed to serialize synchronization %s: %w", sync.ID, err)
	}

	page := sync.CurrentPage
	if page < 1 {
		page = 1
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO synchronizations (id, definition, current_page, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   definition = EXCLUDED.definition,
		   current_page = EXCLUDED.current_page,
		   updated_at = EXCLUDED.updated_at`,
		sync.ID, definition, page, sync.UpdatedAt)
	return err
}

func (s *dbSynchronizationStore) SetCurrentPage(ctx context.Context, id string, page int) error {
	if page < 1 {
		page = 1
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE synchronizations SET current_page = $2 WHERE id = $1`, id, page)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSynchronizationNotFound
	}
	return nil
}

func (s *dbSynchronizationStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM synchronizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSynchronizationNotFound
	}
	return nil
}

func scanSynchronization(row pgx.Row) (*model.Synchronization, error) {
	var (
		definition  []byte
		currentPage int
		updatedAt   time.Time
	)
	if err := row.Scan(&definition, &currentPage, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSynchronizationNotFound
		}
		return nil, err
	}

	sync := &model.Synchronization{}
	if err := json.Unmarshal(definition, sync); err != nil {
		return nil, fmt.Errorf("corrupt synchronization definition: %w", err)
	}
	sync.CurrentPage = currentPage
	sync.UpdatedAt = updatedAt
	return sync, nil
}

type dbContractStore struct {
	pool *pgxpool.Pool
}

const contractColumns = `id, synchronization_id, origin_id, origin_hash, target_id, target_hash,
	source_last_changed, source_last_checked, source_last_synced,
	target_last_changed, target_last_checked, target_last_synced,
	created, updated`

func (s *dbContractStore) Get(ctx context.Context, id uuid.UUID) (*model.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
	return scanContract(row)
}

func (s *dbContractStore) FindByOrigin(ctx context.Context, syncID, originID string) (*model.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE synchronization_id = $1 AND origin_id = $2 AND origin_id <> ''`,
		syncID, originID)
	return scanContract(row)
}

func (s *dbContractStore) FindByTarget(ctx context.Context, syncID, targetID string) (*model.Contract, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE synchronization_id = $1 AND target_id = $2 AND target_id <> ''`,
		syncID, targetID)
	return scanContract(row)
}

func (s *dbContractStore) ListBySynchronization(ctx context.Context, syncID string) ([]*model.Contract, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE synchronization_id = $1 ORDER BY created`, syncID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []*model.Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, contract)
	}
	return contracts, rows.Err()
}

func (s *dbContractStore) Create(ctx context.Context, contract *model.Contract) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contracts (`+contractColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		contract.ID, contract.SynchronizationID,
		contract.OriginID, contract.OriginHash,
		contract.TargetID, contract.TargetHash,
		contract.SourceLastChanged, contract.SourceLastChecked, contract.SourceLastSynced,
		contract.TargetLastChanged, contract.TargetLastChecked, contract.TargetLastSynced,
		contract.Created, contract.Updated)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateContract
		}
		return err
	}
	return nil
}

func (s *dbContractStore) Update(ctx context.Context, contract *model.Contract) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contracts SET
		   origin_id = $2, origin_hash = $3, target_id = $4, target_hash = $5,
		   source_last_changed = $6, source_last_checked = $7, source_last_synced = $8,
		   target_last_changed = $9, target_last_checked = $10, target_last_synced = $11,
		   updated = $12
		 WHERE id = $1`,
		contract.ID,
		contract.OriginID, contract.OriginHash,
		contract.TargetID, contract.TargetHash,
		contract.SourceLastChanged, contract.SourceLastChecked, contract.SourceLastSynced,
		contract.TargetLastChanged, contract.TargetLastChecked, contract.TargetLastSynced,
		contract.Updated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContractNotFound
	}
	return nil
}

func (s *dbContractStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contracts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContractNotFound
	}
	return nil
}

func (s *dbContractStore) HandleObjectRemoval(ctx context.Context, syncID, objectID string) error {
	if objectID == "" {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`UPDATE contracts SET origin_id = '', origin_hash = '', updated = $3
		 WHERE synchronization_id = $1 AND origin_id = $2`,
		syncID, objectID, now)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE contracts SET target_id = '', target_hash = '', updated = $3
		 WHERE synchronization_id = $1 AND target_id = $2`,
		syncID, objectID, now)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM contracts
		 WHERE synchronization_id = $1 AND origin_id = '' AND target_id = ''`,
		syncID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func scanContract(row pgx.Row) (*model.Contract, error) {
	contract := &model.Contract{}
	err := row.Scan(
		&contract.ID, &contract.SynchronizationID,
		&contract.OriginID, &contract.OriginHash,
		&contract.TargetID, &contract.TargetHash,
		&contract.SourceLastChanged, &contract.SourceLastChecked, &contract.SourceLastSynced,
		&contract.TargetLastChanged, &contract.TargetLastChecked, &contract.TargetLastSynced,
		&contract.Created, &contract.Updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}
	return contract, nil
}

type dbLogStore struct {
	pool *pgxpool.Pool
}

func (s *dbLogStore) CreateSyncLog(ctx context.Context, log *model.SynchronizationLog) error {
	result, contractIDs, contractLogIDs, err := marshalSyncLogFields(log)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO synchronization_logs
		   (id, synchronization_id, result, contract_ids, contract_log_ids,
		    test, force, execution_time_ms, message, created, expires)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID, log.SynchronizationID, result, contractIDs, contractLogIDs,
		log.Test, log.Force, log.ExecutionTime, log.Message, log.Created, log.Expires)
	return err
}

func (s *dbLogStore) UpdateSyncLog(ctx context.Context, log *model.SynchronizationLog) error {
	result, contractIDs, contractLogIDs, err := marshalSyncLogFields(log)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE synchronization_logs SET
		   result = $2, contract_ids = $3, contract_log_ids = $4,
		   execution_time_ms = $5, message = $6, expires = $7
		 WHERE id = $1`,
		log.ID, result, contractIDs, contractLogIDs,
		log.ExecutionTime, log.Message, log.Expires)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLogNotFound
	}
	return nil
}

func (s *dbLogStore) GetSyncLog(ctx context.Context, id uuid.UUID) (*model.SynchronizationLog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, synchronization_id, result, contract_ids, contract_log_ids,
		        test, force, execution_time_ms, message, created, expires
		 FROM synchronization_logs WHERE id = $1`, id)
	return scanSyncLog(row)
}

func (s *dbLogStore) ListSyncLogs(ctx context.Context, syncID string) ([]*model.SynchronizationLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, synchronization_id, result, contract_ids, contract_log_ids,
		        test, force, execution_time_ms, message, created, expires
		 FROM synchronization_logs
		 WHERE synchronization_id = $1 ORDER BY created DESC`, syncID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*model.SynchronizationLog
	for rows.Next() {
		log, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *dbLogStore) CreateContractLog(ctx context.Context, log *model.ContractLog) error {
	source, err := marshalJSONMap(log.Source)
	if err != nil {
		return fmt.Errorf("failed to serialize source snapshot: %w", err)
	}
	target, err := marshalJSONMap(log.Target)
	if err != nil {
		return fmt.Errorf("failed to serialize target snapshot: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO contract_logs
		   (id, synchronization_id, synchronization_log_id, contract_id,
		    source, target, target_result, test, force, created, expires)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID, log.SynchronizationID, log.SynchronizationLogID, log.ContractID,
		source, target, log.TargetResult, log.Test, log.Force, log.Created, log.Expires)
	return err
}

func (s *dbLogStore) ListContractLogs(ctx context.Context, syncLogID uuid.UUID) ([]*model.ContractLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, synchronization_id, synchronization_log_id, contract_id,
		        source, target, target_result, test, force, created, expires
		 FROM contract_logs
		 WHERE synchronization_log_id = $1 ORDER BY created`, syncLogID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*model.ContractLog
	for rows.Next() {
		log := &model.ContractLog{}
		var source, target []byte
		err := rows.Scan(
			&log.ID, &log.SynchronizationID, &log.SynchronizationLogID, &log.ContractID,
			&source, &target, &log.TargetResult, &log.Test, &log.Force,
			&log.Created, &log.Expires)
		if err != nil {
			return nil, err
		}
		if log.Source, err = unmarshalJSONMap(source); err != nil {
			return nil, err
		}
		if log.Target, err = unmarshalJSONMap(target); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *dbLogStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	contractTag, err := s.pool.Exec(ctx,
		`DELETE FROM contract_logs WHERE expires IS NOT NULL AND expires < $1`, now)
	if err != nil {
		return 0, err
	}
	syncTag, err := s.pool.Exec(ctx,
		`DELETE FROM synchronization_logs WHERE expires IS NOT NULL AND expires < $1`, now)
	if err != nil {
		return contractTag.RowsAffected(), err
	}
	return contractTag.RowsAffected() + syncTag.RowsAffected(), nil
}

func marshalSyncLogFields(log *model.SynchronizationLog) (result, contractIDs, contractLogIDs []byte, err error) {
	if result, err = json.Marshal(log.Result); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to serialize run result: %w", err)
	}
	if contractIDs, err = json.Marshal(log.ContractIDs); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to serialize contract ids: %w", err)
	}
	if contractLogIDs, err = json.Marshal(log.ContractLogIDs); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to serialize contract log ids: %w", err)
	}
	return result, contractIDs, contractLogIDs, nil
}

func scanSyncLog(row pgx.Row) (*model.SynchronizationLog, error) {
	log := &model.SynchronizationLog{}
	var result, contractIDs, contractLogIDs []byte
	err := row.Scan(
		&log.ID, &log.SynchronizationID, &result, &contractIDs, &contractLogIDs,
		&log.Test, &log.Force, &log.ExecutionTime, &log.Message,
		&log.Created, &log.Expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(result, &log.Result); err != nil {
		return nil, fmt.Errorf("corrupt run result: %w", err)
	}
	if err := json.Unmarshal(contractIDs, &log.ContractIDs); err != nil {
		return nil, fmt.Errorf("corrupt contract id list: %w", err)
	}
	if err := json.Unmarshal(contractLogIDs, &log.ContractLogIDs); err != nil {
		return nil, fmt.Errorf("corrupt contract log id list: %w", err)
	}
	return log, nil
}

func marshalJSONMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalJSONMap(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("corrupt log snapshot: %w", err)
	}
	return m, nil
}
