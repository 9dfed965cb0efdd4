package journal

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strings"
	"time"

	"WalletBridge/internal/config"
	xerrors "WalletBridge/internal/errors"

	"github.com/go-sql-driver/mysql"
)

const invocationColumns = `id, chain, contract, contract_name, method, args, kind, from_address, tx_hash, status,
        output, last_error, error_code, block_number, created_at, updated_at`

// MySQLStore 使用 MySQL 记录调用状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 根据配置连接 MySQL 并初始化表结构。
func NewMySQLStore(ctx context.Context, cfg config.JournalConfig) (*MySQLStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store, err := NewMySQLStoreWithDB(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewMySQLStoreWithDB 复用已有连接创建存储，并执行未应用的迁移。
func NewMySQLStoreWithDB(ctx context.Context, db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "数据库连接不能为空")
	}
	store := &MySQLStore{db: db}
	if err := store.migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// normalizeDSN 让 UPDATE 返回匹配行数而非变更行数。
func normalizeDSN(raw string) (string, error) {
	parsed, err := mysql.ParseDSN(strings.TrimSpace(raw))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 MySQL DSN 失败")
	}
	parsed.ClientFoundRows = true
	return parsed.FormatDSN(), nil
}

func openDatabase(ctx context.Context, cfg config.JournalConfig) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(20)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(10)
	}
	if cfg.ConnMaxLifetimeSeconds > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeSeconds) * time.Second)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}
	return db, nil
}

// Create 插入新的调用记录。
func (s *MySQLStore) Create(ctx context.Context, inv *Invocation) error {
	if err := prepareCreate(inv, time.Now().Unix()); err != nil {
		return err
	}

	const stmt = `INSERT INTO wallet_invocations (` + invocationColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, stmt,
		inv.ID,
		inv.Chain,
		inv.Contract,
		inv.ContractName,
		inv.Method,
		nullableJSON(inv.Args),
		string(inv.Kind),
		inv.From,
		inv.TxHash,
		string(inv.Status),
		nullableJSON(inv.Output),
		inv.Error,
		inv.ErrorCode,
		inv.BlockNumber,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrInvocationConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入调用记录失败")
	}
	return nil
}

// Get 查询指定调用。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Invocation, error) {
	const stmt = `SELECT ` + invocationColumns + ` FROM wallet_invocations WHERE id = ?`

	inv, err := scanInvocation(s.db.QueryRowContext(ctx, stmt, id))
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvocationNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用记录失败")
	}
	return inv, nil
}

// Update 写回调用的最新状态。
func (s *MySQLStore) Update(ctx context.Context, inv *Invocation) error {
	if inv == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "invocation 不能为空")
	}
	const stmt = `UPDATE wallet_invocations SET from_address = ?, tx_hash = ?, status = ?, output = ?,
        last_error = ?, error_code = ?, block_number = ?, updated_at = ? WHERE id = ?`

	inv.UpdatedAt = time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		inv.From,
		inv.TxHash,
		string(inv.Status),
		nullableJSON(inv.Output),
		inv.Error,
		inv.ErrorCode,
		inv.BlockNumber,
		inv.UpdatedAt,
		inv.ID,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新调用记录失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		// 未开启 clientFoundRows 的连接在内容未变化时同样返回 0 行。
		return s.ensureExists(ctx, inv.ID)
	}
	return nil
}

func (s *MySQLStore) ensureExists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM wallet_invocations WHERE id = ?`, id).Scan(&one)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return ErrInvocationNotFound
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用记录失败")
	}
	return nil
}

// ListLatest 返回最近更新的调用记录。
func (s *MySQLStore) ListLatest(ctx context.Context, opts ListOptions) ([]*Invocation, error) {
	opts.applyDefaults()

	query := `SELECT ` + invocationColumns + ` FROM wallet_invocations`
	clause, args := filterClause(opts)
	query += clause
	query += " ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT ?"
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用列表失败")
	}
	defer rows.Close()

	out := make([]*Invocation, 0, opts.Limit)
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析调用记录失败")
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历调用记录失败")
	}
	return out, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvocation(row rowScanner) (*Invocation, error) {
	var inv Invocation
	var args, output, lastError sql.NullString
	var kind, status string
	if err := row.Scan(
		&inv.ID,
		&inv.Chain,
		&inv.Contract,
		&inv.ContractName,
		&inv.Method,
		&args,
		&kind,
		&inv.From,
		&inv.TxHash,
		&status,
		&output,
		&lastError,
		&inv.ErrorCode,
		&inv.BlockNumber,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inv.Kind = Kind(kind)
	inv.Status = Status(status)
	inv.Error = lastError.String
	if args.Valid && args.String != "" {
		inv.Args = []byte(args.String)
	}
	if output.Valid && output.String != "" {
		inv.Output = []byte(output.String)
	}
	return &inv, nil
}

func nullableJSON(raw []byte) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func filterClause(opts ListOptions) (string, []any) {
	var clauses []string
	var args []any
	if opts.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(opts.Status))
	}
	if opts.Chain != "" {
		clauses = append(clauses, "chain = ?")
		args = append(args, opts.Chain)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Stats 返回符合过滤条件的调用聚合信息，Limit 不参与统计。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS pending,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS succeeded,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS reverted,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM wallet_invocations`
	clause, filterArgs := filterClause(opts)
	query += clause

	args := []any{string(StatusPending), string(StatusSucceeded), string(StatusFailed), string(StatusReverted)}
	args = append(args, filterArgs...)

	var stats Stats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Succeeded,
		&stats.Failed,
		&stats.Reverted,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用统计失败")
	}
	return stats, nil
}
