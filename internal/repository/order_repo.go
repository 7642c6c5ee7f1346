package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"restaurant_order_service/internal/domain"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// Advisory lock classes. Per-user locks serialize the append-vs-new-group
// decision for one customer; the per-day lock serializes allocation of a new
// group id from the shared daily counter. Both are transaction-scoped and
// released on commit or rollback.
const (
	lockClassUser = 1
	lockClassDay  = 2
)

const lineColumns = `id, group_id, product_name, quantity, price, details, adicion, state, address, user_name, user_id, created_at, updated_at`

type postgresOrderRepository struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
	log *logrus.Logger
}

// NewPostgresOrderRepository builds the order ledger on top of a shared
// connection pool. loc fixes the civil day used for group-id allocation.
func NewPostgresOrderRepository(db *sql.DB, loc *time.Location, logger *logrus.Logger) domain.OrderRepository {
	return &postgresOrderRepository{
		db:  db,
		loc: loc,
		now: time.Now,
		log: logger,
	}
}

// dayBounds returns the start of the current civil day in the service
// timezone and the start of the next one.
func (r *postgresOrderRepository) dayBounds() (time.Time, time.Time) {
	now := r.now().In(r.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	return start, start.AddDate(0, 0, 1)
}

// dayLockKey identifies the current civil day for the allocation lock.
func (r *postgresOrderRepository) dayLockKey(dayStart time.Time) int32 {
	return int32(dayStart.Year()*10000 + int(dayStart.Month())*100 + dayStart.Day())
}

// classify wraps store errors, tagging retryable conditions (serialization
// failures, deadlocks, lock timeouts, lost connections) as transient.
func (r *postgresOrderRepository) classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		if code == "40001" || code == "40P01" || code == "55P03" || strings.HasPrefix(code, "08") {
			return &domain.TransientError{Op: op, Err: err}
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// endTx commits the transaction when *errp is nil and rolls it back otherwise.
// Meant to run deferred with a named error result.
func (r *postgresOrderRepository) endTx(tx *sql.Tx, op string, errp *error) {
	if p := recover(); p != nil {
		r.log.Errorf("%s: recovered from panic, rolling back transaction", op)
		_ = tx.Rollback()
		panic(p)
	}
	if *errp != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			r.log.Errorf("%s: failed to rollback transaction: %v (original error: %v)", op, rbErr, *errp)
		}
		return
	}
	if cErr := tx.Commit(); cErr != nil {
		r.log.Errorf("%s: failed to commit transaction: %v", op, cErr)
		*errp = r.classify(op+": commit", cErr)
	}
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func scanLines(rows *sql.Rows) ([]domain.OrderLine, error) {
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var (
			line     domain.OrderLine
			price    sql.NullFloat64
			details  sql.NullString
			adicion  sql.NullString
			userName sql.NullString
		)
		if err := rows.Scan(
			&line.ID,
			&line.GroupID,
			&line.ProductName,
			&line.Quantity,
			&price,
			&details,
			&adicion,
			&line.State,
			&line.Address,
			&userName,
			&line.UserID,
			&line.CreatedAt,
			&line.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning order line: %w", err)
		}
		line.Price = price.Float64
		line.Details = details.String
		line.Adicion = adicion.String
		line.UserName = userName.String
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order lines: %w", err)
	}
	return lines, nil
}

func (r *postgresOrderRepository) groupLines(ctx context.Context, q rowQuerier, groupID int64) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `
        SELECT `+lineColumns+`
        FROM order_lines
        WHERE group_id = $1
        ORDER BY created_at ASC, id ASC
    `, groupID)
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

// CreateOrderLine appends one line to the caller's open group, or opens a new
// group with the next id of the day's counter. The whole decision runs in one
// transaction under a per-user advisory lock; allocating a fresh id
// additionally holds the per-day lock until commit.
func (r *postgresOrderRepository) CreateOrderLine(ctx context.Context, req domain.LineRequest) (group *domain.OrderGroup, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.log.Errorf("CreateOrderLine: failed to begin transaction: %v", err)
		return nil, r.classify("create order line: begin", err)
	}
	defer r.endTx(tx, "CreateOrderLine", &err)

	// Serialize with every other submission of this user, including ones that
	// have not inserted any row yet. A row lock alone cannot do that.
	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, lockClassUser, req.UserID); err != nil {
		r.log.Errorf("CreateOrderLine: failed to acquire user lock for %s: %v", req.UserID, err)
		return nil, r.classify("create order line: user lock", err)
	}

	var (
		groupID  int64
		address  string
		userName string
	)
	openRow := tx.QueryRowContext(ctx, `
        SELECT group_id, address, COALESCE(user_name, '')
        FROM order_lines
        WHERE user_id = $1 AND state IN ($2, $3)
        ORDER BY created_at DESC, id DESC
        LIMIT 1
        FOR UPDATE
    `, req.UserID, domain.StatePendiente, domain.StateEnPreparacion)

	switch err = openRow.Scan(&groupID, &address, &userName); {
	case err == nil:
		// Append case. Address and customer name come from the open group, not
		// from the request, so one group never carries two delivery targets.
		r.log.Infof("CreateOrderLine: appending to open group %d for user %s", groupID, req.UserID)
	case errors.Is(err, sql.ErrNoRows):
		address = req.Address
		userName = req.UserName
		groupID, err = r.nextGroupID(ctx, tx)
		if err != nil {
			return nil, err
		}
		r.log.Infof("CreateOrderLine: opening new group %d for user %s", groupID, req.UserID)
	default:
		r.log.Errorf("CreateOrderLine: failed to look up open group for user %s: %v", req.UserID, err)
		return nil, r.classify("create order line: open group lookup", err)
	}

	now := r.now().In(r.loc)
	_, err = tx.ExecContext(ctx, `
        INSERT INTO order_lines
            (group_id, product_name, quantity, price, details, adicion, state, address, user_name, user_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10, $11, $11)
    `, groupID, req.ProductName, req.Quantity, req.Price, req.Details, req.Adicion,
		domain.StatePendiente, address, userName, req.UserID, now)
	if err != nil {
		r.log.Errorf("CreateOrderLine: failed to insert line for user %s: %v", req.UserID, err)
		return nil, r.classify("create order line: insert", err)
	}

	lines, err := r.groupLines(ctx, tx, groupID)
	if err != nil {
		r.log.Errorf("CreateOrderLine: failed to re-read group %d: %v", groupID, err)
		return nil, r.classify("create order line: consolidate", err)
	}

	r.log.Infof("CreateOrderLine: group %d now has %d lines (user %s)", groupID, len(lines), req.UserID)
	return domain.Consolidate(lines), nil
}

// nextGroupID allocates the next group id of the current civil day. The
// per-day advisory lock is held until the surrounding transaction ends; it is
// the single synchronization point between concurrent first submissions.
func (r *postgresOrderRepository) nextGroupID(ctx context.Context, tx *sql.Tx) (int64, error) {
	dayStart, _ := r.dayBounds()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, lockClassDay, r.dayLockKey(dayStart)); err != nil {
		r.log.Errorf("nextGroupID: failed to acquire day lock: %v", err)
		return 0, r.classify("create order line: day lock", err)
	}

	var maxGroupID int64
	err := tx.QueryRowContext(ctx, `
        SELECT COALESCE(MAX(group_id), 0)
        FROM order_lines
        WHERE created_at >= $1
    `, dayStart).Scan(&maxGroupID)
	if err != nil {
		r.log.Errorf("nextGroupID: failed to read day counter: %v", err)
		return 0, r.classify("create order line: day counter", err)
	}

	if maxGroupID == 0 {
		return domain.FirstGroupID, nil
	}
	return maxGroupID + 1, nil
}

func (r *postgresOrderRepository) GetGroup(ctx context.Context, groupID int64) (*domain.OrderGroup, error) {
	lines, err := r.groupLines(ctx, r.db, groupID)
	if err != nil {
		r.log.Errorf("GetGroup: failed to query lines for group %d: %v", groupID, err)
		return nil, r.classify("get group", err)
	}
	if len(lines) == 0 {
		r.log.Warnf("GetGroup: group %d not found", groupID)
		return nil, fmt.Errorf("group %d: %w", groupID, domain.ErrNotFound)
	}
	return domain.Consolidate(lines), nil
}

// GetLatestGroupForUser resolves the user's most recent line of the current
// day to its group, then consolidates that group. Both reads share a read-only
// transaction so the line set is internally consistent.
func (r *postgresOrderRepository) GetLatestGroupForUser(ctx context.Context, userID string) (group *domain.OrderGroup, err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		r.log.Errorf("GetLatestGroupForUser: failed to begin transaction: %v", err)
		return nil, r.classify("get latest group: begin", err)
	}
	defer r.endTx(tx, "GetLatestGroupForUser", &err)

	dayStart, _ := r.dayBounds()

	var groupID int64
	err = tx.QueryRowContext(ctx, `
        SELECT group_id
        FROM order_lines
        WHERE user_id = $1 AND created_at >= $2
        ORDER BY created_at DESC, id DESC
        LIMIT 1
    `, userID, dayStart).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		r.log.Infof("GetLatestGroupForUser: no order today for user %s", userID)
		return nil, fmt.Errorf("latest group for user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		r.log.Errorf("GetLatestGroupForUser: failed to find latest line for user %s: %v", userID, err)
		return nil, r.classify("get latest group: latest line", err)
	}

	lines, err := r.groupLines(ctx, tx, groupID)
	if err != nil {
		r.log.Errorf("GetLatestGroupForUser: failed to query group %d: %v", groupID, err)
		return nil, r.classify("get latest group: lines", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("group %d: %w", groupID, domain.ErrNotFound)
	}
	return domain.Consolidate(lines), nil
}

// ListAllGroups consolidates every group in the store. A single statement
// fetches all lines so each group's view is internally consistent.
func (r *postgresOrderRepository) ListAllGroups(ctx context.Context) (map[int64]*domain.OrderGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+lineColumns+`
        FROM order_lines
        ORDER BY created_at ASC, id ASC
    `)
	if err != nil {
		r.log.Errorf("ListAllGroups: failed to query lines: %v", err)
		return nil, r.classify("list all groups", err)
	}
	lines, err := scanLines(rows)
	if err != nil {
		r.log.Errorf("ListAllGroups: %v", err)
		return nil, r.classify("list all groups", err)
	}

	groups := make(map[int64]*domain.OrderGroup)
	for groupID, groupLines := range domain.GroupLines(lines) {
		groups[groupID] = domain.Consolidate(groupLines)
	}
	r.log.Infof("ListAllGroups: consolidated %d groups from %d lines", len(groups), len(lines))
	return groups, nil
}

// ListTodayUnpaidGroups reports the current day's business that has not been
// paid yet. It runs under repeatable read so membership and per-line totals
// come from one snapshot: a state transition committing mid-scan cannot make a
// group count as both pending and complete.
func (r *postgresOrderRepository) ListTodayUnpaidGroups(ctx context.Context) (report *domain.DailyReport, err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		r.log.Errorf("ListTodayUnpaidGroups: failed to begin transaction: %v", err)
		return nil, r.classify("list today unpaid: begin", err)
	}
	defer r.endTx(tx, "ListTodayUnpaidGroups", &err)

	dayStart, dayEnd := r.dayBounds()
	rows, err := tx.QueryContext(ctx, `
        SELECT `+lineColumns+`
        FROM order_lines
        WHERE created_at >= $1 AND created_at < $2 AND state <> $3
        ORDER BY group_id ASC, created_at ASC, id ASC
    `, dayStart, dayEnd, domain.StatePagado)
	if err != nil {
		r.log.Errorf("ListTodayUnpaidGroups: failed to query lines: %v", err)
		return nil, r.classify("list today unpaid", err)
	}
	lines, err := scanLines(rows)
	if err != nil {
		r.log.Errorf("ListTodayUnpaidGroups: %v", err)
		return nil, r.classify("list today unpaid", err)
	}

	report = domain.BuildDailyReport(lines)
	r.log.Infof("ListTodayUnpaidGroups: %d groups, %d pending, %d complete, sales %.2f",
		report.Stats.TotalOrders, report.Stats.PendingOrders, report.Stats.CompleteOrders, report.Stats.TotalSales)
	return report, nil
}

// lockGroupLines reads and write-locks every line of a group inside tx.
func (r *postgresOrderRepository) lockGroupLines(ctx context.Context, tx *sql.Tx, groupID int64) ([]domain.OrderLine, error) {
	rows, err := tx.QueryContext(ctx, `
        SELECT `+lineColumns+`
        FROM order_lines
        WHERE group_id = $1
        ORDER BY created_at ASC, id ASC
        FOR UPDATE
    `, groupID)
	if err != nil {
		return nil, err
	}
	return scanLines(rows)
}

// UpdateGroupState transitions every line of a group to the new state in one
// bulk statement. The current state is checked under a row lock in the same
// transaction, so the guard and the write see the same rows.
func (r *postgresOrderRepository) UpdateGroupState(ctx context.Context, groupID int64, state domain.OrderState) (group *domain.OrderGroup, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.log.Errorf("UpdateGroupState: failed to begin transaction: %v", err)
		return nil, r.classify("update group state: begin", err)
	}
	defer r.endTx(tx, "UpdateGroupState", &err)

	lines, err := r.lockGroupLines(ctx, tx, groupID)
	if err != nil {
		r.log.Errorf("UpdateGroupState: failed to lock group %d: %v", groupID, err)
		return nil, r.classify("update group state: lock", err)
	}
	if len(lines) == 0 {
		r.log.Warnf("UpdateGroupState: group %d not found", groupID)
		return nil, fmt.Errorf("group %d: %w", groupID, domain.ErrNotFound)
	}

	current := domain.Consolidate(lines).State
	if !domain.CanTransition(current, state) {
		r.log.Warnf("UpdateGroupState: rejected transition %s -> %s for group %d", current, state, groupID)
		return nil, fmt.Errorf("group %d: %s -> %s: %w", groupID, current, state, domain.ErrInvalidTransition)
	}

	now := r.now().In(r.loc)
	res, err := tx.ExecContext(ctx, `
        UPDATE order_lines
        SET state = $1, updated_at = $2
        WHERE group_id = $3
    `, state, now, groupID)
	if err != nil {
		r.log.Errorf("UpdateGroupState: failed to update group %d: %v", groupID, err)
		return nil, r.classify("update group state", err)
	}
	if affected, raErr := res.RowsAffected(); raErr == nil && affected == 0 {
		return nil, fmt.Errorf("group %d: %w", groupID, domain.ErrNotFound)
	}

	updated, err := r.groupLines(ctx, tx, groupID)
	if err != nil {
		r.log.Errorf("UpdateGroupState: failed to re-read group %d: %v", groupID, err)
		return nil, r.classify("update group state: consolidate", err)
	}

	r.log.Infof("UpdateGroupState: group %d moved from %s to %s (%d lines)", groupID, current, state, len(updated))
	return domain.Consolidate(updated), nil
}

// UpdateGroupStateByUser applies one state to every group of a user as a
// single batch. Either every group accepts the transition or nothing changes.
func (r *postgresOrderRepository) UpdateGroupStateByUser(ctx context.Context, userID string, state domain.OrderState) (groups []*domain.OrderGroup, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.log.Errorf("UpdateGroupStateByUser: failed to begin transaction: %v", err)
		return nil, r.classify("update state by user: begin", err)
	}
	defer r.endTx(tx, "UpdateGroupStateByUser", &err)

	rows, err := tx.QueryContext(ctx, `
        SELECT `+lineColumns+`
        FROM order_lines
        WHERE user_id = $1
        ORDER BY created_at ASC, id ASC
        FOR UPDATE
    `, userID)
	if err != nil {
		r.log.Errorf("UpdateGroupStateByUser: failed to lock lines for user %s: %v", userID, err)
		return nil, r.classify("update state by user: lock", err)
	}
	lines, err := scanLines(rows)
	if err != nil {
		r.log.Errorf("UpdateGroupStateByUser: %v", err)
		return nil, r.classify("update state by user", err)
	}
	if len(lines) == 0 {
		r.log.Warnf("UpdateGroupStateByUser: no orders for user %s", userID)
		return nil, fmt.Errorf("orders for user %s: %w", userID, domain.ErrNotFound)
	}

	byGroup := domain.GroupLines(lines)
	for groupID, groupLines := range byGroup {
		current := domain.Consolidate(groupLines).State
		if !domain.CanTransition(current, state) {
			r.log.Warnf("UpdateGroupStateByUser: rejected transition %s -> %s for group %d (user %s)", current, state, groupID, userID)
			return nil, fmt.Errorf("group %d: %s -> %s: %w", groupID, current, state, domain.ErrInvalidTransition)
		}
	}

	now := r.now().In(r.loc)
	if _, err = tx.ExecContext(ctx, `
        UPDATE order_lines
        SET state = $1, updated_at = $2
        WHERE user_id = $3
    `, state, now, userID); err != nil {
		r.log.Errorf("UpdateGroupStateByUser: failed to update lines for user %s: %v", userID, err)
		return nil, r.classify("update state by user", err)
	}

	groups = make([]*domain.OrderGroup, 0, len(byGroup))
	for groupID := range byGroup {
		var updated []domain.OrderLine
		updated, err = r.groupLines(ctx, tx, groupID)
		if err != nil {
			r.log.Errorf("UpdateGroupStateByUser: failed to re-read group %d: %v", groupID, err)
			return nil, r.classify("update state by user: consolidate", err)
		}
		groups = append(groups, domain.Consolidate(updated))
	}
	sortGroupsByID(groups)

	r.log.Infof("UpdateGroupStateByUser: %d groups of user %s moved to %s", len(groups), userID, state)
	return groups, nil
}

// UpdateLine edits a single line of an open group. When the group contains
// duplicate product names, only the earliest match is touched; this is a
// documented policy, not an error.
func (r *postgresOrderRepository) UpdateLine(ctx context.Context, groupID int64, productName string, changes domain.LineChanges) (group *domain.OrderGroup, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.log.Errorf("UpdateLine: failed to begin transaction: %v", err)
		return nil, r.classify("update line: begin", err)
	}
	defer r.endTx(tx, "UpdateLine", &err)

	lines, err := r.lockGroupLines(ctx, tx, groupID)
	if err != nil {
		r.log.Errorf("UpdateLine: failed to lock group %d: %v", groupID, err)
		return nil, r.classify("update line: lock", err)
	}
	if len(lines) == 0 {
		r.log.Warnf("UpdateLine: group %d not found", groupID)
		return nil, fmt.Errorf("group %d: %w", groupID, domain.ErrNotFound)
	}

	current := domain.Consolidate(lines).State
	if !current.Open() {
		r.log.Warnf("UpdateLine: group %d is %s, rejecting edit of %q", groupID, current, productName)
		return nil, fmt.Errorf("group %d is %s: %w", groupID, current, domain.ErrGroupClosed)
	}

	// First match by the group's own creation order.
	var target *domain.OrderLine
	for i := range lines {
		if lines[i].ProductName == productName {
			target = &lines[i]
			break
		}
	}
	if target == nil {
		r.log.Warnf("UpdateLine: product %q not found in group %d", productName, groupID)
		return nil, fmt.Errorf("product %q in group %d: %w", productName, groupID, domain.ErrNotFound)
	}

	now := r.now().In(r.loc)
	setClauses := []string{"updated_at = $1"}
	args := []interface{}{now}
	addSet := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if changes.Quantity != nil {
		addSet("quantity", *changes.Quantity)
	}
	if changes.Price != nil {
		addSet("price", *changes.Price)
	}
	if changes.Details != nil {
		addSet("details", *changes.Details)
	}
	if changes.Adicion != nil {
		addSet("adicion", *changes.Adicion)
	}
	if changes.NewProductName != nil {
		addSet("product_name", *changes.NewProductName)
	}

	args = append(args, target.ID)
	query := fmt.Sprintf("UPDATE order_lines SET %s WHERE id = $%d", strings.Join(setClauses, ", "), len(args))
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		r.log.Errorf("UpdateLine: failed to update line %d in group %d: %v", target.ID, groupID, err)
		return nil, r.classify("update line", err)
	}

	updated, err := r.groupLines(ctx, tx, groupID)
	if err != nil {
		r.log.Errorf("UpdateLine: failed to re-read group %d: %v", groupID, err)
		return nil, r.classify("update line: consolidate", err)
	}

	r.log.Infof("UpdateLine: updated product %q (line %d) in group %d", productName, target.ID, groupID)
	return domain.Consolidate(updated), nil
}

// DeleteGroup removes every line of a group atomically. Returns false without
// error when the group does not exist.
func (r *postgresOrderRepository) DeleteGroup(ctx context.Context, groupID int64) (deleted bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.log.Errorf("DeleteGroup: failed to begin transaction: %v", err)
		return false, r.classify("delete group: begin", err)
	}
	defer r.endTx(tx, "DeleteGroup", &err)

	res, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE group_id = $1`, groupID)
	if err != nil {
		r.log.Errorf("DeleteGroup: failed to delete group %d: %v", groupID, err)
		return false, r.classify("delete group", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		r.log.Errorf("DeleteGroup: failed to read affected rows for group %d: %v", groupID, err)
		return false, r.classify("delete group", err)
	}
	if affected == 0 {
		r.log.Warnf("DeleteGroup: group %d not found", groupID)
		return false, nil
	}

	r.log.Infof("DeleteGroup: removed group %d (%d lines)", groupID, affected)
	return true, nil
}

func sortGroupsByID(groups []*domain.OrderGroup) {
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
}
