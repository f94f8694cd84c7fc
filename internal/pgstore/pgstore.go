// Package pgstore provides a PostgreSQL implementation of the patient, queue
// and notify stores.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/carequeue/internal/apperr"
	"github.com/linnemanlabs/carequeue/internal/notify"
	"github.com/linnemanlabs/carequeue/internal/patient"
	"github.com/linnemanlabs/carequeue/internal/queue"
	"github.com/linnemanlabs/carequeue/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/carequeue/internal/pgstore")

//go:embed schema.sql
var schema string

// pgUniqueViolation is the SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

// Store persists patients, cases and notifications in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ patient.Store = (*Store)(nil)
	_ queue.Store   = (*Store)(nil)
	_ notify.Store  = (*Store)(nil)
)

// New applies the schema on the given pool and returns a ready Store.
// The Store takes ownership of the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pgstore."+name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

// fail records err on the span and returns it.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ---- patients ----

const patientColumns = `id, name, age, gender, contact, created_at`

// GetPatient retrieves a patient by ID.
func (s *Store) GetPatient(ctx context.Context, id string) (*patient.Patient, bool, error) {
	ctx, span := startSpan(ctx, "GetPatient", "SELECT")
	defer span.End()

	p, err := scanPatient(s.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	return p, p != nil, nil
}

// CreatePatient inserts p, or returns the patient already registered under
// the same name and age. The unique (name, age) index arbitrates concurrent
// registrations.
func (s *Store) CreatePatient(ctx context.Context, p *patient.Patient) (*patient.Patient, bool, error) {
	ctx, span := startSpan(ctx, "CreatePatient", "INSERT")
	defer span.End()

	stored, err := scanPatient(s.pool.QueryRow(ctx,
		`INSERT INTO patients (`+patientColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (name, age) DO NOTHING
		RETURNING `+patientColumns,
		p.ID, p.Name, p.Age, p.Gender, p.Contact, p.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("patient %s already exists: %w", p.ID, apperr.ErrInvalidState)
		}
		return nil, false, fail(span, fmt.Errorf("insert patient: %w", err))
	}
	if stored != nil {
		span.SetAttributes(attribute.Bool("carequeue.patient.created", true))
		return stored, true, nil
	}

	// Lost the race or already registered; the conflicting row is committed.
	existing, err := scanPatient(s.pool.QueryRow(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE name = $1 AND age = $2`, p.Name, p.Age))
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("select patient: %w", err))
	}
	if existing == nil {
		return nil, false, fail(span, fmt.Errorf("patient %q/%d conflicted but not found", p.Name, p.Age))
	}
	return existing, false, nil
}

// SetPatientContact replaces the contact of an existing patient.
func (s *Store) SetPatientContact(ctx context.Context, id, contact string) (*patient.Patient, bool, error) {
	ctx, span := startSpan(ctx, "SetPatientContact", "UPDATE")
	defer span.End()

	p, err := scanPatient(s.pool.QueryRow(ctx,
		`UPDATE patients SET contact = $2 WHERE id = $1 RETURNING `+patientColumns, id, contact))
	if err != nil {
		return nil, false, fail(span, fmt.Errorf("update patient contact: %w", err))
	}
	return p, p != nil, nil
}

// ListPatients returns patients in registration order.
func (s *Store) ListPatients(ctx context.Context, offset, limit int) ([]*patient.Patient, error) {
	ctx, span := startSpan(ctx, "ListPatients", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT `+patientColumns+` FROM patients ORDER BY created_at, id OFFSET $1 LIMIT $2`,
		max(offset, 0), limitArg(limit))
	if err != nil {
		return nil, fail(span, fmt.Errorf("query patients: %w", err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*patient.Patient, error) {
		return scanPatient(row)
	})
	if err != nil {
		return nil, fail(span, fmt.Errorf("collect patients: %w", err))
	}
	return out, nil
}

// scanPatient returns (nil, nil) when no row is found.
func scanPatient(row pgx.Row) (*patient.Patient, error) {
	var p patient.Patient
	err := row.Scan(&p.ID, &p.Name, &p.Age, &p.Gender, &p.Contact, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan patient: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// ---- cases ----

const caseColumns = `id, patient_id, symptoms, priority, scored, status, created_at, closed_at`

// queueOrder ranks unknown priorities after Routine.
const queueOrder = `CASE WHEN priority BETWEEN 1 AND 3 THEN priority ELSE 4 END, created_at, id`

// CreateCase inserts a new case.
func (s *Store) CreateCase(ctx context.Context, c *queue.Case) error {
	ctx, span := startSpan(ctx, "CreateCase", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO cases (`+caseColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, c.SubjectID, c.SymptomText, int(c.Priority), c.Scored, string(c.Status), c.CreatedAt, nullTime(c.ClosedAt))
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("case %s already exists: %w", c.ID, apperr.ErrInvalidState)
		}
		return fail(span, fmt.Errorf("insert case: %w", err))
	}
	return nil
}

// GetCase retrieves a case by ID.
func (s *Store) GetCase(ctx context.Context, id string) (*queue.Case, bool, error) {
	ctx, span := startSpan(ctx, "GetCase", "SELECT")
	defer span.End()

	c, err := scanCase(s.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	return c, c != nil, nil
}

// ListCasesBySubject returns a patient's cases, newest first.
func (s *Store) ListCasesBySubject(ctx context.Context, subjectID string) ([]*queue.Case, error) {
	ctx, span := startSpan(ctx, "ListCasesBySubject", "SELECT")
	defer span.End()

	out, err := s.queryCases(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE patient_id = $1 ORDER BY created_at DESC, id DESC`,
		subjectID)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// ListQueued returns queued cases in serving order.
func (s *Store) ListQueued(ctx context.Context, offset, limit int) ([]*queue.Case, error) {
	ctx, span := startSpan(ctx, "ListQueued", "SELECT")
	defer span.End()

	out, err := s.queryCases(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE status = 'queued' ORDER BY `+queueOrder+` OFFSET $1 LIMIT $2`,
		max(offset, 0), limitArg(limit))
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// CountQueued counts queued cases per priority.
func (s *Store) CountQueued(ctx context.Context) (map[triage.Priority]int, error) {
	ctx, span := startSpan(ctx, "CountQueued", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT priority, count(*) FROM cases WHERE status = 'queued' GROUP BY priority`)
	if err != nil {
		return nil, fail(span, fmt.Errorf("count queued: %w", err))
	}
	defer rows.Close()

	counts := make(map[triage.Priority]int)
	for rows.Next() {
		var p, n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fail(span, fmt.Errorf("scan count: %w", err))
		}
		counts[triage.Priority(p)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate counts: %w", err))
	}
	return counts, nil
}

// TransitionCase moves a queued case to a terminal status with a single
// conditional UPDATE, so concurrent callers cannot both succeed.
func (s *Store) TransitionCase(ctx context.Context, id string, to queue.Status, at time.Time) (*queue.Case, error) {
	ctx, span := startSpan(ctx, "TransitionCase", "UPDATE")
	defer span.End()
	span.SetAttributes(attribute.String("case.status", string(to)))

	c, err := scanCase(s.pool.QueryRow(ctx,
		`UPDATE cases SET status = $2, closed_at = $3
		 WHERE id = $1 AND status = 'queued'
		 RETURNING `+caseColumns,
		id, string(to), at))
	if err != nil {
		return nil, fail(span, err)
	}
	if c != nil {
		return c, nil
	}

	// Nothing updated: tell a missing case from a closed one.
	var status string
	err = s.pool.QueryRow(ctx, `SELECT status FROM cases WHERE id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("case %s: %w", id, apperr.ErrNotFound)
	case err != nil:
		return nil, fail(span, fmt.Errorf("lookup case status: %w", err))
	default:
		return nil, fmt.Errorf("case %s is %s: %w", id, status, apperr.ErrInvalidState)
	}
}

func (s *Store) queryCases(ctx context.Context, sql string, args ...any) ([]*queue.Case, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*queue.Case, error) {
		return scanCase(row)
	})
	if err != nil {
		return nil, fmt.Errorf("collect cases: %w", err)
	}
	return out, nil
}

// scanCase returns (nil, nil) when no row is found.
func scanCase(row pgx.Row) (*queue.Case, error) {
	var (
		c        queue.Case
		priority int
		status   string
		closedAt *time.Time
	)
	err := row.Scan(&c.ID, &c.SubjectID, &c.SymptomText, &priority, &c.Scored, &status, &c.CreatedAt, &closedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan case: %w", err)
	}
	c.Priority = triage.Priority(priority)
	c.Status = queue.Status(status)
	c.CreatedAt = c.CreatedAt.UTC()
	if closedAt != nil {
		c.ClosedAt = closedAt.UTC()
	}
	return &c, nil
}

// ---- notifications ----

const notificationColumns = `id, patient_id, case_id, message, contact, kind, status,
	failure_reason, attempt, retry_of, created_at, sent_at`

// CreateNotification inserts a new notification. The unique retry_of column
// rejects a second retry of the same notification.
func (s *Store) CreateNotification(ctx context.Context, n *notify.Notification) error {
	ctx, span := startSpan(ctx, "CreateNotification", "INSERT")
	defer span.End()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (`+notificationColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		n.ID, n.SubjectID, nullString(n.CaseID), n.Message, n.Address, n.Kind, string(n.Status),
		n.FailureReason, n.Attempt, nullString(n.RetryOf), n.CreatedAt, n.SentAt)
	if err != nil {
		if isUniqueViolation(err) {
			err = fmt.Errorf("notification %s already exists or was retried: %w", n.ID, apperr.ErrInvalidState)
		}
		return fail(span, fmt.Errorf("insert notification: %w", err))
	}
	return nil
}

// FinalizeNotification records the delivery outcome of a pending notification.
func (s *Store) FinalizeNotification(ctx context.Context, n *notify.Notification) error {
	ctx, span := startSpan(ctx, "FinalizeNotification", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET status = $2, failure_reason = $3, sent_at = $4
		 WHERE id = $1 AND status = 'pending'`,
		n.ID, string(n.Status), n.FailureReason, n.SentAt)
	if err != nil {
		return fail(span, fmt.Errorf("finalize notification: %w", err))
	}
	if tag.RowsAffected() == 0 {
		if _, ok, err := s.GetNotification(ctx, n.ID); err != nil {
			return fail(span, err)
		} else if !ok {
			return fmt.Errorf("notification %s: %w", n.ID, apperr.ErrNotFound)
		}
		return fmt.Errorf("notification %s is not pending: %w", n.ID, apperr.ErrInvalidState)
	}
	return nil
}

// GetNotification retrieves a notification by ID.
func (s *Store) GetNotification(ctx context.Context, id string) (*notify.Notification, bool, error) {
	ctx, span := startSpan(ctx, "GetNotification", "SELECT")
	defer span.End()

	n, err := scanNotification(s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		return nil, false, fail(span, err)
	}
	return n, n != nil, nil
}

// ListNotifications returns notifications matching f, newest first.
func (s *Store) ListNotifications(ctx context.Context, f notify.Filter) ([]*notify.Notification, error) {
	ctx, span := startSpan(ctx, "ListNotifications", "SELECT")
	defer span.End()

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.SubjectID != "" {
		add("patient_id = $%d", f.SubjectID)
	}
	if f.CaseID != "" {
		add("case_id = $%d", f.CaseID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	sql := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, max(f.Offset, 0), limitArg(f.Limit))
	sql += fmt.Sprintf(` ORDER BY created_at DESC, id DESC OFFSET $%d LIMIT $%d`, len(args)-1, len(args))

	out, err := s.queryNotifications(ctx, sql, args...)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// ListRetryable returns failed notifications with no retry and fewer than
// maxAttempts attempts whose ID sorts after the cursor, in ID order.
func (s *Store) ListRetryable(ctx context.Context, maxAttempts int, after string, limit int) ([]*notify.Notification, error) {
	ctx, span := startSpan(ctx, "ListRetryable", "SELECT")
	defer span.End()

	out, err := s.queryNotifications(ctx,
		`SELECT `+notificationColumns+` FROM notifications n
		 WHERE n.status = 'failed' AND n.attempt < $1 AND n.id > $2
		   AND NOT EXISTS (SELECT 1 FROM notifications r WHERE r.retry_of = n.id)
		 ORDER BY n.id
		 LIMIT $3`,
		maxAttempts, after, limitArg(limit))
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

func (s *Store) queryNotifications(ctx context.Context, sql string, args ...any) ([]*notify.Notification, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*notify.Notification, error) {
		return scanNotification(row)
	})
	if err != nil {
		return nil, fmt.Errorf("collect notifications: %w", err)
	}
	return out, nil
}

// scanNotification returns (nil, nil) when no row is found.
func scanNotification(row pgx.Row) (*notify.Notification, error) {
	var (
		n       notify.Notification
		caseID  *string
		retryOf *string
		status  string
		sentAt  *time.Time
	)
	err := row.Scan(&n.ID, &n.SubjectID, &caseID, &n.Message, &n.Address, &n.Kind, &status,
		&n.FailureReason, &n.Attempt, &retryOf, &n.CreatedAt, &sentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.Status = notify.Status(status)
	n.CreatedAt = n.CreatedAt.UTC()
	if caseID != nil {
		n.CaseID = *caseID
	}
	if retryOf != nil {
		n.RetryOf = *retryOf
	}
	if sentAt != nil {
		at := sentAt.UTC()
		n.SentAt = &at
	}
	return &n, nil
}

// ---- helpers ----

// limitArg maps a non-positive limit to NULL, which PostgreSQL treats as no limit.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
