package testutil

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"
)

// InvestigationState summarizes one stored investigation for failure diagnostics.
type InvestigationState struct {
	ID          string
	Status      string
	Executions  int
	Open        int
	CompletedAt *time.Time
}

// InspectInvestigationStates reads every investigation with its execution counts.
func InspectInvestigationStates(t testing.TB, db *sql.DB) []InvestigationState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT i.id, i.status, i.completed_at,
		       COUNT(e.id),
		       COUNT(e.id) FILTER (WHERE e.status IN ('pending', 'running'))
		FROM investigations i
		LEFT JOIN investigation_executions e ON e.investigation_id = i.id
		GROUP BY i.id
		ORDER BY i.created_at ASC`)
	if err != nil {
		t.Fatalf("query investigation states: %v", err)
	}
	defer func() { closeLogged(t, "state rows", rows) }()

	var out []InvestigationState
	for rows.Next() {
		var s InvestigationState
		if err = rows.Scan(&s.ID, &s.Status, &s.CompletedAt, &s.Executions, &s.Open); err != nil {
			t.Fatalf("scan investigation state: %v", err)
		}
		out = append(out, s)
	}
	if err = rows.Err(); err != nil {
		t.Fatalf("iterate investigation states: %v", err)
	}
	return out
}

// LogInvestigationStates logs every stored investigation under a heading.
func LogInvestigationStates(t testing.TB, db *sql.DB, heading string) {
	t.Helper()
	t.Logf("--- %s ---", heading)
	for _, s := range InspectInvestigationStates(t, db) {
		t.Logf("%s status=%s executions=%d open=%d completed_at=%v",
			s.ID, s.Status, s.Executions, s.Open, s.CompletedAt)
	}
}

// RunConcurrently starts every fn at once and fails the test if any returns an error.
// A barrier releases all goroutines together to maximize contention on the store.
func RunConcurrently(t testing.TB, fns ...func() error) {
	t.Helper()
	var (
		start sync.WaitGroup
		done  sync.WaitGroup
		errs  = make([]error, len(fns))
	)
	start.Add(1)
	for i, fn := range fns {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			errs[i] = fn()
		}()
	}
	start.Done()
	done.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent operation %d: %v", i, err)
		}
	}
}
