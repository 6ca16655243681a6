package postgres

import (
	"testing"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

func TestListQueryPlaceholders(t *testing.T) {
	since := time.Unix(1_700_000_000, 0)
	q, args := listQuery("SELECT 1 FROM t WHERE wallet = $1", []any{"w"}, "observed_at",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 20})

	want := "SELECT 1 FROM t WHERE wallet = $1 AND observed_at >= $2 ORDER BY observed_at DESC, id DESC LIMIT $3 OFFSET $4"
	if q != want {
		t.Fatalf("query:\n got=%s\nwant=%s", q, want)
	}
	if len(args) != 4 || args[0] != "w" || args[2] != 10 || args[3] != 20 {
		t.Fatalf("args=%v", args)
	}
}

func TestListQueryNoOpts(t *testing.T) {
	q, args := listQuery("SELECT 1 FROM t WHERE 1=1", nil, "created_at", domain.ListOpts{})
	if want := "SELECT 1 FROM t WHERE 1=1 ORDER BY created_at DESC, id DESC"; q != want {
		t.Fatalf("got=%s want=%s", q, want)
	}
	if len(args) != 0 {
		t.Fatalf("args=%v", args)
	}
}

func TestNumericRoundTripsMaxUint64(t *testing.T) {
	const max = ^uint64(0)
	got, err := parseNumeric("yes_pool", numeric(max))
	if err != nil || got != max {
		t.Fatalf("got=%d err=%v", got, err)
	}
	if _, err := parseNumeric("yes_pool", "-1"); err == nil {
		t.Fatal("expected error for negative amount")
	}
}

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", Database: "pm", User: "u", Password: "p"})
	if want := "postgres://u:p@db:5432/pm?sslmode=disable"; got != want {
		t.Fatalf("got=%s want=%s", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Fatalf("explicit DSN not preferred: %s", got)
	}
}

func TestOutcomeValue(t *testing.T) {
	if outcomeValue(domain.OutcomeUnset) != nil {
		t.Fatal("unset outcome should be NULL")
	}
	if v := outcomeValue(domain.OutcomeNo); v == nil || *v {
		t.Fatalf("got=%v want=false", v)
	}
}
