package persist

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/holdfast/server/internal/config"
	"github.com/jackc/pgx/v5/pgtype"
)

func TestLedgerPoolConfig(t *testing.T) {
	base := config.Defaults().Database
	tests := []struct {
		name    string
		dsn     string
		open    int
		idle    int
		wantMax int32
		wantMin int32
		wantApp string
	}{
		{"defaults capped", base.DSN, 4, 1, 2, 1, "holdfast-ledger"},
		{"single conn", base.DSN, 1, 5, 1, 1, "holdfast-ledger"},
		{"zero open", base.DSN, 0, 0, 1, 0, "holdfast-ledger"},
		{"dsn app name kept", base.DSN + "&application_name=ops", 2, 0, 2, 0, "ops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns = tt.dsn, tt.open, tt.idle
			pc, err := ledgerPoolConfig(cfg)
			if err != nil {
				t.Fatal(err)
			}
			if pc.MaxConns != tt.wantMax || pc.MinConns != tt.wantMin {
				t.Errorf("conns max %d min %d, want %d %d", pc.MaxConns, pc.MinConns, tt.wantMax, tt.wantMin)
			}
			params := pc.ConnConfig.RuntimeParams
			if params["application_name"] != tt.wantApp {
				t.Errorf("application_name = %q, want %q", params["application_name"], tt.wantApp)
			}
			if params["synchronous_commit"] != "off" {
				t.Errorf("synchronous_commit = %q", params["synchronous_commit"])
			}
		})
	}

	bad := base
	bad.DSN = "postgres://%zz"
	if _, err := ledgerPoolConfig(bad); err == nil {
		t.Error("malformed dsn accepted")
	}
}

func TestKillRowWidensIDs(t *testing.T) {
	run := uuid.New()
	rec := KillRecord{RunID: run, EntityIndex: math.MaxUint32, EntityGen: 1 << 31, ClassID: 2, Tick: 9}
	row := killRow(rec)
	if len(row) != len(killColumns) {
		t.Fatalf("row has %d values for %d columns", len(row), len(killColumns))
	}
	if got := row[1].(int64); got != math.MaxUint32 {
		t.Errorf("entity_index = %d, want %d", got, uint32(math.MaxUint32))
	}
	if got := row[2].(int64); got != 1<<31 {
		t.Errorf("entity_gen = %d, want %d", got, int64(1)<<31)
	}
	if id := row[0].(pgtype.UUID); !id.Valid || id.Bytes != run {
		t.Errorf("run_id = %+v, want %s", id, run)
	}
}
