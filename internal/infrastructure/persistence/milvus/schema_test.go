package milvus

import (
	"testing"

	"therapy-chat-api/internal/config"
)

func TestPartitionName(t *testing.T) {
	cases := map[string]string{
		"acme":     "tenant_acme",
		"t-1":      "tenant_t_1",
		"9f0c.b2":  "tenant_9f0c_b2",
		"clinic_a": "tenant_clinic_a",
	}
	for in, want := range cases {
		if got := PartitionName(in); got != want {
			t.Fatalf("PartitionName(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestTenantExpr(t *testing.T) {
	if got := tenantExpr("acme", nil); got != `tenant_id == "acme"` {
		t.Fatalf("got=%s", got)
	}
	got := tenantExpr("acme", []string{"s1", " ", "s2"})
	want := `tenant_id == "acme" && session_id in ["s1", "s2"]`
	if got != want {
		t.Fatalf("got=%s\nwant=%s", got, want)
	}
	if got := tenantExpr("acme", []string{""}); got != `tenant_id == "acme"` {
		t.Fatalf("blank scope should not narrow: %s", got)
	}
}

func TestTenantExprEscapesQuotes(t *testing.T) {
	got := tenantExpr(`a" || tenant_id != "`, nil)
	want := `tenant_id == "a\" || tenant_id != \""`
	if got != want {
		t.Fatalf("got=%s", got)
	}
}

func TestSessionExpr(t *testing.T) {
	want := `tenant_id == "acme" && session_id == "s1"`
	if got := sessionExpr("acme", "s1"); got != want {
		t.Fatalf("got=%s", got)
	}
}

func TestTimeColumns(t *testing.T) {
	if timeFromColumn(timeToColumn(nil)) != nil {
		t.Fatalf("nil time should round trip")
	}
	v := 12.5
	got := timeFromColumn(timeToColumn(&v))
	if got == nil || *got != 12.5 {
		t.Fatalf("got=%v", got)
	}
	if got := timeFromColumn(0); got == nil || *got != 0 {
		t.Fatalf("zero is a valid offset")
	}
}

func TestSessionChunksSchema(t *testing.T) {
	s := SessionChunksSchema("session_chunks", 1536)
	if s.CollectionName != "session_chunks" {
		t.Fatalf("name=%s", s.CollectionName)
	}
	var pk, dim string
	for _, f := range s.Fields {
		if f.PrimaryKey {
			pk = f.Name
		}
		if f.Name == fieldVector {
			dim = f.TypeParams["dim"]
		}
	}
	if pk != fieldID || dim != "1536" {
		t.Fatalf("pk=%s dim=%s", pk, dim)
	}
}

func TestHNSWFromDefaults(t *testing.T) {
	p := hnswFrom(&config.MilvusConfig{SearchEf: 64})
	if p.m != 16 || p.efConstruction != 200 || p.searchEf != 64 {
		t.Fatalf("params=%+v", p)
	}
	p = hnswFrom(&config.MilvusConfig{})
	if p.searchEf != defaultSearchEf {
		t.Fatalf("searchEf=%d", p.searchEf)
	}
}
