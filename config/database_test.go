package config

import (
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestMysqlDSN(t *testing.T) {
	cases := []struct {
		name     string
		host     string
		wantNet  string
		wantAddr string
	}{
		{"tcp", "10.0.0.5", "tcp", "10.0.0.5:3306"},
		{"cloud sql socket", "/cloudsql/proj:region:inst", "unix", "/cloudsql/proj:region:inst"},
	}
	for _, tc := range cases {
		cfg, err := mysqlDriver.ParseDSN(mysqlDSN("weaver", "secret", tc.host, "3306", "weaving"))
		if err != nil {
			t.Fatalf("%s: ParseDSN: %v", tc.name, err)
		}
		if cfg.Net != tc.wantNet || cfg.Addr != tc.wantAddr {
			t.Fatalf("%s: expected %s(%s), got %s(%s)", tc.name, tc.wantNet, tc.wantAddr, cfg.Net, cfg.Addr)
		}
		if cfg.User != "weaver" || cfg.Passwd != "secret" || cfg.DBName != "weaving" || !cfg.ParseTime {
			t.Fatalf("%s: unexpected config %+v", tc.name, cfg)
		}
		// sent as a session variable on every pooled connection
		if got := cfg.Params["transaction_isolation"]; got != "'READ-COMMITTED'" {
			t.Fatalf("%s: expected transaction_isolation='READ-COMMITTED', got %q", tc.name, got)
		}
	}
}
