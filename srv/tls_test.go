package main

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureCertificate(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "certs", "server.crt")
	key := filepath.Join(dir, "certs", "server.key")

	if err := ensureCertificate(cert, key); err != nil {
		t.Fatalf("ensureCertificate() error = %v", err)
	}
	if _, err := tls.LoadX509KeyPair(cert, key); err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}

	before, _ := os.ReadFile(cert)
	if err := ensureCertificate(cert, key); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(cert)
	if string(before) != string(after) {
		t.Error("existing certificate was replaced")
	}

	info, err := os.Stat(key)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key mode = %v, want 0600", info.Mode().Perm())
	}
}
