package security

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestCipherRoundTrip(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	c, err := NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	enc, err := c.Encrypt("shpat_secret_token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if enc == "shpat_secret_token" {
		t.Fatal("token stored in plaintext with a key configured")
	}

	dec, err := c.Decrypt(enc)
	if err != nil || dec != "shpat_secret_token" {
		t.Fatalf("Decrypt = %q err = %v", dec, err)
	}
}

func TestCipherPassThrough(t *testing.T) {
	c, err := NewCipher("")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	enc, _ := c.Encrypt("tok")
	if enc != "tok" {
		t.Errorf("pass-through Encrypt = %q", enc)
	}
	dec, _ := c.Decrypt("tok")
	if dec != "tok" {
		t.Errorf("pass-through Decrypt = %q", dec)
	}
}

func TestCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewCipher("not base64 !!"); err == nil {
		t.Error("invalid base64 accepted")
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := NewCipher(short); err == nil {
		t.Error("short key accepted")
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32)))
	c, _ := NewCipher(key)
	if _, err := c.Decrypt("AAAA"); err == nil {
		t.Error("garbage ciphertext accepted")
	}
}
