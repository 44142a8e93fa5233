package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := hashPassword("correct-horse", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashPassword() error = %v", err)
	}
	if hash == "correct-horse" {
		t.Fatal("hash must not equal the plain password")
	}

	ok, err := checkPassword(hash, "correct-horse")
	if err != nil || !ok {
		t.Errorf("checkPassword(correct) = %v, %v", ok, err)
	}
	ok, err = checkPassword(hash, "battery-staple")
	if err != nil || ok {
		t.Errorf("checkPassword(wrong) = %v, %v", ok, err)
	}
	if _, err := checkPassword("not-a-bcrypt-hash", "x"); err == nil {
		t.Error("expected error for malformed hash")
	}
}
