package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

func mustB64Decode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func pbkdf2Key(t *testing.T, password string, salt []byte, iterations int) []byte {
	t.Helper()
	return pbkdf2.Key([]byte(password), salt, iterations, sha256.Size, sha256.New)
}

func b64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func TestSCRAMVectorFromSpec(t *testing.T) {
	// The spec fixes the client nonce, so temporarily monkeypatch via a
	// package-level var would be intrusive; instead verify the derivation
	// functions directly against the documented vector.
	salt := mustB64Decode(t, "W22ZaJ0SNY7soEsUEjb6gQ==")
	saltedPassword := pbkdf2Key(t, "pencil", salt, 4096)

	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)
	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))

	clientFirstBare := "n=user,r=rOprNGfwEbeRWgbNEkqO"
	serverFirst := "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	clientFinalWithoutProof := "c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0"
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)
	gotProof := b64Encode(clientProof)
	wantProof := "dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ="
	if gotProof != wantProof {
		t.Fatalf("client proof = %q, want %q", gotProof, wantProof)
	}

	serverSig := hmacSHA256(serverKey, []byte(authMessage))
	gotSig := b64Encode(serverSig)
	wantSig := "6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="
	if gotSig != wantSig {
		t.Fatalf("server signature = %q, want %q", gotSig, wantSig)
	}
}

func TestSaslprepUsernameEscaping(t *testing.T) {
	got, err := saslprepUsername("a=b,c")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a=3Db=2Cc" {
		t.Fatalf("got %q", got)
	}
}

func TestSaslprepUsernameRejectsNonPrintable(t *testing.T) {
	if _, err := saslprepUsername("bad\x01user"); err == nil {
		t.Fatal("expected UnsafeChars error")
	}
}

func TestParseServerFirstRejectsMissingFields(t *testing.T) {
	if _, _, _, err := parseServerFirst("r=abc"); err == nil {
		t.Fatal("expected error for missing salt/iterations")
	}
	if _, _, _, err := parseServerFirst("r=abc,s=!!!notbase64,i=10"); err == nil {
		t.Fatal("expected BadSalt error")
	}
	if _, _, _, err := parseServerFirst("r=abc,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=0"); err == nil {
		t.Fatal("expected BadIterationCount error")
	}
}

func TestMD5Password(t *testing.T) {
	got := md5Password("user", "password", []byte{0x01, 0x02, 0x03, 0x04})
	if got[:3] != "md5" || len(got) != 35 {
		t.Fatalf("unexpected md5 password shape: %q", got)
	}
}
